//go:build linux

package migration

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// preserveMetadata copies mode, uid/gid, atime/mtime, and xattrs from src to
// dst after a migration places dst in its final location (spec §4.3 step
// 3). Best-effort: a missing-xattr-support filesystem is not an error.
func preserveMetadata(srcPath, dstPath string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	if err := os.Chmod(dstPath, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chown(dstPath, int(stat.Uid), int(stat.Gid)); err != nil {
		return err
	}
	atime := time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	mtime := time.Unix(stat.Mtim.Sec, stat.Mtim.Nsec)
	if err := os.Chtimes(dstPath, atime, mtime); err != nil {
		return err
	}

	return copyXattrs(srcPath, dstPath)
}

func copyXattrs(srcPath, dstPath string) error {
	size, err := unix.Llistxattr(srcPath, nil)
	if err != nil || size == 0 {
		return nil
	}
	namesBuf := make([]byte, size)
	n, err := unix.Llistxattr(srcPath, namesBuf)
	if err != nil {
		return nil
	}
	for _, name := range splitXattrNames(namesBuf[:n]) {
		valSize, err := unix.Lgetxattr(srcPath, name, nil)
		if err != nil || valSize == 0 {
			continue
		}
		val := make([]byte, valSize)
		vn, err := unix.Lgetxattr(srcPath, name, val)
		if err != nil {
			continue
		}
		_ = unix.Lsetxattr(dstPath, name, val[:vn], 0)
	}
	return nil
}

func splitXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
