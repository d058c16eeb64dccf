//go:build !linux

package migration

import (
	"os"
	"time"
)

// preserveMetadata copies mode and mtime, and sets atime to the current
// time rather than the source's, on platforms without the
// xattr and uid/gid syscalls internal/migration uses on Linux (notably
// Windows, mounted through the cgofuse transport in internal/fusefs).
func preserveMetadata(srcPath, dstPath string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(dstPath, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dstPath, time.Now(), info.ModTime())
}
