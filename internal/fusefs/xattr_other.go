//go:build !linux

package fusefs

import "syscall"

// Extended attributes have no portable standard-library syscall outside
// Linux; on the macOS and Windows mounts served by the cgofuse transport
// every xattr call fails with ENOTSUP, and internal/pin's calls are no-ops
// there, so files are never pinned on those platforms.
func lgetxattrSize(path, attr string) (int, error) {
	return 0, syscall.ENOTSUP
}

func lgetxattr(path, attr string, dest []byte) (int, error) {
	return 0, syscall.ENOTSUP
}

func lsetxattr(path, attr string, data []byte, flags int) error {
	return syscall.ENOTSUP
}

func llistxattr(path string) ([]string, error) {
	return nil, syscall.ENOTSUP
}

func lremovexattr(path, attr string) error {
	return syscall.ENOTSUP
}
