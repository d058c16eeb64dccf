package fusefs

import (
	"errors"
	"os"
	"syscall"
)

// errnoOf translates a Core error (a plain os/syscall error) into the
// errno the kernel expects back (spec §6: every operation returns 0 or
// -errno).
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case os.IsNotExist(err):
		return syscall.ENOENT
	case os.IsExist(err):
		return syscall.EEXIST
	case os.IsPermission(err):
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}
