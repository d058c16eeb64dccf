//go:build linux

package fusefs

import (
	"os"
	"syscall"
)

func fallocate(f *os.File, off, size int64) error {
	return syscall.Fallocate(int(f.Fd()), 0, off, size)
}
