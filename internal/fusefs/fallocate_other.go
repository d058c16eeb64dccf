//go:build !linux

package fusefs

import "os"

// fallocate has no portable equivalent outside Linux; extend the file with
// a truncate instead, which is sufficient for the common case of
// preallocating trailing space.
func fallocate(f *os.File, off, size int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if want := off + size; want > info.Size() {
		return f.Truncate(want)
	}
	return nil
}
