//go:build !linux

package pin

// setPinXattr and getPinXattr are no-ops on platforms without a
// standard-library-accessible xattr syscall (notably Windows, where
// autotier mounts through the cgofuse transport in internal/fusefs). Pin
// state on those platforms is always "unpinned".
func setPinXattr(path string, tier int) error {
	return nil
}

func removePinXattr(path string) error {
	return nil
}

func getPinXattr(path string) (bool, int) {
	return false, 0
}
