//go:build linux

package pin

import (
	"strconv"

	"golang.org/x/sys/unix"
)

func setPinXattr(path string, tier int) error {
	return unix.Setxattr(path, xattrName, []byte(strconv.Itoa(tier)), 0)
}

func removePinXattr(path string) error {
	err := unix.Removexattr(path, xattrName)
	if err == unix.ENODATA {
		return nil
	}
	return err
}

func getPinXattr(path string) (bool, int) {
	buf := make([]byte, 16)
	n, err := unix.Getxattr(path, xattrName, buf)
	if err != nil {
		return false, 0
	}
	tier, err := strconv.Atoi(string(buf[:n]))
	if err != nil {
		// Pre-existing marker from before tiers were encoded (a bare '1'
		// byte); treat it as pinned to tier 0 rather than failing lookup.
		return true, 0
	}
	return true, tier
}
