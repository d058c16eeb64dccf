//go:build linux

package fusefs

import "golang.org/x/sys/unix"

func lgetxattrSize(path, attr string) (int, error) {
	return unix.Lgetxattr(path, attr, nil)
}

func lgetxattr(path, attr string, dest []byte) (int, error) {
	return unix.Lgetxattr(path, attr, dest)
}

func lsetxattr(path, attr string, data []byte, flags int) error {
	return unix.Lsetxattr(path, attr, data, flags)
}

func llistxattr(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	return splitNulTerminated(buf[:n]), nil
}

func lremovexattr(path, attr string) error {
	return unix.Lremovexattr(path, attr)
}

func splitNulTerminated(buf []byte) []string {
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
