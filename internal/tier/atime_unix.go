//go:build linux

package tier

import (
	"io/fs"
	"syscall"
	"time"
)

// accessTime extracts the last-access time from a Linux Stat_t, falling
// back to ModTime for FileInfo implementations that don't carry one.
func accessTime(info fs.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
}
