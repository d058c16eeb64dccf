//go:build darwin

package tier

import (
	"io/fs"
	"syscall"
	"time"
)

// accessTime extracts the last-access time from a Darwin Stat_t.
func accessTime(info fs.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec)
}
