//go:build !linux && !darwin

package tier

import (
	"io/fs"
	"time"
)

// accessTime falls back to ModTime on platforms without a Stat_t atime
// field readily available through the standard library (notably Windows,
// where autotier runs via the cgofuse transport, see internal/fusefs).
func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
