package tier

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one file found while enumerating a tier's backing root.
type Entry struct {
	LogicalPath string
	Size        int64
	ATime       time.Time
}

// joinLogical joins a tier's absolute root with a logical path, which is
// always relative (no leading separator) per the uniqueness invariant.
func joinLogical(root, logicalPath string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(logicalPath, "/")))
}

// toLogical converts an absolute backing path back to its logical form.
func toLogical(root, backingPath string) string {
	rel, err := filepath.Rel(root, backingPath)
	if err != nil {
		return backingPath
	}
	return filepath.ToSlash(rel)
}

// Enumerate walks the tier's backing root and yields every regular file and
// symlink found, in unspecified order (spec §4.1). Directories themselves
// are not yielded; they exist implicitly wherever a member file's path
// requires them.
func (t *Tier) Enumerate() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(t.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A vanished file between readdir and stat is not a tier
			// failure; skip it and keep walking.
			if d == nil {
				return nil
			}
			return err
		}
		if path == t.Path {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode()&fs.ModeSymlink == 0 && !info.Mode().IsRegular() {
			return nil
		}

		entries = append(entries, Entry{
			LogicalPath: toLogical(t.Path, path),
			Size:        info.Size(),
			ATime:       accessTime(info),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
