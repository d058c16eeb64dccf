// Package fusefs implements the union filesystem (spec §4.6, §6): every
// call that names a logical path resolves it through the Path Resolver and
// delegates the underlying syscall to the resolved backing path. Core holds
// that transport-agnostic business logic; node.go adapts it to
// github.com/hanwen/go-fuse/v2 and cgofuse.go adapts it to cgofuse for
// platforms go-fuse cannot mount on.
package fusefs

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/metrics"
	"github.com/autotier/autotier/internal/migration"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/resolver"
)

// DirEntry is one name returned by Readdir's union merge.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Core is shared by every mount transport. It never speaks FUSE's wire
// types; it returns plain os/syscall errors that each transport's errno
// translator understands.
type Core struct {
	Resolver *resolver.Resolver
	Migrator *migration.Migrator
	Pins     *pin.Store
	Metrics  *metrics.Collector
	Log      *zap.Logger
}

// New builds a Core over an already-constructed resolver/migrator/pin store.
func New(res *resolver.Resolver, mig *migration.Migrator, pins *pin.Store, coll *metrics.Collector, log *zap.Logger) *Core {
	return &Core{Resolver: res, Migrator: mig, Pins: pins, Metrics: coll, Log: log}
}

func clean(logicalPath string) string {
	return strings.TrimPrefix(path.Clean("/"+logicalPath), "/")
}

// observe wraps op, recording its duration and outcome in Metrics.
func (c *Core) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.Metrics.ObserveFSOp(op, time.Since(start), err)
	return err
}

// resolveAny finds the backing path for logicalPath regardless of type,
// trying the regular-file/symlink resolver first, then the directory
// resolver, since both getattr and access operate over either.
func (c *Core) resolveAny(logicalPath string) (string, os.FileInfo, error) {
	if logicalPath == "" {
		return c.Resolver.Tiers()[0].Path, nil, nil
	}
	if idx, backing := c.Resolver.Resolve(logicalPath); idx != resolver.NotFound {
		fi, err := os.Lstat(backing)
		return backing, fi, err
	}
	if idx := c.Resolver.ResolveDirTier(logicalPath); idx != resolver.NotFound {
		backing := c.Resolver.Tiers()[idx].BackingPath(logicalPath)
		fi, err := os.Lstat(backing)
		return backing, fi, err
	}
	return "", nil, os.ErrNotExist
}

// Getattr returns the backing path and its stat info for a logical path.
func (c *Core) Getattr(logicalPath string) (string, os.FileInfo, error) {
	logicalPath = clean(logicalPath)
	var backing string
	var fi os.FileInfo
	err := c.observe("getattr", func() error {
		var err error
		backing, fi, err = c.resolveAny(logicalPath)
		return err
	})
	return backing, fi, err
}

// Access reports whether logicalPath exists at all (full permission-bit
// checking is left to the kernel via default_permissions).
func (c *Core) Access(logicalPath string) error {
	_, _, err := c.resolveAny(clean(logicalPath))
	return err
}

// Readlink returns a symlink's literal, stored target (Design Note: no
// resolution against backing paths happens here or at creation time).
func (c *Core) Readlink(logicalPath string) (string, error) {
	logicalPath = clean(logicalPath)
	idx, backing := c.Resolver.Resolve(logicalPath)
	if idx == resolver.NotFound {
		return "", os.ErrNotExist
	}
	return os.Readlink(backing)
}

// Readdir unions every tier's view of a logical directory. A name present
// as a regular file on one tier and a directory on another is reported
// once, from the higher-priority tier, with the conflict logged.
func (c *Core) Readdir(logicalPath string) ([]DirEntry, error) {
	logicalPath = clean(logicalPath)
	seen := make(map[string]DirEntry)
	order := make([]string, 0, 16)
	found := false

	for _, t := range c.Resolver.Tiers() {
		backing := t.BackingPath(logicalPath)
		entries, err := os.ReadDir(backing)
		if err != nil {
			continue
		}
		found = true
		for _, e := range entries {
			isDir := e.IsDir()
			existing, ok := seen[e.Name()]
			if !ok {
				seen[e.Name()] = DirEntry{Name: e.Name(), IsDir: isDir}
				order = append(order, e.Name())
				continue
			}
			if existing.IsDir != isDir {
				c.Log.Warn("fusefs: readdir type conflict across tiers, keeping higher-priority entry",
					zap.String("path", path.Join(logicalPath, e.Name())),
					zap.Bool("kept_is_dir", existing.IsDir), zap.Bool("shadowed_is_dir", isDir))
			}
		}
	}

	if !found {
		return nil, os.ErrNotExist
	}
	result := make([]DirEntry, 0, len(order))
	for _, name := range order {
		result = append(result, seen[name])
	}
	return result, nil
}

// Mkdir creates a directory on the tier chosen for new content, mirroring
// any missing parent directories there first.
func (c *Core) Mkdir(logicalPath string, mode os.FileMode) error {
	logicalPath = clean(logicalPath)
	return c.observe("mkdir", func() error {
		idx := c.Resolver.ResolveForCreate(0)
		t := c.Resolver.Tiers()[idx]
		backing := t.BackingPath(logicalPath)
		if err := os.MkdirAll(path.Dir(backing), 0o755); err != nil {
			return err
		}
		return os.Mkdir(backing, mode)
	})
}

// Rmdir removes a logical directory from every tier that holds it, since
// the union view could otherwise resurrect it from a lower tier.
func (c *Core) Rmdir(logicalPath string) error {
	logicalPath = clean(logicalPath)
	return c.observe("rmdir", func() error {
		removed := false
		var lastErr error
		for _, t := range c.Resolver.Tiers() {
			backing := t.BackingPath(logicalPath)
			err := os.Remove(backing)
			if err == nil {
				removed = true
				continue
			}
			if !os.IsNotExist(err) {
				lastErr = err
			}
		}
		if removed {
			return nil
		}
		if lastErr != nil {
			return lastErr
		}
		return os.ErrNotExist
	})
}

// Mknod creates a special or regular file node on the tier chosen for new
// content (spec §6 lists mknod alongside create for completeness; autotier
// itself only ever sees regular-file mknod calls from userspace tools like
// `cp --preserve` falling back from O_CREAT).
func (c *Core) Mknod(logicalPath string, mode os.FileMode, dev uint64) error {
	logicalPath = clean(logicalPath)
	return c.observe("mknod", func() error {
		idx := c.Resolver.ResolveForCreate(0)
		t := c.Resolver.Tiers()[idx]
		backing := t.BackingPath(logicalPath)
		if err := os.MkdirAll(path.Dir(backing), 0o755); err != nil {
			return err
		}
		return syscall.Mknod(backing, uint32(mode), int(dev))
	})
}

// Unlink removes a logical file from whichever tier holds it.
func (c *Core) Unlink(logicalPath string) error {
	logicalPath = clean(logicalPath)
	return c.observe("unlink", func() error {
		idx, backing := c.Resolver.Resolve(logicalPath)
		if idx == resolver.NotFound {
			return os.ErrNotExist
		}
		return os.Remove(backing)
	})
}

// Symlink creates a symlink on the tier chosen for new content. The target
// is stored exactly as given; it is never resolved against a backing path
// (Design Note, Open Question 1).
func (c *Core) Symlink(target, logicalPath string) error {
	logicalPath = clean(logicalPath)
	return c.observe("symlink", func() error {
		idx := c.Resolver.ResolveForCreate(0)
		t := c.Resolver.Tiers()[idx]
		backing := t.BackingPath(logicalPath)
		if err := os.MkdirAll(path.Dir(backing), 0o755); err != nil {
			return err
		}
		return os.Symlink(target, backing)
	})
}

// Rename requires both endpoints to resolve to the same tier; when they
// don't, it migrates the source onto the destination's tier inline before
// renaming (spec §4.6).
func (c *Core) Rename(oldLogical, newLogical string) error {
	oldLogical = clean(oldLogical)
	newLogical = clean(newLogical)
	return c.observe("rename", func() error {
		srcIdx, srcBacking := c.Resolver.Resolve(oldLogical)
		if srcIdx == resolver.NotFound {
			return os.ErrNotExist
		}

		dstTierIdx := c.destinationTierFor(newLogical, srcIdx)
		dstTier := c.Resolver.Tiers()[dstTierIdx]
		dstBacking := dstTier.BackingPath(newLogical)

		if dstTierIdx != srcIdx {
			if err := c.Migrator.Migrate(context.Background(), srcBacking, dstBacking); err != nil {
				return err
			}
			return nil
		}

		if err := os.MkdirAll(path.Dir(dstBacking), 0o755); err != nil {
			return err
		}
		return os.Rename(srcBacking, dstBacking)
	})
}

// destinationTierFor picks the tier a rename/link target belongs on: the
// tier that already holds the target's parent directory, falling back to
// the source's own tier when the parent hasn't been created anywhere yet.
func (c *Core) destinationTierFor(newLogical string, srcIdx int) int {
	parent := path.Dir(newLogical)
	if parent == "." {
		parent = ""
	}
	for i, t := range c.Resolver.Tiers() {
		if parent == "" {
			return i
		}
		if fi, err := os.Stat(t.BackingPath(parent)); err == nil && fi.IsDir() {
			return i
		}
	}
	return srcIdx
}

// Link creates a hard link; like rename, both endpoints must land on the
// same tier, migrating the source inline otherwise.
func (c *Core) Link(oldLogical, newLogical string) error {
	oldLogical = clean(oldLogical)
	newLogical = clean(newLogical)
	return c.observe("link", func() error {
		srcIdx, srcBacking := c.Resolver.Resolve(oldLogical)
		if srcIdx == resolver.NotFound {
			return os.ErrNotExist
		}

		dstTierIdx := c.destinationTierFor(newLogical, srcIdx)
		if dstTierIdx != srcIdx {
			dstTier := c.Resolver.Tiers()[dstTierIdx]
			migratedBacking := dstTier.BackingPath(oldLogical)
			if err := c.Migrator.Migrate(context.Background(), srcBacking, migratedBacking); err != nil {
				return err
			}
			srcBacking = migratedBacking
			srcIdx = dstTierIdx
		}

		dstTier := c.Resolver.Tiers()[srcIdx]
		dstBacking := dstTier.BackingPath(newLogical)
		if err := os.MkdirAll(path.Dir(dstBacking), 0o755); err != nil {
			return err
		}
		return os.Link(srcBacking, dstBacking)
	})
}

// Create opens a new regular file on the tier chosen for new content.
func (c *Core) Create(logicalPath string, flags int, mode os.FileMode) (*os.File, error) {
	logicalPath = clean(logicalPath)
	var f *os.File
	err := c.observe("create", func() error {
		idx := c.Resolver.ResolveForCreate(0)
		t := c.Resolver.Tiers()[idx]
		backing := t.BackingPath(logicalPath)
		if err := os.MkdirAll(path.Dir(backing), 0o755); err != nil {
			return err
		}
		var err error
		f, err = os.OpenFile(backing, flags|os.O_CREATE, mode)
		return err
	})
	return f, err
}

// Open opens an existing logical file against whichever tier currently
// holds it. The returned handle stays valid even if a later migration
// moves the file (spec §4.6: the unlinked inode persists until close).
func (c *Core) Open(logicalPath string, flags int) (*os.File, error) {
	logicalPath = clean(logicalPath)
	var f *os.File
	err := c.observe("open", func() error {
		idx, backing := c.Resolver.Resolve(logicalPath)
		if idx == resolver.NotFound {
			return os.ErrNotExist
		}
		var err error
		f, err = os.OpenFile(backing, flags, 0)
		return err
	})
	return f, err
}

// Chmod, Chown, Truncate, and Utimens apply an attribute change to whichever
// tier currently holds logicalPath.
func (c *Core) Chmod(logicalPath string, mode os.FileMode) error {
	return c.withBacking(logicalPath, func(backing string) error { return os.Chmod(backing, mode) })
}

func (c *Core) Chown(logicalPath string, uid, gid int) error {
	return c.withBacking(logicalPath, func(backing string) error { return os.Lchown(backing, uid, gid) })
}

func (c *Core) Truncate(logicalPath string, size int64) error {
	return c.withBacking(logicalPath, func(backing string) error { return os.Truncate(backing, size) })
}

func (c *Core) Utimens(logicalPath string, atime, mtime time.Time) error {
	return c.withBacking(logicalPath, func(backing string) error { return os.Chtimes(backing, atime, mtime) })
}

func (c *Core) withBacking(logicalPath string, fn func(backing string) error) error {
	logicalPath = clean(logicalPath)
	idx, backing := c.Resolver.Resolve(logicalPath)
	if idx == resolver.NotFound {
		return os.ErrNotExist
	}
	return fn(backing)
}

// Statfs reports an aggregate view across every tier: capacity and free
// space are summed, since the union presents as one filesystem.
func (c *Core) Statfs() (total, free int64, err error) {
	for _, t := range c.Resolver.Tiers() {
		total += t.CapacityBytes
		free += t.CapacityBytes - t.UsedBytes
	}
	return total, free, nil
}

// Getxattr, Setxattr, Listxattr, and Removexattr pass straight through to
// the backing file. The pin feature (internal/pin) uses this same
// extended-attribute namespace, so pinning works identically whether done
// through the ad hoc control plane or directly with setfattr(1) on the
// mounted path.
func (c *Core) Getxattr(logicalPath, attr string) ([]byte, error) {
	var data []byte
	err := c.withBacking(logicalPath, func(backing string) error {
		size, err := lgetxattrSize(backing, attr)
		if err != nil {
			return err
		}
		data = make([]byte, size)
		_, err = lgetxattr(backing, attr, data)
		return err
	})
	return data, err
}

func (c *Core) Setxattr(logicalPath, attr string, data []byte, flags int) error {
	return c.withBacking(logicalPath, func(backing string) error {
		return lsetxattr(backing, attr, data, flags)
	})
}

func (c *Core) Listxattr(logicalPath string) ([]string, error) {
	var names []string
	err := c.withBacking(logicalPath, func(backing string) error {
		var err error
		names, err = llistxattr(backing)
		return err
	})
	return names, err
}

func (c *Core) Removexattr(logicalPath, attr string) error {
	return c.withBacking(logicalPath, func(backing string) error {
		return lremovexattr(backing, attr)
	})
}

// Read and Write operate on an already-open *os.File, used identically by
// both transports' file-handle wrappers.
func (c *Core) Read(f *os.File, dest []byte, off int64) (int, error) {
	n, err := f.ReadAt(dest, off)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (c *Core) Write(f *os.File, data []byte, off int64) (int, error) {
	return f.WriteAt(data, off)
}
