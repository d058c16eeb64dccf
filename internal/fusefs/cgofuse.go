//go:build cgofuse

package fusefs

import (
	"os"
	"strings"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"
)

// CgoFuseFS adapts Core to winfsp/cgofuse, the transport autotier uses on
// platforms go-fuse's kernel-module protocol can't reach (notably
// Windows, via WinFsp). It carries no filesystem logic of its own — every
// method below is a thin errno/path translation over Core, the same
// business logic node.go drives for the go-fuse transport.
type CgoFuseFS struct {
	fuse.FileSystemBase
	core *Core
	log  *zap.Logger

	mu      chan struct{} // 1-buffered mutex over per-path open-handle bookkeeping
	handles map[uint64]*os.File
	next    uint64
}

// NewCgoFuseFS builds the cgofuse adapter over an existing Core.
func NewCgoFuseFS(core *Core, log *zap.Logger) *CgoFuseFS {
	f := &CgoFuseFS{
		core:    core,
		log:     log,
		mu:      make(chan struct{}, 1),
		handles: make(map[uint64]*os.File),
		next:    1,
	}
	f.mu <- struct{}{}
	return f
}

func (f *CgoFuseFS) lock()   { <-f.mu }
func (f *CgoFuseFS) unlock() { f.mu <- struct{}{} }

func cgoErrno(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case os.IsNotExist(err):
		return -fuse.ENOENT
	case os.IsExist(err):
		return -fuse.EEXIST
	case os.IsPermission(err):
		return -fuse.EACCES
	default:
		return -fuse.EIO
	}
}

func trimLeadingSlash(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (f *CgoFuseFS) storeHandle(file *os.File) uint64 {
	f.lock()
	defer f.unlock()
	h := f.next
	f.next++
	f.handles[h] = file
	return h
}

func (f *CgoFuseFS) fileFor(fh uint64) *os.File {
	f.lock()
	defer f.unlock()
	return f.handles[fh]
}

func (f *CgoFuseFS) dropHandle(fh uint64) *os.File {
	f.lock()
	defer f.unlock()
	file := f.handles[fh]
	delete(f.handles, fh)
	return file
}

func (f *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	_, fi, err := f.core.Getattr(trimLeadingSlash(path))
	if err != nil {
		return cgoErrno(err)
	}
	fillCgoStat(stat, fi)
	return 0
}

func fillCgoStat(stat *fuse.Stat_t, fi os.FileInfo) {
	switch {
	case fi.IsDir():
		stat.Mode = fuse.S_IFDIR | uint32(fi.Mode().Perm())
		stat.Nlink = 2
	case fi.Mode()&os.ModeSymlink != 0:
		stat.Mode = fuse.S_IFLNK | uint32(fi.Mode().Perm())
		stat.Nlink = 1
	default:
		stat.Mode = fuse.S_IFREG | uint32(fi.Mode().Perm())
		stat.Nlink = 1
	}
	stat.Size = fi.Size()
	stat.Mtim.Sec = fi.ModTime().Unix()
	stat.Mtim.Nsec = int64(fi.ModTime().Nanosecond())
}

func (f *CgoFuseFS) Opendir(path string) (int, uint64) {
	return 0, 0
}

func (f *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	entries, err := f.core.Readdir(trimLeadingSlash(path))
	if err != nil {
		return cgoErrno(err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, e := range entries {
		stat := &fuse.Stat_t{}
		if e.IsDir {
			stat.Mode = fuse.S_IFDIR | 0o755
		} else {
			stat.Mode = fuse.S_IFREG | 0o644
		}
		if !fill(e.Name, stat, 0) {
			break
		}
	}
	return 0
}

func (f *CgoFuseFS) Mkdir(path string, mode uint32) int {
	return cgoErrno(f.core.Mkdir(trimLeadingSlash(path), os.FileMode(mode).Perm()))
}

func (f *CgoFuseFS) Rmdir(path string) int {
	return cgoErrno(f.core.Rmdir(trimLeadingSlash(path)))
}

func (f *CgoFuseFS) Unlink(path string) int {
	return cgoErrno(f.core.Unlink(trimLeadingSlash(path)))
}

func (f *CgoFuseFS) Symlink(target, newpath string) int {
	return cgoErrno(f.core.Symlink(target, trimLeadingSlash(newpath)))
}

func (f *CgoFuseFS) Readlink(path string) (int, string) {
	target, err := f.core.Readlink(trimLeadingSlash(path))
	if err != nil {
		return cgoErrno(err), ""
	}
	return 0, target
}

func (f *CgoFuseFS) Rename(oldpath, newpath string) int {
	return cgoErrno(f.core.Rename(trimLeadingSlash(oldpath), trimLeadingSlash(newpath)))
}

func (f *CgoFuseFS) Link(oldpath, newpath string) int {
	return cgoErrno(f.core.Link(trimLeadingSlash(oldpath), trimLeadingSlash(newpath)))
}

func (f *CgoFuseFS) Chmod(path string, mode uint32) int {
	return cgoErrno(f.core.Chmod(trimLeadingSlash(path), os.FileMode(mode).Perm()))
}

func (f *CgoFuseFS) Chown(path string, uid, gid uint32) int {
	return cgoErrno(f.core.Chown(trimLeadingSlash(path), int(uid), int(gid)))
}

func (f *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	return cgoErrno(f.core.Truncate(trimLeadingSlash(path), size))
}

func (f *CgoFuseFS) Utimens(path string, tmsp []fuse.Timespec) int {
	if len(tmsp) < 2 {
		return -fuse.EINVAL
	}
	atime := time.Unix(tmsp[0].Sec, tmsp[0].Nsec)
	mtime := time.Unix(tmsp[1].Sec, tmsp[1].Nsec)
	return cgoErrno(f.core.Utimens(trimLeadingSlash(path), atime, mtime))
}

func (f *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	file, err := f.core.Create(trimLeadingSlash(path), flags, os.FileMode(mode).Perm())
	if err != nil {
		return cgoErrno(err), 0
	}
	return 0, f.storeHandle(file)
}

func (f *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	file, err := f.core.Open(trimLeadingSlash(path), flags)
	if err != nil {
		return cgoErrno(err), 0
	}
	return 0, f.storeHandle(file)
}

func (f *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	file := f.fileFor(fh)
	if file == nil {
		return -fuse.EBADF
	}
	n, err := f.core.Read(file, buff, ofst)
	if err != nil {
		return cgoErrno(err)
	}
	return n
}

func (f *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	file := f.fileFor(fh)
	if file == nil {
		return -fuse.EBADF
	}
	n, err := f.core.Write(file, buff, ofst)
	if err != nil {
		return cgoErrno(err)
	}
	return n
}

func (f *CgoFuseFS) Release(path string, fh uint64) int {
	file := f.dropHandle(fh)
	if file == nil {
		return 0
	}
	return cgoErrno(file.Close())
}

func (f *CgoFuseFS) Fsync(path string, datasync bool, fh uint64) int {
	file := f.fileFor(fh)
	if file == nil {
		return -fuse.EBADF
	}
	return cgoErrno(file.Sync())
}

func (f *CgoFuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	total, free, err := f.core.Statfs()
	if err != nil {
		return cgoErrno(err)
	}
	const bsize = 4096
	stat.Bsize = bsize
	stat.Blocks = uint64(total) / bsize
	stat.Bfree = uint64(free) / bsize
	stat.Bavail = stat.Bfree
	return 0
}

func (f *CgoFuseFS) Getxattr(path, name string) (int, []byte) {
	data, err := f.core.Getxattr(trimLeadingSlash(path), name)
	if err != nil {
		return cgoErrno(err), nil
	}
	return 0, data
}

func (f *CgoFuseFS) Setxattr(path, name string, value []byte, flags int) int {
	return cgoErrno(f.core.Setxattr(trimLeadingSlash(path), name, value, flags))
}

func (f *CgoFuseFS) Listxattr(path string, fill func(name string) bool) int {
	names, err := f.core.Listxattr(trimLeadingSlash(path))
	if err != nil {
		return cgoErrno(err)
	}
	for _, name := range names {
		if !fill(name) {
			break
		}
	}
	return 0
}

func (f *CgoFuseFS) Removexattr(path, name string) int {
	return cgoErrno(f.core.Removexattr(trimLeadingSlash(path), name))
}
