package fusefs

import (
	"context"
	"os"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FS is the go-fuse root filesystem. Every Node shares the same Core.
type FS struct {
	core *Core
}

// NewFS wraps a Core for go-fuse mounting.
func NewFS(core *Core) *FS {
	return &FS{core: core}
}

// Root returns the mount's root node, with an empty logical path.
func (f *FS) Root() fs.InodeEmbedder {
	return &Node{fsys: f, logicalPath: ""}
}

// Node is one inode in the union namespace, identified only by its
// logical path; it carries no cached tier assignment since a migration can
// move the path to a different tier between calls (spec §4.6, §5's
// linearizability guarantee).
type Node struct {
	fs.Inode
	fsys        *FS
	logicalPath string
}

var (
	_ fs.NodeLookuper      = (*Node)(nil)
	_ fs.NodeGetattrer     = (*Node)(nil)
	_ fs.NodeSetattrer     = (*Node)(nil)
	_ fs.NodeAccesser      = (*Node)(nil)
	_ fs.NodeReadlinker    = (*Node)(nil)
	_ fs.NodeReaddirer     = (*Node)(nil)
	_ fs.NodeMkdirer       = (*Node)(nil)
	_ fs.NodeRmdirer       = (*Node)(nil)
	_ fs.NodeMknoder       = (*Node)(nil)
	_ fs.NodeUnlinker      = (*Node)(nil)
	_ fs.NodeSymlinker     = (*Node)(nil)
	_ fs.NodeRenamer       = (*Node)(nil)
	_ fs.NodeLinker        = (*Node)(nil)
	_ fs.NodeCreater       = (*Node)(nil)
	_ fs.NodeOpener        = (*Node)(nil)
	_ fs.NodeGetxattrer    = (*Node)(nil)
	_ fs.NodeSetxattrer    = (*Node)(nil)
	_ fs.NodeListxattrer   = (*Node)(nil)
	_ fs.NodeRemovexattrer = (*Node)(nil)
	_ fs.NodeStatfser      = (*Node)(nil)
)

func (n *Node) child(name string) string {
	if n.logicalPath == "" {
		return name
	}
	return path.Join(n.logicalPath, name)
}

func (n *Node) newChild(ctx context.Context, logicalPath string, fi os.FileInfo, out *fuse.EntryOut) *fs.Inode {
	mode := uint32(fuse.S_IFREG)
	if fi != nil {
		switch {
		case fi.IsDir():
			mode = fuse.S_IFDIR
		case fi.Mode()&os.ModeSymlink != 0:
			mode = fuse.S_IFLNK
		}
		fillAttrOut(fi, &out.Attr)
	}
	child := &Node{fsys: n.fsys, logicalPath: logicalPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode})
}

func fillAttrOut(fi os.FileInfo, out *fuse.Attr) {
	out.Size = uint64(fi.Size())
	out.Mode = uint32(fi.Mode().Perm())
	switch {
	case fi.IsDir():
		out.Mode |= fuse.S_IFDIR
	case fi.Mode()&os.ModeSymlink != 0:
		out.Mode |= fuse.S_IFLNK
	default:
		out.Mode |= fuse.S_IFREG
	}
	mtime := fi.ModTime()
	out.SetTimes(nil, &mtime, nil)
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		out.Uid = st.Uid
		out.Gid = st.Gid
		out.Nlink = uint32(st.Nlink)
	}
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logicalPath := n.child(name)
	_, fi, err := n.fsys.core.Getattr(logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	return n.newChild(ctx, logicalPath, fi, out), 0
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	_, fi, err := n.fsys.core.Getattr(n.logicalPath)
	if err != nil {
		return errnoOf(err)
	}
	fillAttrOut(fi, &out.Attr)
	return 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if mode, ok := in.GetMode(); ok {
		if err := n.fsys.core.Chmod(n.logicalPath, os.FileMode(mode).Perm()); err != nil {
			return errnoOf(err)
		}
	}
	uid, hasUID := in.GetUID()
	gid, hasGID := in.GetGID()
	if hasUID || hasGID {
		u, g := -1, -1
		if hasUID {
			u = int(uid)
		}
		if hasGID {
			g = int(gid)
		}
		if err := n.fsys.core.Chown(n.logicalPath, u, g); err != nil {
			return errnoOf(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if err := n.fsys.core.Truncate(n.logicalPath, int64(size)); err != nil {
			return errnoOf(err)
		}
	}
	if atime, ok := in.GetATime(); ok {
		mtime, ok2 := in.GetMTime()
		if !ok2 {
			mtime = atime
		}
		if err := n.fsys.core.Utimens(n.logicalPath, atime, mtime); err != nil {
			return errnoOf(err)
		}
	}
	return n.Getattr(ctx, f, out)
}

func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	return errnoOf(n.fsys.core.Access(n.logicalPath))
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.fsys.core.Readlink(n.logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	return []byte(target), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fsys.core.Readdir(n.logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logicalPath := n.child(name)
	if err := n.fsys.core.Mkdir(logicalPath, os.FileMode(mode).Perm()); err != nil {
		return nil, errnoOf(err)
	}
	_, fi, err := n.fsys.core.Getattr(logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	return n.newChild(ctx, logicalPath, fi, out), 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.core.Rmdir(n.child(name)))
}

func (n *Node) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logicalPath := n.child(name)
	if err := n.fsys.core.Mknod(logicalPath, os.FileMode(mode), uint64(dev)); err != nil {
		return nil, errnoOf(err)
	}
	_, fi, err := n.fsys.core.Getattr(logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	return n.newChild(ctx, logicalPath, fi, out), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.core.Unlink(n.child(name)))
}

func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logicalPath := n.child(name)
	if err := n.fsys.core.Symlink(target, logicalPath); err != nil {
		return nil, errnoOf(err)
	}
	_, fi, err := n.fsys.core.Getattr(logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	return n.newChild(ctx, logicalPath, fi, out), 0
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	return errnoOf(n.fsys.core.Rename(n.child(name), newNode.child(newName)))
}

func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	targetNode, ok := target.(*Node)
	if !ok {
		return nil, syscall.EXDEV
	}
	logicalPath := n.child(name)
	if err := n.fsys.core.Link(targetNode.logicalPath, logicalPath); err != nil {
		return nil, errnoOf(err)
	}
	_, fi, err := n.fsys.core.Getattr(logicalPath)
	if err != nil {
		return nil, errnoOf(err)
	}
	return n.newChild(ctx, logicalPath, fi, out), 0
}

func (n *Node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	logicalPath := n.child(name)
	f, err := n.fsys.core.Create(logicalPath, int(flags), os.FileMode(mode).Perm())
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}
	_, fi, err := n.fsys.core.Getattr(logicalPath)
	if err != nil {
		f.Close()
		return nil, nil, 0, errnoOf(err)
	}
	child := n.newChild(ctx, logicalPath, fi, out)
	return child, &Handle{core: n.fsys.core, file: f}, 0, 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f, err := n.fsys.core.Open(n.logicalPath, int(flags))
	if err != nil {
		return nil, 0, errnoOf(err)
	}
	return &Handle{core: n.fsys.core, file: f}, 0, 0
}

func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	data, err := n.fsys.core.Getxattr(n.logicalPath, attr)
	if err != nil {
		return 0, errnoOf(err)
	}
	if len(dest) < len(data) {
		return uint32(len(data)), syscall.ERANGE
	}
	copy(dest, data)
	return uint32(len(data)), 0
}

func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	return errnoOf(n.fsys.core.Setxattr(n.logicalPath, attr, data, int(flags)))
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, err := n.fsys.core.Listxattr(n.logicalPath)
	if err != nil {
		return 0, errnoOf(err)
	}
	var size int
	for _, name := range names {
		size += len(name) + 1
	}
	if len(dest) < size {
		return uint32(size), syscall.ERANGE
	}
	off := 0
	for _, name := range names {
		off += copy(dest[off:], name)
		dest[off] = 0
		off++
	}
	return uint32(size), 0
}

func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return errnoOf(n.fsys.core.Removexattr(n.logicalPath, attr))
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	total, free, err := n.fsys.core.Statfs()
	if err != nil {
		return errnoOf(err)
	}
	const bsize = 4096
	out.Bsize = bsize
	out.Blocks = uint64(total) / bsize
	out.Bfree = uint64(free) / bsize
	out.Bavail = out.Bfree
	out.NameLen = 255
	return 0
}

// Handle is an open file's FUSE handle. It holds an *os.File against
// whichever tier the file was resolved to at open time; if a migration
// moves the file afterward, this handle stays valid against the old,
// unlinked-but-open inode (spec §4.6).
type Handle struct {
	core *Core
	file *os.File
}

var (
	_ fs.FileReader    = (*Handle)(nil)
	_ fs.FileWriter    = (*Handle)(nil)
	_ fs.FileFlusher   = (*Handle)(nil)
	_ fs.FileReleaser  = (*Handle)(nil)
	_ fs.FileFsyncer   = (*Handle)(nil)
	_ fs.FileAllocater = (*Handle)(nil)
)

func (h *Handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.core.Read(h.file, dest, off)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *Handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.core.Write(h.file, data, off)
	if err != nil {
		return 0, errnoOf(err)
	}
	return uint32(n), 0
}

func (h *Handle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (h *Handle) Release(ctx context.Context) syscall.Errno {
	return errnoOf(h.file.Close())
}

func (h *Handle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return errnoOf(h.file.Sync())
}

func (h *Handle) Allocate(ctx context.Context, off, size uint64, mode uint32) syscall.Errno {
	return errnoOf(fallocate(h.file, int64(off), int64(size)))
}

// copyFileRange and lseek (spec §6's I/O group) are served by the kernel's
// generic fallback (read+write, SEEK_DATA/SEEK_HOLE over regular files)
// when a FileHandle doesn't implement FileCopyFileRanger/FileLseeker;
// autotier's backing files are always regular files on a real local
// filesystem, so the fallback is exact, not an approximation.
