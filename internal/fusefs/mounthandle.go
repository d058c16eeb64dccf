package fusefs

// MountOptions configures the mount call's kernel-visible behavior; engine
// options (config path, foreground, verbosity) live one layer up in the
// CLI, per spec §6's split between the mount command's surface and the
// engine options passed through it.
type MountOptions struct {
	FSName     string
	AllowOther bool
	ReadOnly   bool
	Debug      bool
}

// MountHandle is returned by Mount, uniform across the go-fuse and cgofuse
// transports so cmd/autotierfs needs no build tag of its own.
type MountHandle struct {
	wait    func()
	unmount func() error
}

// Wait blocks until the mount is torn down, by the kernel or by Unmount.
func (h *MountHandle) Wait() {
	h.wait()
}

// Unmount detaches the filesystem.
func (h *MountHandle) Unmount() error {
	return h.unmount()
}
