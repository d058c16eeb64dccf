//go:build cgofuse

package fusefs

import (
	"fmt"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"
)

// Mount attaches the union filesystem at mountpoint using cgofuse/WinFsp,
// for platforms (chiefly Windows) that go-fuse's kernel-module transport
// cannot reach.
func Mount(core *Core, mountpoint string, opts MountOptions, log *zap.Logger) (*MountHandle, error) {
	adapter := NewCgoFuseFS(core, log)
	host := fuse.NewFileSystemHost(adapter)
	host.SetCapReaddirPlus(true)

	var mountOpts []string
	if opts.FSName != "" {
		mountOpts = append(mountOpts, "-o", "fsname="+opts.FSName)
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, "-o", "allow_other")
	}
	if opts.ReadOnly {
		mountOpts = append(mountOpts, "-o", "ro")
	}

	done := make(chan struct{})
	ok := make(chan bool, 1)
	go func() {
		defer close(done)
		ok <- host.Mount(mountpoint, mountOpts)
	}()

	if mounted := <-ok; !mounted {
		return nil, fmt.Errorf("mount %s: cgofuse host reported failure", mountpoint)
	}

	log.Info("fusefs: mounted via cgofuse", zap.String("mountpoint", mountpoint))
	return &MountHandle{
		wait: func() { <-done },
		unmount: func() error {
			if !host.Unmount() {
				return fmt.Errorf("unmount %s failed", mountpoint)
			}
			return nil
		},
	}, nil
}
