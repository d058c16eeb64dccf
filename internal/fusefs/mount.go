//go:build !cgofuse

package fusefs

import (
	"fmt"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"
)

// Mount attaches the union filesystem at mountpoint using go-fuse. The
// zero cache timeouts implement the init hook's requirement (spec §6:
// "sets cache timeouts to zero so lower-FS changes are immediately
// visible") since every backing tier can be mutated by the tiering task
// between kernel-visible lookups.
func Mount(core *Core, mountpoint string, opts MountOptions, log *zap.Logger) (*MountHandle, error) {
	zero := time.Duration(0)

	mountOpts := fuse.MountOptions{
		FsName:     opts.FSName,
		Name:       "autotier",
		AllowOther: opts.AllowOther,
		Debug:      opts.Debug,
	}
	if opts.ReadOnly {
		mountOpts.Options = append(mountOpts.Options, "ro")
	}

	server, err := fs.Mount(mountpoint, NewFS(core).Root(), &fs.Options{
		MountOptions:    mountOpts,
		EntryTimeout:    &zero,
		AttrTimeout:     &zero,
		NegativeTimeout: &zero,
	})
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
	}

	log.Info("fusefs: mounted", zap.String("mountpoint", mountpoint))
	return &MountHandle{wait: server.Wait, unmount: server.Unmount}, nil
}
