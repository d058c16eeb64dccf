// Package migration implements the Migration Primitive (spec §4.3): moving
// one file between two tiers, preferring an atomic rename and falling back
// to a stream-copy (throttled when Config.Limiter is set) when the tiers are
// on different filesystems.
package migration

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	autoerrors "github.com/autotier/autotier/pkg/errors"
	"github.com/autotier/autotier/pkg/retry"
)

// Config controls copy throttling and buffer sizing for stream-copy moves.
type Config struct {
	// BufferSize is bytes moved per read()/write() call (spec §6, the
	// config file's "Copy Buffer Size").
	BufferSize int64
	// Limiter throttles aggregate copy throughput across all migrations;
	// nil disables throttling.
	Limiter *rate.Limiter
}

// Migrator moves files between tiers.
type Migrator struct {
	config  Config
	retryer *retry.Retryer
	log     *zap.Logger
}

// New creates a Migrator.
func New(config Config, log *zap.Logger) *Migrator {
	if config.BufferSize <= 0 {
		config.BufferSize = 1 << 20
	}
	return &Migrator{config: config, retryer: retry.New(retry.DefaultConfig()), log: log}
}

// Migrate moves the file at srcPath to dstPath, preserving metadata, per
// the five-step algorithm in spec §4.3. srcPath and dstPath are absolute
// backing paths already resolved by the caller (the tier engine).
func (m *Migrator) Migrate(ctx context.Context, srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return autoerrors.New(autoerrors.ErrCodeMigrationFailed, "failed to create destination parent directory").
			WithComponent("migration").WithOperation("mkdir").WithCause(err)
	}
	if err := mirrorParentMode(srcPath, dstPath); err != nil {
		m.log.Warn("migration: failed to mirror parent directory mode", zap.Error(err))
	}

	renamed, err := m.tryRename(srcPath, dstPath)
	if err != nil {
		return err
	}
	if renamed {
		// A same-filesystem rename already moved the inode atomically —
		// metadata travels with it and the source is already gone.
		pruneIfEmpty(filepath.Dir(srcPath))
		return nil
	}

	if err := m.streamCopy(ctx, srcPath, dstPath); err != nil {
		return err
	}
	if err := preserveMetadata(srcPath, dstPath); err != nil {
		m.log.Warn("migration: failed to preserve all metadata", zap.String("dst", dstPath), zap.Error(err))
	}
	if err := os.Remove(srcPath); err != nil {
		return autoerrors.New(autoerrors.ErrCodeMigrationPartial,
			"destination in place but source unlink failed, uniqueness invariant violated until next tick").
			WithComponent("migration").WithOperation("unlink").WithCause(err)
	}

	pruneIfEmpty(filepath.Dir(srcPath))
	return nil
}

// tryRename attempts an atomic rename when src and dst share a device,
// reporting (true, nil) on success and (false, nil) when it should fall
// back to a stream-copy because the tiers are on different filesystems.
func (m *Migrator) tryRename(srcPath, dstPath string) (bool, error) {
	err := os.Rename(srcPath, dstPath)
	if err == nil {
		return true, nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		return false, nil
	}
	return false, autoerrors.New(autoerrors.ErrCodeMigrationFailed, "rename failed").
		WithComponent("migration").WithOperation("rename").WithCause(err)
}

// streamCopy copies srcPath to a temporary sibling of dstPath, fsyncs, then
// renames it into place, retrying the whole copy on transient I/O errors.
func (m *Migrator) streamCopy(ctx context.Context, srcPath, dstPath string) error {
	tmpPath := dstPath + ".autotier.tmp"

	err := m.retryer.Do(ctx, func(ctx context.Context) error {
		if copyErr := m.copyOnce(srcPath, tmpPath); copyErr != nil {
			os.Remove(tmpPath)
			return autoerrors.New(autoerrors.ErrCodeMigrationFailed, "stream copy failed").
				WithComponent("migration").WithOperation("stream-copy").WithCause(copyErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return autoerrors.New(autoerrors.ErrCodeMigrationFailed, "rename of temporary copy failed").
			WithComponent("migration").WithOperation("rename-temp").WithCause(err)
	}
	return nil
}

func (m *Migrator) copyOnce(srcPath, tmpPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	buf := make([]byte, m.config.BufferSize)
	var reader io.Reader = src
	if m.config.Limiter != nil {
		reader = &throttledReader{r: src, limiter: m.config.Limiter}
	}
	if _, err := io.CopyBuffer(dst, reader, buf); err != nil {
		return err
	}
	return dst.Sync()
}

// throttledReader waits for the rate limiter before every Read so stream
// copies don't saturate a shared backing device during a large migration.
type throttledReader struct {
	r       io.Reader
	limiter *rate.Limiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		_ = t.limiter.WaitN(context.Background(), min(n, t.limiter.Burst()))
	}
	return n, err
}

func pruneIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		return
	}
	_ = os.Remove(dir)
}

func mirrorParentMode(srcPath, dstPath string) error {
	srcInfo, err := os.Stat(filepath.Dir(srcPath))
	if err != nil {
		return err
	}
	return os.Chmod(filepath.Dir(dstPath), srcInfo.Mode().Perm())
}
