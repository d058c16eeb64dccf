// Package resolver implements the Path Resolver (spec §4.2): given a
// logical path, find which tier currently holds it, and pick a tier for a
// newly created path.
package resolver

import (
	"os"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/tier"
)

// NotFound is returned as the tier index by Resolve when no tier holds the
// path, so callers short-circuit to -ENOENT without ever touching a
// syscall with an empty path (Design Note, Open Question 2).
const NotFound = -1

// Resolver finds which tier holds a logical path. The tier list is
// read-only after construction (spec §5): only its membership is fixed,
// per-tier UsedBytes/CapacityBytes are refreshed in place by the engine.
type Resolver struct {
	tiers []*tier.Tier
	log   *zap.Logger
}

// New creates a Resolver over tiers in priority order, fastest first.
func New(tiers []*tier.Tier, log *zap.Logger) *Resolver {
	return &Resolver{tiers: tiers, log: log}
}

// Tiers returns the resolver's tier list, exposed for the engine and
// control plane which need it read-only.
func (r *Resolver) Tiers() []*tier.Tier {
	return r.tiers
}

// Resolve returns the index of the highest-priority tier holding
// logicalPath as a regular file or symlink, and its absolute backing path.
// If more than one tier holds the path — an invariant violation, e.g. after
// an interrupted migration — the higher-priority tier wins and the
// duplicate is logged as an anomaly but never auto-deleted here (spec
// §4.2, §7.3); a cleanup pass is left for the next engine tick.
func (r *Resolver) Resolve(logicalPath string) (int, string) {
	found := NotFound
	var foundPath string

	for i, t := range r.tiers {
		backing := t.BackingPath(logicalPath)
		fi, err := os.Lstat(backing)
		if err != nil || fi.IsDir() {
			continue
		}
		if found == NotFound {
			found = i
			foundPath = backing
			continue
		}
		r.log.Warn("resolver: uniqueness invariant violated, path present on multiple tiers",
			zap.String("path", logicalPath),
			zap.Int("kept_tier", found), zap.Int("duplicate_tier", i))
	}
	return found, foundPath
}

// ResolveDir reports whether logicalPath exists as a directory on any tier.
func (r *Resolver) ResolveDir(logicalPath string) bool {
	for _, t := range r.tiers {
		fi, err := os.Lstat(t.BackingPath(logicalPath))
		if err == nil && fi.IsDir() {
			return true
		}
	}
	return false
}

// ResolveDirTier returns the index of the highest-priority tier holding
// logicalPath as a directory, or NotFound. Used by getattr/opendir on
// union directories, which need one concrete backing stat to report.
func (r *Resolver) ResolveDirTier(logicalPath string) int {
	for i, t := range r.tiers {
		fi, err := os.Lstat(t.BackingPath(logicalPath))
		if err == nil && fi.IsDir() {
			return i
		}
	}
	return NotFound
}

// ResolveForCreate picks the destination tier for a new path of the given
// size estimate. New files are born on the fastest tier (index 0); if it has
// no room for a file of the given size estimate, fall through to the next
// tier with headroom. A zero sizeBytes (unknown ahead of time, e.g. mkdir)
// only checks whether the tier is already over its watermark.
func (r *Resolver) ResolveForCreate(sizeBytes int64) int {
	for i, t := range r.tiers {
		if t.HasRoom(sizeBytes) {
			return i
		}
	}
	// No tier has room; still have to land somewhere. The last tier is the
	// designated overflow target (spec §4.4 rule 5).
	return len(r.tiers) - 1
}
