// Package types holds the value types shared across autotier's tier,
// resolver, policy, migration, and filesystem packages, mirroring the role
// the teacher's own pkg/types plays for its backend/cache/buffer contracts.
package types

import "time"

// FileRecord is a policy-time snapshot of one file, built during a tick's
// enumeration pass and discarded at the end of that tick (spec §3).
type FileRecord struct {
	// LogicalPath is relative to every tier's backing root.
	LogicalPath string
	// TierIndex is the position of the tier currently holding the file.
	TierIndex int
	Size       int64
	ATime      time.Time
	// Popularity is a decreasing-is-colder ranking score derived from ATime;
	// ties are broken by Size (larger first).
	Popularity float64
	// Pinned files are excluded from ranking and eviction (SPEC_FULL §3).
	Pinned     bool
	PinnedTier int
}

// MigrationPlanEntry is one planned move, emitted by the Policy Engine and
// consumed by the Tier Engine (spec §3).
type MigrationPlanEntry struct {
	LogicalPath string
	SrcTier     int
	DstTier     int
	Size        int64
}

// TierStatus is a point-in-time snapshot of one tier's capacity state, used
// by the ad hoc control plane's `status` command.
type TierStatus struct {
	ID             string  `json:"id"`
	Path           string  `json:"path"`
	Watermark      int     `json:"watermark"`
	CapacityBytes  int64   `json:"capacity_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	WatermarkBytes int64   `json:"watermark_bytes"`
	UsageRatio     float64 `json:"usage_ratio"`
	Health         string  `json:"health"`
}
