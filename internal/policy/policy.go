// Package policy implements the Policy Engine (spec §4.4): ranking files by
// popularity and greedily assigning them to tiers within each tier's
// watermark budget.
package policy

import (
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/tier"
	"github.com/autotier/autotier/pkg/types"
)

// Rank sorts files by decreasing popularity (more recent access time first),
// breaking ties by larger size first — moving one large file is cheaper
// than many small ones (spec §4.4).
func Rank(files []types.FileRecord) []types.FileRecord {
	ranked := make([]types.FileRecord, len(files))
	copy(ranked, files)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Popularity != ranked[j].Popularity {
			return ranked[i].Popularity > ranked[j].Popularity
		}
		return ranked[i].Size > ranked[j].Size
	})
	return ranked
}

// Plan computes a migration plan placing every non-pinned file into a tier
// within that tier's watermark budget, most popular files landing on the
// fastest tiers first (spec §4.4). Pinned files are excluded from ranking
// and eviction entirely (SPEC_FULL §3) and never appear in the plan.
func Plan(tiers []*tier.Tier, files []types.FileRecord, log *zap.Logger) []types.MigrationPlanEntry {
	pool := lo.Filter(files, func(f types.FileRecord, _ int) bool {
		return !f.Pinned
	})
	pool = Rank(pool)

	assignment := make(map[string]int, len(pool))
	remaining := pool

	for i, t := range tiers {
		last := i == len(tiers)-1
		var admitted, deferred []types.FileRecord
		var used int64

		for _, f := range remaining {
			if last {
				used += f.Size
				admitted = append(admitted, f)
				continue
			}
			if used+f.Size <= t.WatermarkBytes {
				used += f.Size
				admitted = append(admitted, f)
			} else {
				deferred = append(deferred, f)
			}
		}
		if last && len(admitted) > 0 && used > t.WatermarkBytes {
			log.Warn("policy: final tier exceeds watermark, overflow accepted",
				zap.String("tier", t.ID), zap.Int64("used_bytes", used), zap.Int64("watermark_bytes", t.WatermarkBytes))
		}

		for _, f := range admitted {
			assignment[f.LogicalPath] = i
		}
		remaining = deferred
	}

	plan := lo.FilterMap(files, func(f types.FileRecord, _ int) (types.MigrationPlanEntry, bool) {
		if f.Pinned {
			return types.MigrationPlanEntry{}, false
		}
		dst, ok := assignment[f.LogicalPath]
		if !ok || dst == f.TierIndex {
			return types.MigrationPlanEntry{}, false
		}
		return types.MigrationPlanEntry{
			LogicalPath: f.LogicalPath,
			SrcTier:     f.TierIndex,
			DstTier:     dst,
			Size:        f.Size,
		}, true
	})

	sort.SliceStable(plan, func(i, j int) bool {
		iDown := plan[i].SrcTier < plan[i].DstTier
		jDown := plan[j].SrcTier < plan[j].DstTier
		if iDown != jDown {
			return iDown
		}
		return false
	})

	return plan
}
