package policy

import (
	"testing"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/circuit"
	"github.com/autotier/autotier/internal/tier"
	"github.com/autotier/autotier/pkg/types"
)

func makeTiers(t *testing.T, watermarkBytes ...int64) []*tier.Tier {
	t.Helper()
	mgr := circuit.NewManager(circuit.Config{})
	tiers := make([]*tier.Tier, len(watermarkBytes))
	for i, wb := range watermarkBytes {
		tr := tier.New(string(rune('a'+i)), t.TempDir(), 100, mgr, zap.NewNop())
		tr.CapacityBytes = wb
		tr.WatermarkBytes = wb
		tiers[i] = tr
	}
	return tiers
}

func TestRankOrdersByPopularityThenSize(t *testing.T) {
	t.Parallel()

	files := []types.FileRecord{
		{LogicalPath: "old-small", Popularity: 1, Size: 10},
		{LogicalPath: "new-small", Popularity: 3, Size: 10},
		{LogicalPath: "new-big", Popularity: 3, Size: 100},
	}
	ranked := Rank(files)
	if ranked[0].LogicalPath != "new-big" {
		t.Errorf("ranked[0] = %q, want new-big (tie broken by size)", ranked[0].LogicalPath)
	}
	if ranked[1].LogicalPath != "new-small" {
		t.Errorf("ranked[1] = %q, want new-small", ranked[1].LogicalPath)
	}
	if ranked[2].LogicalPath != "old-small" {
		t.Errorf("ranked[2] = %q, want old-small", ranked[2].LogicalPath)
	}
}

func TestPlanEvictsColdestFileWhenOverWatermark(t *testing.T) {
	t.Parallel()

	tiers := makeTiers(t, 50, 1000)
	files := []types.FileRecord{
		{LogicalPath: "a", TierIndex: 0, Size: 30, Popularity: 100}, // newer
		{LogicalPath: "b", TierIndex: 0, Size: 30, Popularity: 200}, // newest
	}
	plan := Plan(tiers, files, zap.NewNop())
	if len(plan) != 1 {
		t.Fatalf("len(plan) = %d, want 1", len(plan))
	}
	if plan[0].LogicalPath != "a" {
		t.Errorf("evicted = %q, want a (the colder file)", plan[0].LogicalPath)
	}
	if plan[0].SrcTier != 0 || plan[0].DstTier != 1 {
		t.Errorf("plan[0] = %+v, want src=0 dst=1", plan[0])
	}
}

func TestPlanPromotesRecentlyAccessedFile(t *testing.T) {
	t.Parallel()

	tiers := makeTiers(t, 1000, 1000)
	files := []types.FileRecord{
		{LogicalPath: "a", TierIndex: 1, Size: 30, Popularity: 999},
	}
	plan := Plan(tiers, files, zap.NewNop())
	if len(plan) != 1 {
		t.Fatalf("len(plan) = %d, want 1", len(plan))
	}
	if plan[0].SrcTier != 1 || plan[0].DstTier != 0 {
		t.Errorf("plan[0] = %+v, want promotion src=1 dst=0", plan[0])
	}
}

func TestPlanNoMigrationsWhenAlreadySettled(t *testing.T) {
	t.Parallel()

	tiers := makeTiers(t, 1000, 1000)
	files := []types.FileRecord{
		{LogicalPath: "a", TierIndex: 0, Size: 30, Popularity: 5},
	}
	plan := Plan(tiers, files, zap.NewNop())
	if len(plan) != 0 {
		t.Fatalf("len(plan) = %d, want 0", len(plan))
	}
}

func TestPlanSkipsPinnedFiles(t *testing.T) {
	t.Parallel()

	tiers := makeTiers(t, 10, 1000)
	files := []types.FileRecord{
		{LogicalPath: "a", TierIndex: 0, Size: 30, Popularity: 1, Pinned: true},
	}
	plan := Plan(tiers, files, zap.NewNop())
	if len(plan) != 0 {
		t.Fatalf("len(plan) = %d, want 0 (pinned files never move)", len(plan))
	}
}

func TestPlanOrdersDownwardMovesBeforeUpward(t *testing.T) {
	t.Parallel()

	tiers := makeTiers(t, 20, 1000)
	files := []types.FileRecord{
		// currently on the fast tier but cold: gets evicted (downward).
		{LogicalPath: "cold-on-fast", TierIndex: 0, Size: 20, Popularity: 1},
		// currently on the slow tier but hot: gets promoted (upward).
		{LogicalPath: "hot-on-slow", TierIndex: 1, Size: 20, Popularity: 100},
	}
	plan := Plan(tiers, files, zap.NewNop())
	if len(plan) != 2 {
		t.Fatalf("len(plan) = %d, want 2", len(plan))
	}
	if !(plan[0].SrcTier < plan[0].DstTier) {
		t.Errorf("plan[0] = %+v, want a downward move first", plan[0])
	}
	if !(plan[1].SrcTier > plan[1].DstTier) {
		t.Errorf("plan[1] = %+v, want an upward move second", plan[1])
	}
}
