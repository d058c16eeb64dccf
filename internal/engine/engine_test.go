package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/circuit"
	"github.com/autotier/autotier/internal/health"
	"github.com/autotier/autotier/internal/metrics"
	"github.com/autotier/autotier/internal/migration"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/resolver"
	"github.com/autotier/autotier/internal/tier"
)

func newTestEngine(t *testing.T, watermarks ...int) (*Engine, []*tier.Tier) {
	t.Helper()
	breakers := circuit.NewManager(circuit.Config{})
	tracker := health.NewTracker(health.DefaultConfig())
	tiers := make([]*tier.Tier, len(watermarks))
	for i, wm := range watermarks {
		tiers[i] = tier.New(string(rune('a'+i)), t.TempDir(), wm, breakers, zap.NewNop())
		tracker.Register(tiers[i].ID)
	}
	res := resolver.New(tiers, zap.NewNop())
	migrator := migration.New(migration.Config{}, zap.NewNop())
	e := New(res, migrator, pin.New(), metrics.NewCollector(), tracker, 0, false, zap.NewNop())
	return e, tiers
}

func TestTickEvictsColdFileToSlowerTier(t *testing.T) {
	t.Parallel()

	e, tiers := newTestEngine(t, 50, 100)

	// Write two ~3MB files so one must be evicted under a tight watermark.
	writeFile(t, tiers[0].BackingPath("old.bin"), 3<<20)
	writeFile(t, tiers[0].BackingPath("new.bin"), 3<<20)

	// Make old.bin look colder by backdating its atime/mtime.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(tiers[0].BackingPath("old.bin"), old, old); err != nil {
		t.Fatal(err)
	}

	if err := tiers[0].Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	// Force a tight watermark so eviction is required regardless of the
	// temp filesystem's real capacity.
	tiers[0].WatermarkBytes = 4 << 20

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if _, err := os.Stat(tiers[0].BackingPath("old.bin")); !os.IsNotExist(err) {
		t.Errorf("old.bin still on fast tier after tick")
	}
	if _, err := os.Stat(tiers[1].BackingPath("old.bin")); err != nil {
		t.Errorf("old.bin not found on slow tier after tick: %v", err)
	}
	if _, err := os.Stat(tiers[0].BackingPath("new.bin")); err != nil {
		t.Errorf("new.bin unexpectedly moved off fast tier: %v", err)
	}
}

func TestTickIsIdempotentWithNoChurn(t *testing.T) {
	t.Parallel()

	e, tiers := newTestEngine(t, 100, 100)
	writeFile(t, tiers[0].BackingPath("a.bin"), 1<<10)

	if err := tiers[0].Refresh(); err != nil {
		t.Fatal(err)
	}
	tiers[0].WatermarkBytes = 1 << 30

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick() error = %v", err)
	}
	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if _, err := os.Stat(tiers[0].BackingPath("a.bin")); err != nil {
		t.Errorf("a.bin moved unexpectedly across idempotent ticks: %v", err)
	}
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}
