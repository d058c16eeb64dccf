package fusefs

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/circuit"
	"github.com/autotier/autotier/internal/health"
	"github.com/autotier/autotier/internal/metrics"
	"github.com/autotier/autotier/internal/migration"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/resolver"
	"github.com/autotier/autotier/internal/tier"
)

func newTestCore(t *testing.T, watermarks ...int) (*Core, []*tier.Tier) {
	t.Helper()
	breakers := circuit.NewManager(circuit.Config{})
	tracker := health.NewTracker(health.DefaultConfig())
	tiers := make([]*tier.Tier, len(watermarks))
	for i, wm := range watermarks {
		tiers[i] = tier.New(string(rune('a'+i)), t.TempDir(), wm, breakers, zap.NewNop())
		tracker.Register(tiers[i].ID)
		if err := tiers[i].Refresh(); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}
	res := resolver.New(tiers, zap.NewNop())
	migrator := migration.New(migration.Config{}, zap.NewNop())
	core := New(res, migrator, pin.New(), metrics.NewCollector(), zap.NewNop())
	return core, tiers
}

func TestGetattrFindsFileAcrossTiers(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)

	if err := os.WriteFile(tiers[1].BackingPath("a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, fi, err := core.Getattr("a.txt")
	if err != nil {
		t.Fatalf("Getattr() error = %v", err)
	}
	if fi.Size() != 2 {
		t.Errorf("Size() = %d, want 2", fi.Size())
	}
}

func TestGetattrNotFoundReturnsENOENT(t *testing.T) {
	t.Parallel()
	core, _ := newTestCore(t, 100, 100)

	_, _, err := core.Getattr("missing.txt")
	if !os.IsNotExist(err) {
		t.Errorf("Getattr() error = %v, want IsNotExist", err)
	}
}

func TestReaddirUnionsEveryTier(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)

	mustWrite(t, tiers[0].BackingPath("fast.txt"), "f")
	mustWrite(t, tiers[1].BackingPath("slow.txt"), "s")
	// Same name on both tiers: higher-priority tier's entry should win.
	mustWrite(t, tiers[0].BackingPath("shared.txt"), "a")
	mustWrite(t, tiers[1].BackingPath("shared.txt"), "b")

	entries, err := core.Readdir("")
	if err != nil {
		t.Fatalf("Readdir() error = %v", err)
	}

	byName := make(map[string]DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	if len(byName) != 3 {
		t.Fatalf("len(entries) = %d, want 3: %+v", len(byName), entries)
	}
	for _, want := range []string{"fast.txt", "slow.txt", "shared.txt"} {
		if _, ok := byName[want]; !ok {
			t.Errorf("missing entry %q", want)
		}
	}
}

func TestReaddirTypeConflictKeepsHigherPriorityEntry(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)

	mustWrite(t, tiers[0].BackingPath("thing"), "a")
	if err := os.Mkdir(tiers[1].BackingPath("thing"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := core.Readdir("")
	if err != nil {
		t.Fatalf("Readdir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1: %+v", len(entries), entries)
	}
	if entries[0].IsDir {
		t.Errorf("entries[0].IsDir = true, want the fast tier's regular-file entry to win")
	}
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)

	f, err := core.Create("dir/file.bin", os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	if _, err := core.Write(f, []byte("hello"), 0); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 5)
	n, err := core.Read(f, buf, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("Read() = %q, want %q", buf[:n], "hello")
	}

	if _, err := os.Stat(tiers[0].BackingPath("dir/file.bin")); err != nil {
		t.Errorf("new file not created on the fastest tier: %v", err)
	}
}

func TestRenameSameTierIsPlainRename(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)
	mustWrite(t, tiers[0].BackingPath("old.txt"), "x")

	if err := core.Rename("old.txt", "new.txt"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if _, err := os.Stat(tiers[0].BackingPath("old.txt")); !os.IsNotExist(err) {
		t.Errorf("old.txt still present after rename")
	}
	if _, err := os.Stat(tiers[0].BackingPath("new.txt")); err != nil {
		t.Errorf("new.txt missing after rename: %v", err)
	}
}

func TestRenameAcrossTiersMigratesInline(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)
	mustWrite(t, tiers[0].BackingPath("src.txt"), "payload")
	// Destination's parent directory already exists only on the slow tier,
	// so destinationTierFor should pick tiers[1] and migrate src.txt there.
	if err := os.MkdirAll(tiers[1].BackingPath("archive"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := core.Rename("src.txt", "archive/dst.txt"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if _, err := os.Stat(tiers[0].BackingPath("src.txt")); !os.IsNotExist(err) {
		t.Errorf("src.txt still present on the source tier after cross-tier rename")
	}
	data, err := os.ReadFile(tiers[1].BackingPath("archive/dst.txt"))
	if err != nil {
		t.Fatalf("reading migrated file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("migrated file contents = %q, want %q", data, "payload")
	}
}

func TestSymlinkStoresLiteralTargetUnresolved(t *testing.T) {
	t.Parallel()
	core, _ := newTestCore(t, 100, 100)

	const target = "../nonexistent/target/never/resolved"
	if err := core.Symlink(target, "link"); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	got, err := core.Readlink("link")
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}
	if got != target {
		t.Errorf("Readlink() = %q, want literal %q", got, target)
	}
}

func TestUnlinkNotFoundReturnsENOENT(t *testing.T) {
	t.Parallel()
	core, _ := newTestCore(t, 100, 100)

	if err := core.Unlink("nope.txt"); !os.IsNotExist(err) {
		t.Errorf("Unlink() error = %v, want IsNotExist", err)
	}
}

func TestRmdirRemovesFromEveryTier(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)
	if err := os.Mkdir(tiers[0].BackingPath("d"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(tiers[1].BackingPath("d"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := core.Rmdir("d"); err != nil {
		t.Fatalf("Rmdir() error = %v", err)
	}
	for i, tr := range tiers {
		if _, err := os.Stat(tr.BackingPath("d")); !os.IsNotExist(err) {
			t.Errorf("tier %d still has directory d after Rmdir", i)
		}
	}
}

func TestStatfsSumsAcrossTiers(t *testing.T) {
	t.Parallel()
	core, tiers := newTestCore(t, 100, 100)

	total, free, err := core.Statfs()
	if err != nil {
		t.Fatalf("Statfs() error = %v", err)
	}
	wantTotal := tiers[0].CapacityBytes + tiers[1].CapacityBytes
	if total != wantTotal {
		t.Errorf("total = %d, want %d", total, wantTotal)
	}
	if free <= 0 {
		t.Errorf("free = %d, want > 0", free)
	}
}

func mustWrite(t *testing.T, backingPath, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(backingPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(backingPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}
