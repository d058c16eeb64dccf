package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/circuit"
	"github.com/autotier/autotier/internal/engine"
	"github.com/autotier/autotier/internal/health"
	"github.com/autotier/autotier/internal/metrics"
	"github.com/autotier/autotier/internal/migration"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/resolver"
	"github.com/autotier/autotier/internal/tier"
)

func newTestServer(t *testing.T) (*Server, []*tier.Tier, string) {
	t.Helper()
	breakers := circuit.NewManager(circuit.Config{})
	tracker := health.NewTracker(health.DefaultConfig())
	tiers := []*tier.Tier{
		tier.New("fast", t.TempDir(), 80, breakers, zap.NewNop()),
		tier.New("slow", t.TempDir(), 80, breakers, zap.NewNop()),
	}
	for _, ti := range tiers {
		tracker.Register(ti.ID)
		if err := ti.Refresh(); err != nil {
			t.Fatal(err)
		}
	}
	res := resolver.New(tiers, zap.NewNop())
	migrator := migration.New(migration.Config{}, zap.NewNop())
	pins := pin.New()
	eng := engine.New(res, migrator, pins, metrics.NewCollector(), tracker, 0, false, zap.NewNop())

	sockPath := filepath.Join(t.TempDir(), "adhoc.socket")
	return New(sockPath, eng, res, pins, tracker, zap.NewNop()), tiers, sockPath
}

func roundTrip(t *testing.T, sockPath string, req Request) Response {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial control socket: %v", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		t.Fatalf("encode request: %v", err)
	}

	var resp Response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestStatusReturnsAllTiers(t *testing.T) {
	t.Parallel()

	s, _, sockPath := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ListenAndServe(ctx)

	resp := roundTrip(t, sockPath, Request{Command: "status"})
	if !resp.OK {
		t.Fatalf("status returned error: %s", resp.Error)
	}
	if len(resp.Tiers) != 2 {
		t.Fatalf("len(Tiers) = %d, want 2", len(resp.Tiers))
	}
}

func TestWhichTierNotFound(t *testing.T) {
	t.Parallel()

	s, _, sockPath := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ListenAndServe(ctx)

	resp := roundTrip(t, sockPath, Request{Command: "whichtier", Path: "nope.txt"})
	if resp.OK {
		t.Fatal("whichtier on missing file returned OK")
	}
}

func TestPinUnpinAndListPins(t *testing.T) {
	t.Parallel()

	s, tiers, sockPath := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ListenAndServe(ctx)

	backing := tiers[0].BackingPath("keep.txt")
	if err := os.WriteFile(backing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	pinResp := roundTrip(t, sockPath, Request{Command: "pin", Path: "keep.txt", Tier: tiers[0].ID})
	if !pinResp.OK {
		t.Skipf("pin unsupported on this filesystem: %s", pinResp.Error)
	}

	listResp := roundTrip(t, sockPath, Request{Command: "list-pins"})
	if !listResp.OK {
		t.Fatalf("list-pins returned error: %s", listResp.Error)
	}
	found := false
	for _, p := range listResp.Pins {
		if p == "keep.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("list-pins = %v, want to contain keep.txt", listResp.Pins)
	}

	unpinResp := roundTrip(t, sockPath, Request{Command: "unpin", Path: "keep.txt"})
	if !unpinResp.OK {
		t.Fatalf("unpin returned error: %s", unpinResp.Error)
	}
}

func TestPinUnknownTierReturnsError(t *testing.T) {
	t.Parallel()

	s, tiers, sockPath := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ListenAndServe(ctx)

	backing := tiers[0].BackingPath("keep.txt")
	if err := os.WriteFile(backing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := roundTrip(t, sockPath, Request{Command: "pin", Path: "keep.txt", Tier: "nonexistent"})
	if resp.OK {
		t.Fatal("pin to an unknown tier returned OK")
	}
}

func TestOneshotTriggersATick(t *testing.T) {
	t.Parallel()

	s, _, sockPath := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ListenAndServe(ctx)

	resp := roundTrip(t, sockPath, Request{Command: "oneshot"})
	if !resp.OK {
		t.Fatalf("oneshot returned error: %s", resp.Error)
	}
}

func TestOneshotReturnsBusyOnContentionRatherThanBlocking(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)

	if !s.engine.TryLock() {
		t.Fatal("TryLock() = false on an idle engine")
	}
	defer s.engine.Unlock()

	resp := s.oneshot()
	if resp.OK {
		t.Fatal("oneshot() = OK while the tick mutex was already held")
	}
	if resp.Error != "tick already in progress" {
		t.Errorf("oneshot() error = %q, want %q", resp.Error, "tick already in progress")
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	t.Parallel()

	s, _, sockPath := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ListenAndServe(ctx)

	resp := roundTrip(t, sockPath, Request{Command: "bogus"})
	if resp.OK {
		t.Fatal("unknown command returned OK")
	}
}
