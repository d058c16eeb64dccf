// Package engine implements the Tier Engine (spec §4.5): the periodic tick
// loop that refreshes tier state, asks the Policy Engine for a plan, and
// executes it through the Migration Primitive, one path at a time.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/autotier/autotier/internal/health"
	"github.com/autotier/autotier/internal/metrics"
	"github.com/autotier/autotier/internal/migration"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/policy"
	"github.com/autotier/autotier/internal/resolver"
	"github.com/autotier/autotier/internal/tier"
	"github.com/autotier/autotier/pkg/types"
)

// Engine owns the periodic tiering loop.
type Engine struct {
	resolver  *resolver.Resolver
	migrator  *migration.Migrator
	pins      *pin.Store
	metrics   *metrics.Collector
	health    *health.Tracker
	log       *zap.Logger
	period    time.Duration
	strict    bool

	// tickMu serializes whole ticks against the ad hoc control plane's
	// oneshot/status commands (spec §4.10) so the two never run concurrently.
	tickMu sync.Mutex

	// inFlight and inFlightMu implement the per-logical-path migration lock
	// as a short-held mutex over a set, not a per-path lock map (Design
	// Note 4): contention is negligible since only this loop's own
	// migrations ever touch it.
	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// New creates an Engine.
func New(res *resolver.Resolver, migrator *migration.Migrator, pins *pin.Store, coll *metrics.Collector, tracker *health.Tracker, period time.Duration, strict bool, log *zap.Logger) *Engine {
	return &Engine{
		resolver: res,
		migrator: migrator,
		pins:     pins,
		metrics:  coll,
		health:   tracker,
		period:   period,
		strict:   strict,
		log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// Run loops calling Tick every period until ctx is canceled. If period is
// <= 0, periodic ticking is disabled entirely (spec §6: only oneshot or the
// ad hoc socket drive a tick).
func (e *Engine) Run(ctx context.Context) {
	if e.period <= 0 {
		e.log.Info("engine: periodic tiering disabled (Tier Period <= 0)")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := e.Tick(ctx); err != nil {
				e.log.Error("engine: tick failed", zap.Error(err))
			}
			elapsed := time.Since(start)
			if e.strict && elapsed > e.period {
				e.log.Warn("engine: tick overran period, skipping to next boundary",
					zap.Duration("elapsed", elapsed), zap.Duration("period", e.period))
				// Drop the tick that fell due during the overrun instead of
				// running it late.
				select {
				case <-ticker.C:
				default:
				}
			}
		}
	}
}

// Tick runs exactly one tiering pass: refresh, enumerate, plan, execute,
// refresh again (spec §4.5).
func (e *Engine) Tick(ctx context.Context) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.tickLocked(ctx)
}

// tickLocked is Tick's body, factored out so TickLocked can run it without
// taking tickMu itself — callers that already hold the lock via TryLock
// (the ad hoc control plane's oneshot command) must not re-enter it, since
// sync.Mutex isn't reentrant.
func (e *Engine) tickLocked(ctx context.Context) error {
	tickID := uuid.NewString()
	log := e.log.With(zap.String("tick_id", tickID))
	start := time.Now()
	defer func() { e.metrics.ObserveTick(time.Since(start)) }()

	tiers := e.resolver.Tiers()
	if err := e.refreshAll(ctx, tiers, log); err != nil {
		return err
	}

	files, err := e.enumerateAll(ctx, tiers, log)
	if err != nil {
		return err
	}

	plan := policy.Plan(tiers, files, log)
	log.Info("engine: tick planned", zap.Int("migrations", len(plan)))

	e.execute(ctx, tiers, plan, log)

	if err := e.refreshAll(ctx, tiers, log); err != nil {
		log.Warn("engine: post-tick refresh failed", zap.Error(err))
	}
	for _, t := range tiers {
		log.Info("engine: tier fill",
			zap.String("tier", t.ID), zap.Float64("usage_ratio", t.UsageRatio()))
		e.metrics.ObserveTierUsage(t.ID, t.UsageRatio(), t.UsedBytes, t.WatermarkBytes)
	}
	return nil
}

func (e *Engine) refreshAll(ctx context.Context, tiers []*tier.Tier, log *zap.Logger) error {
	g, _ := errgroup.WithContext(ctx)
	for _, t := range tiers {
		t := t
		g.Go(func() error {
			if err := t.Refresh(); err != nil {
				log.Error("engine: tier refresh failed, tier skipped this tick",
					zap.String("tier", t.ID), zap.Error(err))
				e.health.RecordFailure(t.ID, err)
				return nil
			}
			e.health.RecordSuccess(t.ID)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) enumerateAll(ctx context.Context, tiers []*tier.Tier, log *zap.Logger) ([]types.FileRecord, error) {
	perTier := make([][]types.FileRecord, len(tiers))
	g, _ := errgroup.WithContext(ctx)
	for i, t := range tiers {
		i, t := i, t
		g.Go(func() error {
			entries, err := t.Enumerate()
			if err != nil {
				log.Error("engine: tier enumeration failed, tier skipped this tick",
					zap.String("tier", t.ID), zap.Error(err))
				return nil
			}
			records := make([]types.FileRecord, len(entries))
			for j, ent := range entries {
				pinned, pinnedTier := e.pins.Lookup(t.BackingPath(ent.LogicalPath))
				records[j] = types.FileRecord{
					LogicalPath: ent.LogicalPath,
					TierIndex:   i,
					Size:        ent.Size,
					ATime:       ent.ATime,
					Popularity:  float64(ent.ATime.Unix()),
					Pinned:      pinned,
					PinnedTier:  pinnedTier,
				}
			}
			perTier[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []types.FileRecord
	for _, records := range perTier {
		all = append(all, records...)
	}
	return all, nil
}

// execute applies plan entries sequentially, checking for cancellation
// between entries (not during one) and holding the in-flight-path lock
// only for the duration of each individual migration (spec §5).
func (e *Engine) execute(ctx context.Context, tiers []*tier.Tier, plan []types.MigrationPlanEntry, log *zap.Logger) {
	for _, entry := range plan {
		select {
		case <-ctx.Done():
			log.Info("engine: tick canceled between migrations")
			return
		default:
		}

		e.migrateOne(ctx, tiers, entry, log)
	}
}

func (e *Engine) migrateOne(ctx context.Context, tiers []*tier.Tier, entry types.MigrationPlanEntry, log *zap.Logger) {
	if !e.claim(entry.LogicalPath) {
		log.Warn("engine: path already migrating, deferring to next tick", zap.String("path", entry.LogicalPath))
		return
	}
	defer e.release(entry.LogicalPath)

	src := tiers[entry.SrcTier]
	dst := tiers[entry.DstTier]
	srcPath := src.BackingPath(entry.LogicalPath)
	dstPath := dst.BackingPath(entry.LogicalPath)

	err := e.migrator.Migrate(ctx, srcPath, dstPath)
	e.metrics.ObserveMigration(src.ID, dst.ID, entry.Size, err)
	if err != nil {
		log.Error("engine: migration failed, file stays on source tier, retried next tick",
			zap.String("path", entry.LogicalPath),
			zap.String("src", src.ID), zap.String("dst", dst.ID), zap.Error(err))
		return
	}
	log.Info("engine: migrated",
		zap.String("path", entry.LogicalPath),
		zap.String("src", src.ID), zap.String("dst", dst.ID), zap.Int64("bytes", entry.Size))
}

func (e *Engine) claim(path string) bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	if _, busy := e.inFlight[path]; busy {
		return false
	}
	e.inFlight[path] = struct{}{}
	return true
}

func (e *Engine) release(path string) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	delete(e.inFlight, path)
}

// Lock acquires the tick-exclusion mutex for the ad hoc control plane's
// status command, so it never reads tier state mid-tick. The oneshot
// command uses TryLock instead.
func (e *Engine) Lock() {
	e.tickMu.Lock()
}

// TryLock acquires the tick-exclusion mutex without blocking, reporting
// false immediately if a tick (periodic or ad hoc) already holds it, per
// spec §4.10's try-lock semantics for the oneshot command.
func (e *Engine) TryLock() bool {
	return e.tickMu.TryLock()
}

// Unlock releases the tick-exclusion mutex.
func (e *Engine) Unlock() {
	e.tickMu.Unlock()
}

// TickLocked runs one tiering pass assuming the caller already holds the
// tick-exclusion mutex via Lock or TryLock. Calling Tick instead while
// already holding the mutex would deadlock, since sync.Mutex isn't
// reentrant.
func (e *Engine) TickLocked(ctx context.Context) error {
	return e.tickLocked(ctx)
}
