// Package tier models one physical backing directory: its capacity,
// current usage, watermark, and the file enumeration the policy engine
// ranks each tick (spec §4.1), guarded by a per-tier circuit breaker so a
// dead mount doesn't get sampled every tick (spec §4.8).
package tier

import (
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/zap"

	"github.com/autotier/autotier/internal/circuit"
	"github.com/autotier/autotier/pkg/errors"
)

// Tier is one backing directory, fastest tiers at lower indices.
type Tier struct {
	ID        string
	Path      string
	Watermark int // percent, 0-100

	CapacityBytes  int64
	UsedBytes      int64
	WatermarkBytes int64

	breaker *circuit.Breaker
	log     *zap.Logger
}

// New creates a Tier; it is not usable for capacity-aware decisions until
// Refresh has succeeded at least once.
func New(id, path string, watermark int, breakers *circuit.Manager, log *zap.Logger) *Tier {
	return &Tier{
		ID:        id,
		Path:      path,
		Watermark: watermark,
		breaker:   breakers.Get(id),
		log:       log,
	}
}

// Refresh samples the backing filesystem's capacity and usage and
// recomputes WatermarkBytes. It is a no-op returning nil when the tier's
// circuit breaker is open.
func (t *Tier) Refresh() error {
	if !t.breaker.Allow() {
		t.log.Debug("tier: skipping sample, circuit open", zap.String("tier", t.ID))
		return nil
	}

	usage, err := disk.Usage(t.Path)
	if err != nil {
		t.breaker.RecordFailure()
		return errors.New(errors.ErrCodeTierSampleFailed, "failed to sample tier capacity").
			WithComponent("tier").WithOperation("refresh").
			WithContext("tier", t.ID).WithContext("path", t.Path).WithCause(err)
	}

	t.breaker.RecordSuccess()
	t.CapacityBytes = int64(usage.Total)
	t.UsedBytes = int64(usage.Used)
	t.WatermarkBytes = t.CapacityBytes * int64(t.Watermark) / 100
	return nil
}

// UsageRatio returns used/capacity as a real in [0,1], or 0 if capacity is
// unknown (Refresh never succeeded).
func (t *Tier) UsageRatio() float64 {
	if t.CapacityBytes <= 0 {
		return 0
	}
	return float64(t.UsedBytes) / float64(t.CapacityBytes)
}

// HasRoom reports whether admitting an additional sizeBytes would keep the
// tier at or below its watermark.
func (t *Tier) HasRoom(sizeBytes int64) bool {
	return t.UsedBytes+sizeBytes <= t.WatermarkBytes
}

// BackingPath returns the absolute path for a logical path on this tier.
func (t *Tier) BackingPath(logicalPath string) string {
	return joinLogical(t.Path, logicalPath)
}

// SampleInterval is how often a tier's breaker allows a fresh sample probe
// while open, mirrored here for documentation; actual scheduling lives in
// circuit.Config.OpenTimeout, which circuit.New defaults to 30s when unset.
const SampleInterval = 30 * time.Second
