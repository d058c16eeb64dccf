// Package metrics exports autotier's Prometheus series (spec §13), adapted
// from the teacher's internal/metrics collector down to the gauges and
// counters the tiering engine and filesystem actually produce.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every Prometheus series autotier exports and the HTTP
// server that serves them alongside the health handler.
type Collector struct {
	registry *prometheus.Registry

	tierUsageRatio     *prometheus.GaugeVec
	tierWatermarkBytes *prometheus.GaugeVec
	tierUsedBytes      *prometheus.GaugeVec

	migrationsTotal      *prometheus.CounterVec
	migrationBytesTotal  *prometheus.CounterVec
	migrationErrorsTotal *prometheus.CounterVec

	tickDuration prometheus.Histogram

	fsOpDuration  *prometheus.HistogramVec
	fsOpsTotal    *prometheus.CounterVec
	fsErrorsTotal *prometheus.CounterVec

	server *http.Server
}

// NewCollector builds and registers every series with a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		tierUsageRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotier_tier_usage_ratio",
			Help: "Fraction of a tier's capacity currently in use.",
		}, []string{"tier"}),
		tierWatermarkBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotier_tier_watermark_bytes",
			Help: "Byte threshold above which a tier starts evicting files downward.",
		}, []string{"tier"}),
		tierUsedBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotier_tier_used_bytes",
			Help: "Bytes currently used on a tier.",
		}, []string{"tier"}),
		migrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotier_migrations_total",
			Help: "Completed file migrations between tiers.",
		}, []string{"src", "dst"}),
		migrationBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotier_migration_bytes_total",
			Help: "Bytes moved between tiers by completed migrations.",
		}, []string{"src", "dst"}),
		migrationErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotier_migration_errors_total",
			Help: "Migrations that failed and were left in place for the next tick.",
		}, []string{"src", "dst"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotier_tick_duration_seconds",
			Help:    "Wall-clock time for one full tiering tick.",
			Buckets: prometheus.DefBuckets,
		}),
		fsOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autotier_fs_op_duration_seconds",
			Help:    "Latency of FUSE filesystem operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		fsOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotier_fs_ops_total",
			Help: "Completed FUSE filesystem operations.",
		}, []string{"op"}),
		fsErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotier_fs_errors_total",
			Help: "FUSE filesystem operations that returned an error.",
		}, []string{"op"}),
	}

	registry.MustRegister(
		c.tierUsageRatio, c.tierWatermarkBytes, c.tierUsedBytes,
		c.migrationsTotal, c.migrationBytesTotal, c.migrationErrorsTotal,
		c.tickDuration,
		c.fsOpDuration, c.fsOpsTotal, c.fsErrorsTotal,
	)
	return c
}

// ObserveTierUsage records one tier's current capacity state.
func (c *Collector) ObserveTierUsage(tier string, usageRatio float64, usedBytes, watermarkBytes int64) {
	c.tierUsageRatio.WithLabelValues(tier).Set(usageRatio)
	c.tierUsedBytes.WithLabelValues(tier).Set(float64(usedBytes))
	c.tierWatermarkBytes.WithLabelValues(tier).Set(float64(watermarkBytes))
}

// ObserveMigration records one completed or failed migration.
func (c *Collector) ObserveMigration(src, dst string, bytes int64, err error) {
	if err != nil {
		c.migrationErrorsTotal.WithLabelValues(src, dst).Inc()
		return
	}
	c.migrationsTotal.WithLabelValues(src, dst).Inc()
	c.migrationBytesTotal.WithLabelValues(src, dst).Add(float64(bytes))
}

// ObserveTick records one tick's duration.
func (c *Collector) ObserveTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

// ObserveFSOp records one FUSE operation's latency and outcome.
func (c *Collector) ObserveFSOp(op string, d time.Duration, err error) {
	c.fsOpDuration.WithLabelValues(op).Observe(d.Seconds())
	c.fsOpsTotal.WithLabelValues(op).Inc()
	if err != nil {
		c.fsErrorsTotal.WithLabelValues(op).Inc()
	}
}

// Handler returns the Prometheus exposition HTTP handler for this
// collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve runs an HTTP server exposing /metrics (and any extra handlers
// attached to mux, e.g. /healthz) until ctx is canceled.
func (c *Collector) Serve(ctx context.Context, addr string, extra map[string]http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	for path, h := range extra {
		mux.Handle(path, h)
	}

	c.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return c.server.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
