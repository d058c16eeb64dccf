package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func collectHandlerBody(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

func TestObserveTierUsage(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.ObserveTierUsage("fast", 0.75, 750, 800)

	got := testutil.ToFloat64(c.tierUsageRatio.WithLabelValues("fast"))
	if got != 0.75 {
		t.Errorf("tierUsageRatio = %v, want 0.75", got)
	}
}

func TestObserveMigrationSplitsSuccessAndError(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.ObserveMigration("fast", "slow", 1024, nil)
	c.ObserveMigration("fast", "slow", 0, errTest)

	if got := testutil.ToFloat64(c.migrationsTotal.WithLabelValues("fast", "slow")); got != 1 {
		t.Errorf("migrationsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.migrationErrorsTotal.WithLabelValues("fast", "slow")); got != 1 {
		t.Errorf("migrationErrorsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.migrationBytesTotal.WithLabelValues("fast", "slow")); got != 1024 {
		t.Errorf("migrationBytesTotal = %v, want 1024", got)
	}
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.ObserveFSOp("getattr", 10*time.Millisecond, nil)

	body := collectHandlerBody(t, c)
	if !strings.Contains(body, "autotier_fs_ops_total") {
		t.Error("exposition output missing autotier_fs_ops_total")
	}
}

var errTest = &testError{}

type testError struct{}

func (e *testError) Error() string { return "boom" }
