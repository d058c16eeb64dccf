package health

import (
	"testing"

	"github.com/autotier/autotier/pkg/errors"
)

func TestTrackerEscalatesAndRecovers(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{DegradedThreshold: 2, UnavailableThreshold: 4})
	tr.Register("fast")

	if tr.State("fast") != StateHealthy {
		t.Fatalf("State() = %v, want Healthy on registration", tr.State("fast"))
	}

	sampleErr := errors.New(errors.ErrCodeTierSampleFailed, "statvfs failed")
	tr.RecordFailure("fast", sampleErr)
	if tr.State("fast") != StateHealthy {
		t.Fatalf("State() = %v after 1 failure, want still Healthy", tr.State("fast"))
	}
	tr.RecordFailure("fast", sampleErr)
	if tr.State("fast") != StateDegraded {
		t.Fatalf("State() = %v after 2 failures, want Degraded", tr.State("fast"))
	}
	tr.RecordFailure("fast", sampleErr)
	tr.RecordFailure("fast", sampleErr)
	if tr.State("fast") != StateUnavailable {
		t.Fatalf("State() = %v after 4 failures, want Unavailable", tr.State("fast"))
	}

	tr.RecordSuccess("fast")
	if tr.State("fast") != StateHealthy {
		t.Fatalf("State() = %v after success, want Healthy", tr.State("fast"))
	}
}

func TestTrackerWriteErrorEscalatesToReadOnly(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{DegradedThreshold: 1, UnavailableThreshold: 10})
	tr.Register("slow")

	writeErr := errors.New(errors.ErrCodeTierUnwritable, "tier full")
	tr.RecordFailure("slow", writeErr)
	if tr.State("slow") != StateReadOnly {
		t.Fatalf("State() = %v, want ReadOnly for a write-shaped error", tr.State("slow"))
	}
}

func TestTrackerOverallIsWorstComponent(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())
	tr.Register("a")
	tr.Register("b")
	tr.RecordFailure("b", errors.New(errors.ErrCodeTierSampleFailed, "x"))
	for i := 0; i < 10; i++ {
		tr.RecordFailure("b", errors.New(errors.ErrCodeTierSampleFailed, "x"))
	}

	if tr.Overall() != StateUnavailable {
		t.Fatalf("Overall() = %v, want Unavailable", tr.Overall())
	}
}

func TestUnregisteredComponentIsUnavailable(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())
	if tr.State("ghost") != StateUnavailable {
		t.Errorf("State() = %v, want Unavailable for unregistered component", tr.State("ghost"))
	}
}
