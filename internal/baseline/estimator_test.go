package baseline

import (
	"math"
	"testing"
	"time"
)

func observeN(e *Estimator, ts time.Time, n int) {
	for i := 0; i < n; i++ {
		e.Observe(ts)
	}
}

func TestSnapshotBeforeAnyWindowCloses(t *testing.T) {
	e := NewEstimator(5, 3)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	observeN(e, t0, 7)
	snap := e.Snapshot()
	if snap.SampleCount != 0 {
		t.Fatalf("no window has closed yet, got %d samples", snap.SampleCount)
	}
	if snap.CurrentCount != 7 {
		t.Fatalf("open window count should be live, got %d", snap.CurrentCount)
	}
	if e.Ready() {
		t.Fatalf("estimator must not be ready before min samples")
	}
}

func TestAdvanceClosesWindowAndPublishesStats(t *testing.T) {
	e := NewEstimator(5, 3)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	observeN(e, t0, 40)
	observeN(e, t0.Add(time.Minute), 50)
	observeN(e, t0.Add(2*time.Minute), 60)
	e.Observe(t0.Add(3 * time.Minute))

	snap := e.Snapshot()
	if snap.SampleCount != 3 {
		t.Fatalf("expected 3 closed windows, got %d", snap.SampleCount)
	}
	if snap.Mean != 50 {
		t.Fatalf("expected mean 50, got %v", snap.Mean)
	}
	if math.Abs(snap.StdDev-10) > 1e-9 {
		t.Fatalf("expected sample stddev 10, got %v", snap.StdDev)
	}
	if snap.PreviousCount != 60 {
		t.Fatalf("expected previous window 60, got %d", snap.PreviousCount)
	}
	if snap.CurrentCount != 1 {
		t.Fatalf("expected open window 1, got %d", snap.CurrentCount)
	}
	if !e.Ready() {
		t.Fatalf("estimator should be ready with 3 varied samples")
	}
}

func TestSilentMinutesCountAsZeroSamples(t *testing.T) {
	e := NewEstimator(10, 2)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	observeN(e, t0, 30)
	// Three minutes of silence, then traffic resumes.
	e.Observe(t0.Add(4 * time.Minute))

	snap := e.Snapshot()
	if snap.SampleCount != 4 {
		t.Fatalf("expected closed window plus 3 zero gaps, got %d samples", snap.SampleCount)
	}
	if snap.Mean != 7.5 {
		t.Fatalf("expected mean 7.5 over [30 0 0 0], got %v", snap.Mean)
	}
}

func TestPreviousCountIsZeroAfterSilentGap(t *testing.T) {
	e := NewEstimator(10, 2)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	observeN(e, t0, 1000)
	e.Observe(t0.Add(4 * time.Minute))

	// The window immediately preceding the new one is a silent minute, not
	// the pre-lull burst; a spike comparison after a lull has no previous
	// traffic to be measured against.
	snap := e.Snapshot()
	if snap.PreviousCount != 0 {
		t.Fatalf("expected zero previous window after silent gap, got %d", snap.PreviousCount)
	}

	// Without a gap the closed window carries through unchanged.
	observeN(e, t0.Add(5*time.Minute), 40)
	e.Observe(t0.Add(6 * time.Minute))
	if snap := e.Snapshot(); snap.PreviousCount != 40 {
		t.Fatalf("expected adjacent closed window 40, got %d", snap.PreviousCount)
	}
}

func TestRingEvictsOldestSamples(t *testing.T) {
	e := NewEstimator(3, 2)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, n := range []int{10, 20, 30, 40} {
		observeN(e, t0.Add(time.Duration(i)*time.Minute), n)
	}
	e.Observe(t0.Add(4 * time.Minute))

	snap := e.Snapshot()
	if snap.SampleCount != 3 {
		t.Fatalf("ring must stay bounded at 3, got %d", snap.SampleCount)
	}
	if snap.Mean != 30 {
		t.Fatalf("expected mean 30 over [20 30 40], got %v", snap.Mean)
	}
}

func TestLateArrivalsFoldIntoOpenWindow(t *testing.T) {
	e := NewEstimator(5, 2)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	observeN(e, t0, 5)
	e.Observe(t0.Add(time.Minute))
	// An event stamped in the already-closed minute still counts.
	e.Observe(t0.Add(30 * time.Second))

	snap := e.Snapshot()
	if snap.CurrentCount != 2 {
		t.Fatalf("late arrival should land in the open window, got %d", snap.CurrentCount)
	}
	if snap.PreviousCount != 5 {
		t.Fatalf("closed window must not change, got %d", snap.PreviousCount)
	}
}
