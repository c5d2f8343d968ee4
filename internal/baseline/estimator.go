package baseline

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/pkg/models"
)

// Estimator maintains a bounded ring of per-minute aggregate event counts
// and derives mean and standard deviation over the ring. Minute advances are
// serialized by a single mutex; detection workers read the published
// snapshot through an atomic pointer and never block on the writer.
type Estimator struct {
	mu         sync.Mutex
	window     int
	minSamples int
	samples    []int64

	epoch   atomic.Int64
	current atomic.Int64
	snap    atomic.Pointer[models.BaselineSnapshot]
}

// NewEstimator creates an estimator over windowSamples minutes. minSamples
// is the cold-start floor: below it the snapshot reports not-ready and the
// adaptive layer must stay silent.
func NewEstimator(windowSamples, minSamples int) *Estimator {
	if windowSamples < 2 {
		windowSamples = 5
	}
	if minSamples <= 0 {
		minSamples = 2
	}
	return &Estimator{
		window:     windowSamples,
		minSamples: minSamples,
	}
}

// Observe counts one event into the minute bucket owned by ts. Events with
// no usable timestamp must not reach here; the caller excludes them from
// time-bucketing.
func (e *Estimator) Observe(ts time.Time) {
	epoch := ts.Unix() / 60

	cur := e.epoch.Load()
	if cur == 0 {
		e.mu.Lock()
		if e.epoch.Load() == 0 {
			e.epoch.Store(epoch)
		}
		e.mu.Unlock()
		cur = e.epoch.Load()
	}

	if epoch > cur {
		e.advance(epoch)
	}
	// Late arrivals fold into the open window rather than being dropped.
	e.current.Add(1)
}

// advance closes every minute between the open window and newEpoch,
// recomputes the statistics, and publishes a fresh snapshot.
func (e *Estimator) advance(newEpoch int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.epoch.Load()
	if newEpoch <= cur {
		return
	}

	closed := e.current.Swap(0)
	e.push(closed)

	// Fully silent minutes between windows count as zero samples. The
	// previous-window count follows them: after a lull the window that
	// immediately precedes the new one is a silent one, not the pre-lull
	// peak.
	prev := closed
	gap := newEpoch - cur - 1
	if gap > int64(e.window) {
		gap = int64(e.window)
	}
	for i := int64(0); i < gap; i++ {
		e.push(0)
		prev = 0
	}

	e.epoch.Store(newEpoch)

	mean, std := stats(e.samples)
	e.snap.Store(&models.BaselineSnapshot{
		Mean:          mean,
		StdDev:        std,
		SampleCount:   len(e.samples),
		PreviousCount: prev,
	})
}

func (e *Estimator) push(v int64) {
	e.samples = append(e.samples, v)
	if len(e.samples) > e.window {
		e.samples = e.samples[len(e.samples)-e.window:]
	}
}

// Snapshot returns the current baseline view. CurrentCount is the live
// open-window counter.
func (e *Estimator) Snapshot() models.BaselineSnapshot {
	var out models.BaselineSnapshot
	if s := e.snap.Load(); s != nil {
		out = *s
	}
	out.CurrentCount = e.current.Load()
	return out
}

// Ready reports whether the baseline has enough samples for a stable
// standard deviation.
func (e *Estimator) Ready() bool {
	s := e.snap.Load()
	return s != nil && s.SampleCount >= e.minSamples && s.StdDev > 0
}

// stats computes mean and sample standard deviation.
func stats(samples []int64) (float64, float64) {
	n := len(samples)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}
	mean := sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range samples {
		d := float64(v) - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}
