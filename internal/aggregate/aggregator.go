package aggregate

import (
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/pkg/models"
)

// Config controls alert aggregation.
type Config struct {
	// SuppressionInterval is the minimum gap between two forwarded alerts
	// of the same (source, kind).
	SuppressionInterval time.Duration
	// BufferSize bounds the outbound feed. When the sink cannot keep up,
	// the oldest buffered alert is dropped, never the detection path.
	BufferSize int
}

type dedupeKey struct {
	source string
	kind   models.AlertKind
}

// Aggregator de-duplicates candidate alerts and decouples detection from the
// outbound sink through a bounded buffer.
type Aggregator struct {
	cfg Config

	mu   sync.Mutex
	last map[dedupeKey]time.Time

	out chan *models.Alert

	forwarded  atomic.Int64
	suppressed atomic.Int64
	dropped    atomic.Int64
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.SuppressionInterval <= 0 {
		cfg.SuppressionInterval = time.Minute
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &Aggregator{
		cfg:  cfg,
		last: make(map[dedupeKey]time.Time),
		out:  make(chan *models.Alert, cfg.BufferSize),
	}
}

// Submit offers a candidate alert and reports whether it was forwarded.
// Repeats of the same (source, kind) inside the suppression interval are
// counted and discarded. Submit never blocks: a full buffer sheds its oldest
// alert to make room.
func (a *Aggregator) Submit(alert *models.Alert) bool {
	if alert == nil {
		return false
	}

	key := dedupeKey{source: alert.SourceAddr, kind: alert.Kind}

	a.mu.Lock()
	if prev, ok := a.last[key]; ok && alert.Timestamp.Sub(prev) < a.cfg.SuppressionInterval {
		a.mu.Unlock()
		a.suppressed.Add(1)
		return false
	}
	a.last[key] = alert.Timestamp
	if len(a.last) > 4*a.cfg.BufferSize {
		a.prune(alert.Timestamp)
	}
	a.mu.Unlock()

	for {
		select {
		case a.out <- alert:
			a.forwarded.Add(1)
			return true
		default:
		}
		select {
		case <-a.out:
			a.dropped.Add(1)
		default:
		}
	}
}

// prune discards suppression entries old enough to be inert. Caller holds mu.
func (a *Aggregator) prune(now time.Time) {
	for k, ts := range a.last {
		if now.Sub(ts) >= a.cfg.SuppressionInterval {
			delete(a.last, k)
		}
	}
}

// Out is the outbound alert feed, consumed by the flush loop in arrival
// order.
func (a *Aggregator) Out() <-chan *models.Alert { return a.out }

// Forwarded reports alerts pushed to the outbound feed.
func (a *Aggregator) Forwarded() int64 { return a.forwarded.Load() }

// Suppressed reports alerts discarded as duplicates.
func (a *Aggregator) Suppressed() int64 { return a.suppressed.Load() }

// Dropped reports alerts shed from a full buffer.
func (a *Aggregator) Dropped() int64 { return a.dropped.Load() }
