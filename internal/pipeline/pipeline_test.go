package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"floodwatch/internal/aggregate"
	"floodwatch/internal/baseline"
	"floodwatch/internal/detect"
	"floodwatch/internal/state"
	"floodwatch/pkg/models"
)

// fakeConsumer replays canned batches, then blocks until the context ends.
type fakeConsumer struct {
	mu      sync.Mutex
	batches [][]map[string]string
	next    int
	closed  bool
}

func (c *fakeConsumer) Read(ctx context.Context) ([]map[string]string, error) {
	c.mu.Lock()
	if c.next < len(c.batches) {
		b := c.batches[c.next]
		c.next++
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeWriter struct {
	mu     sync.Mutex
	alerts []*models.Alert
	closed bool
}

func (w *fakeWriter) WriteAlerts(alerts []*models.Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alerts = append(w.alerts, alerts...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) kinds() map[models.AlertKind]*models.Alert {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[models.AlertKind]*models.Alert, len(w.alerts))
	for _, a := range w.alerts {
		out[a.Kind] = a
	}
	return out
}

func newTestEngine() *detect.Engine {
	return detect.NewEngine([]detect.Layer{
		detect.NewThresholdLayer(detect.ThresholdConfig{
			HighRequestRate:   100,
			PortScanThreshold: 10,
			NewIPRate:         50,
			NewIPAge:          time.Minute,
			SpikeMultiplier:   10,
		}),
		detect.NewAdaptiveLayer(2.0, 3),
		detect.NewPatternLayer(detect.PatternConfig{RateThreshold: 100}),
	}, nil)
}

func synBurst(source string, n int) []map[string]string {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := make([]map[string]string, 0, n)
	for i := 0; i < n; i++ {
		ts := t0.Add(time.Duration(i) * 300 * time.Millisecond)
		batch = append(batch, map[string]string{
			"timestamp":   ts.Format(time.RFC3339Nano),
			"source_ip":   source,
			"dest_ip":     "198.51.100.7",
			"source_port": "40000",
			"dest_port":   "80",
			"protocol":    "TCP",
			"packet_size": "50",
			"flags":       "SYN",
		})
	}
	return batch
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}

func TestPipelineDetectsSynBurstEndToEnd(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]map[string]string{
		synBurst("203.0.113.5", 150),
		{{}}, // one unusable record
	}}
	writer := &fakeWriter{}

	store := state.NewStore(0)
	estimator := baseline.NewEstimator(5, 3)
	aggregator := aggregate.NewAggregator(aggregate.Config{
		SuppressionInterval: time.Minute,
		BufferSize:          64,
	})

	p := New(consumer, newTestEngine(), store, estimator, aggregator, []AlertWriter{writer}, nil, nil, Options{
		Workers:       4,
		FlushInterval: 10 * time.Millisecond,
		BatchSize:     100,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, func() bool { return p.Processed() == 150 && p.Errors() == 1 })
	cancel()
	<-done

	got := writer.kinds()
	for _, k := range []models.AlertKind{models.KindHighRequestRate, models.KindNewIPAttack, models.KindSynFlood} {
		if _, ok := got[k]; !ok {
			t.Fatalf("expected %s in forwarded alerts, got %v", k, got)
		}
	}
	if hrr := got[models.KindHighRequestRate]; hrr.Confidence != 0.9 || hrr.SourceAddr != "203.0.113.5" {
		t.Fatalf("unexpected rate alert: %+v", hrr)
	}

	// One forward per (source, kind): the burst repeats inside the
	// suppression interval.
	if aggregator.Forwarded() != int64(len(got)) {
		t.Fatalf("expected %d forwarded, got %d", len(got), aggregator.Forwarded())
	}
	if aggregator.Suppressed() == 0 {
		t.Fatalf("expected repeats to be suppressed")
	}
	if len(writer.alerts) != len(got) {
		t.Fatalf("expected each forwarded alert written once, got %d", len(writer.alerts))
	}

	if store.Len() != 1 {
		t.Fatalf("expected one tracked source, got %d", store.Len())
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !writer.closed || !consumer.closed {
		t.Fatalf("close must release sinks and source")
	}
}

func TestPipelineKeepsSourcesOnSeparateWorkers(t *testing.T) {
	var batch []map[string]string
	for i := 0; i < 16; i++ {
		batch = append(batch, synBurst(fmt.Sprintf("10.0.0.%d", i), 1)...)
	}
	consumer := &fakeConsumer{batches: [][]map[string]string{batch}}
	writer := &fakeWriter{}

	store := state.NewStore(0)
	p := New(consumer, newTestEngine(), store, baseline.NewEstimator(5, 3),
		aggregate.NewAggregator(aggregate.Config{}), []AlertWriter{writer}, nil, nil, Options{Workers: 4})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, func() bool { return p.Processed() == 16 })
	cancel()
	<-done

	if store.Len() != 16 {
		t.Fatalf("expected 16 tracked sources, got %d", store.Len())
	}
	if len(writer.kinds()) != 0 {
		t.Fatalf("single events must not alert, got %v", writer.kinds())
	}
}

func TestPartitionIsStable(t *testing.T) {
	a := partition("203.0.113.5", 8)
	for i := 0; i < 10; i++ {
		if partition("203.0.113.5", 8) != a {
			t.Fatalf("partition must be deterministic")
		}
	}
	if partition("203.0.113.5", 8) > 7 {
		t.Fatalf("partition out of range")
	}
}
