package pipeline

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/internal/aggregate"
	"floodwatch/internal/baseline"
	"floodwatch/internal/detect"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/normalize"
	"floodwatch/internal/output/metricsredis"
	"floodwatch/internal/state"
	"floodwatch/pkg/models"
)

// Options configures the pipeline.
type Options struct {
	Workers       int
	FlushInterval time.Duration
	BatchSize     int
	// SweepInterval is how often stale source windows are reset.
	SweepInterval time.Duration
	// MetricsInterval is how often the Redis metrics mirror publishes.
	// Ignored when no mirror is configured.
	MetricsInterval time.Duration
}

// Pipeline wires the inbound feed through normalization, per-source state,
// the detection engine, and the alert aggregator, out to the alert sinks.
// Events are partitioned across workers by a hash of the raw source address,
// so all state mutations for one address are linearized on one worker while
// different addresses proceed in parallel.
type Pipeline struct {
	consumer   Consumer
	engine     *detect.Engine
	store      *state.Store
	estimator  *baseline.Estimator
	aggregator *aggregate.Aggregator
	writers    []AlertWriter
	mets       *metrics.Metrics
	mirror     *metricsredis.Writer
	opts       Options

	processed atomic.Int64
	errors    atomic.Int64
}

// New creates a pipeline. writers may be empty; mets and mirror may be nil.
func New(consumer Consumer, engine *detect.Engine, store *state.Store, estimator *baseline.Estimator, aggregator *aggregate.Aggregator, writers []AlertWriter, mets *metrics.Metrics, mirror *metricsredis.Writer, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 15 * time.Second
	}
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = 10 * time.Second
	}
	return &Pipeline{
		consumer:   consumer,
		engine:     engine,
		store:      store,
		estimator:  estimator,
		aggregator: aggregator,
		writers:    writers,
		mets:       mets,
		mirror:     mirror,
		opts:       opts,
	}
}

// Run starts the pipeline loops and blocks until ctx is cancelled. In-flight
// events finish processing and buffered alerts are flushed before return.
func (p *Pipeline) Run(ctx context.Context) error {
	logger.Infof("Detection pipeline started: workers=%d", p.opts.Workers)

	workerChs := make([]chan map[string]string, p.opts.Workers)
	for i := range workerChs {
		workerChs[i] = make(chan map[string]string, 256)
	}

	var workers sync.WaitGroup
	for i := range workerChs {
		workers.Add(1)
		go func(in <-chan map[string]string) {
			defer workers.Done()
			for rec := range in {
				p.process(rec)
			}
		}(workerChs[i])
	}

	var aux sync.WaitGroup
	aux.Add(1)
	go func() {
		defer aux.Done()
		p.sweepLoop(ctx)
	}()
	if p.mirror != nil {
		aux.Add(1)
		go func() {
			defer aux.Done()
			p.mirrorLoop(ctx)
		}()
	}

	workersDone := make(chan struct{})
	var flusher sync.WaitGroup
	flusher.Add(1)
	go func() {
		defer flusher.Done()
		p.flushLoop(ctx, workersDone)
	}()

	p.readLoop(ctx, workerChs)

	for _, ch := range workerChs {
		close(ch)
	}
	workers.Wait()
	close(workersDone)
	flusher.Wait()
	aux.Wait()

	logger.Infof("Detection pipeline stopped: processed=%d forwarded=%d suppressed=%d dropped=%d",
		p.processed.Load(), p.aggregator.Forwarded(), p.aggregator.Suppressed(), p.aggregator.Dropped())
	return ctx.Err()
}

// Close releases the pipeline's sinks and source.
func (p *Pipeline) Close() error {
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.mirror != nil {
		if err := p.mirror.Close(); err != nil {
			logger.Errorf("Failed to close metrics mirror: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, workerChs []chan map[string]string) {
	n := uint32(len(workerChs))
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := p.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to read inbound feed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		for _, rec := range batch {
			ch := workerChs[partition(rec["source_ip"], n)]
			select {
			case ch <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}

// partition maps a raw source address to a worker index. Records without a
// source address all land on one stable partition.
func partition(sourceAddr string, n uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte(sourceAddr))
	return h.Sum32() % n
}

// process runs one raw record through the full detection path. Nothing in
// here may fail past this function: malformed input degrades to counters.
func (p *Pipeline) process(rec map[string]string) {
	start := time.Now()

	ev, err := normalize.Normalize(rec)
	if err != nil {
		p.errors.Add(1)
		if p.mets != nil {
			p.mets.EventErrors.Inc()
		}
		logger.Debugf("Dropped unusable record: %v", err)
		return
	}

	if p.mets != nil && len(ev.MalformedFields) > 0 {
		p.mets.MalformedFields.Add(float64(len(ev.MalformedFields)))
	}

	if ev.TimestampValid {
		p.estimator.Observe(ev.Timestamp)
	}

	// Source-keyed state needs a clock even when the event carries none;
	// wall clock is the fallback so such events still count toward rates.
	now := ev.Timestamp
	if !ev.TimestampValid {
		now = time.Now()
	}

	var src *models.SourceSnapshot
	if ev.SourceValid {
		snap := p.store.RecordEvent(ev.SourceAddr, ev.DestPort, now)
		src = &snap
	}

	alerts := p.engine.Evaluate(ev, src, p.estimator.Snapshot())
	for i := range alerts {
		alert := &alerts[i]
		if p.mets != nil {
			p.mets.LayerCandidates.WithLabelValues(alert.Layer).Inc()
		}
		if p.aggregator.Submit(alert) {
			if p.mets != nil {
				p.mets.AlertsForwarded.Inc()
			}
			logger.Infof("ALERT %s from %s (confidence %.2f)", alert.Kind, alert.SourceAddr, alert.Confidence)
		} else if p.mets != nil {
			p.mets.AlertsSuppressed.Inc()
		}
	}

	n := p.processed.Add(1)
	if p.mets != nil {
		p.mets.EventsProcessed.Inc()
		p.mets.ProcessingSeconds.Observe(time.Since(start).Seconds())
	}
	if n%10000 == 0 {
		logger.Infof("Processed %d events, %d alerts forwarded", n, p.aggregator.Forwarded())
	}
}

// flushLoop drains the aggregator's outbound feed into the alert writers in
// arrival order. Writer failures retry with backoff; the detection path is
// insulated by the aggregator's bounded buffer.
func (p *Pipeline) flushLoop(ctx context.Context, workersDone <-chan struct{}) {
	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	var batch []*models.Alert

	flush := func() {
		if len(batch) == 0 {
			return
		}
		for _, w := range p.writers {
			for {
				if err := w.WriteAlerts(batch); err != nil {
					logger.Errorf("Failed to write alerts: %v", err)
					select {
					case <-ctx.Done():
						return
					case <-time.After(1 * time.Second):
					}
					continue
				}
				break
			}
		}
		batch = nil
	}

	for {
		select {
		case alert := <-p.aggregator.Out():
			batch = append(batch, alert)
			if len(batch) >= p.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-workersDone:
			// Drain whatever the workers left behind, then stop.
			for {
				select {
				case alert := <-p.aggregator.Out():
					batch = append(batch, alert)
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}

// sweepLoop periodically resets stale source windows. The sweep clock is the
// newest observed event time, so replayed historical traffic expires on its
// own timeline.
func (p *Pipeline) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if last := p.store.LastEvent(); !last.IsZero() {
				p.store.Sweep(last)
			}
		}
	}
}

func (p *Pipeline) mirrorLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			base := p.estimator.Snapshot()
			snap := metricsredis.Snapshot{
				Timestamp:        time.Now().UTC(),
				ProcessedRecords: p.processed.Load(),
				AlertsForwarded:  p.aggregator.Forwarded(),
				AlertsSuppressed: p.aggregator.Suppressed(),
				AlertsDropped:    p.aggregator.Dropped(),
				TrackedSources:   int64(p.store.Len()),
				BaselineAvg:      base.Mean,
				BaselineStd:      base.StdDev,
			}
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.mirror.Publish(pubCtx, snap); err != nil {
				logger.Warnf("Failed to publish metrics snapshot: %v", err)
			}
			cancel()
		}
	}
}

// Processed reports events accepted by the pipeline.
func (p *Pipeline) Processed() int64 { return p.processed.Load() }

// Errors reports records that could not be normalized.
func (p *Pipeline) Errors() int64 { return p.errors.Load() }
