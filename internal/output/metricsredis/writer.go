package metricsredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis metrics mirror.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// Snapshot is one periodic counter dump published for external dashboards.
type Snapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	ProcessedRecords int64     `json:"processed_records"`
	AlertsForwarded  int64     `json:"alerts_forwarded"`
	AlertsSuppressed int64     `json:"alerts_suppressed"`
	AlertsDropped    int64     `json:"alerts_dropped"`
	TrackedSources   int64     `json:"tracked_sources"`
	BaselineAvg      float64   `json:"baseline_avg"`
	BaselineStd      float64   `json:"baseline_std"`
}

// Writer mirrors engine counters into Redis: an append-only metrics stream
// plus the flat global:* keys the dashboard polls.
type Writer struct {
	client *redis.Client
	stream string
}

// NewWriter constructs the mirror and verifies connectivity.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Stream == "" {
		cfg.Stream = "metrics"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis metrics mirror: %w", err)
	}

	return &Writer{client: client, stream: cfg.Stream}, nil
}

// Publish pushes one snapshot. Baseline keys carry a short TTL so a stopped
// engine goes stale on the dashboard instead of lying.
func (w *Writer) Publish(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics snapshot: %w", err)
	}

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: w.stream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"metrics": string(payload)},
	})
	pipe.Set(ctx, "global:processed_records", snap.ProcessedRecords, 0)
	pipe.Set(ctx, "global:alerts:total", snap.AlertsForwarded, 0)
	pipe.SetEx(ctx, "global:baseline:avg", strconv.FormatFloat(snap.BaselineAvg, 'f', -1, 64), 5*time.Minute)
	pipe.SetEx(ctx, "global:baseline:std", strconv.FormatFloat(snap.BaselineStd, 'f', -1, 64), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish metrics snapshot: %w", err)
	}
	return nil
}

// Close closes Redis resources.
func (w *Writer) Close() error {
	return w.client.Close()
}
