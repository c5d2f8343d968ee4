package alertredis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"floodwatch/pkg/models"
)

// Config configures the Redis Stream alert writer.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream length (approximate trimming). Zero means
	// unbounded.
	MaxLen int64
}

// Writer publishes alerts to a Redis Stream for downstream consumers such as
// the dashboard.
type Writer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewWriter creates the writer and verifies connectivity.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Stream == "" {
		cfg.Stream = "alerts"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis alert stream: %w", err)
	}

	return &Writer{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// WriteAlerts appends a batch of alerts to the stream, one entry each, in
// batch order.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	ctx := context.Background()
	pipe := w.client.Pipeline()
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: w.stream,
			MaxLen: w.maxLen,
			Approx: w.maxLen > 0,
			Values: map[string]interface{}{"alert": string(payload)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append alerts to stream: %w", err)
	}
	return nil
}

// Close closes Redis resources.
func (w *Writer) Close() error {
	return w.client.Close()
}
