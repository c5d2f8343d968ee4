package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis Stream consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	StartID      string
	BatchSize    int64
	BlockTimeout time.Duration
}

// Consumer reads raw traffic records from a Redis Stream.
type Consumer struct {
	client       *redis.Client
	stream       string
	lastID       string
	batch        int64
	blockTimeout time.Duration
}

// NewConsumer creates a stream consumer and verifies connectivity.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("redis stream name is required")
	}
	if cfg.StartID == "" {
		cfg.StartID = "0"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Consumer{
		client:       client,
		stream:       cfg.Stream,
		lastID:       cfg.StartID,
		batch:        cfg.BatchSize,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Read blocks for up to the configured timeout and returns the next batch of
// raw field records. A nil batch with nil error means the wait timed out.
// Consumption is tracked by advancing the last-read entry ID, so redelivery
// after a restart is at-least-once.
func (c *Consumer) Read(ctx context.Context) ([]map[string]string, error) {
	res, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{c.stream, c.lastID},
		Count:   c.batch,
		Block:   c.blockTimeout,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	for _, stream := range res {
		for _, msg := range stream.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			out = append(out, fields)
			c.lastID = msg.ID
		}
	}
	return out, nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
