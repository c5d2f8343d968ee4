package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML duration strings like "60s" or "5m"; bare integers
// are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value")
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration.
type Config struct {
	Floodwatch FloodwatchConfig `yaml:"floodwatch"`
}

// FloodwatchConfig is the project configuration.
type FloodwatchConfig struct {
	Input       InputConfig       `yaml:"input"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Detection   DetectionConfig   `yaml:"detection"`
	Baseline    BaselineConfig    `yaml:"baseline"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InputConfig controls the inbound event feed.
type InputConfig struct {
	Redis RedisStreamConfig `yaml:"redis"`
}

// RedisStreamConfig controls Redis Stream input.
type RedisStreamConfig struct {
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	Stream       string   `yaml:"stream"`
	StartID      string   `yaml:"start_id"`
	BatchSize    int64    `yaml:"batch_size"`
	BlockTimeout Duration `yaml:"block_timeout"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers         int      `yaml:"workers"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DetectionConfig holds the fixed detection thresholds.
type DetectionConfig struct {
	HighRequestRate     int      `yaml:"high_request_rate"`
	PortScanThreshold   int      `yaml:"port_scan_threshold"`
	NewIPRate           int      `yaml:"new_ip_rate"`
	NewIPAge            Duration `yaml:"new_ip_age"`
	SpikeMultiplier     float64  `yaml:"spike_multiplier"`
	AmplificationPorts  []int    `yaml:"amplification_ports"`
	SlowlorisMinCount   int      `yaml:"slowloris_min_count"`
	SlowlorisResponseMS float64  `yaml:"slowloris_response_ms"`
}

// BaselineConfig controls the adaptive baseline estimator.
type BaselineConfig struct {
	WindowSamples int     `yaml:"window_samples"`
	Sigma         float64 `yaml:"sigma"`
	MinSamples    int     `yaml:"min_samples"`
}

// AlertsConfig controls alert aggregation and sinks.
type AlertsConfig struct {
	SuppressionInterval Duration           `yaml:"suppression_interval"`
	BufferSize          int                `yaml:"buffer_size"`
	FlushInterval       Duration           `yaml:"flush_interval"`
	Outputs             AlertOutputsConfig `yaml:"outputs"`
}

// AlertOutputsConfig enables alert sinks. Any combination may be active.
type AlertOutputsConfig struct {
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	Redis      RedisOutputConfig      `yaml:"redis"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSONL output.
type FileOutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	Enabled  bool              `yaml:"enabled"`
	URL      string            `yaml:"url"`
	Timeout  Duration          `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	MaxBatch int               `yaml:"max_batch"`
}

// RedisOutputConfig config for Redis Stream output.
type RedisOutputConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	Enabled  bool              `yaml:"enabled"`
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  Duration          `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// CorrelationConfig lists known attack windows for temporal corroboration.
type CorrelationConfig struct {
	// Reference is the RFC3339 start time the window offsets are relative
	// to. Empty means the pipeline start time.
	Reference string              `yaml:"reference"`
	Windows   []CorrelationWindow `yaml:"windows"`
}

// CorrelationWindow is one known attack interval as offsets from the
// reference time.
type CorrelationWindow struct {
	Start      Duration `yaml:"start"`
	End        Duration `yaml:"end"`
	AttackType string   `yaml:"attack_type"`
}

// MetricsConfig controls observability output.
type MetricsConfig struct {
	ListenAddr string             `yaml:"listen_addr"`
	Redis      MetricsRedisConfig `yaml:"redis"`
}

// MetricsRedisConfig controls the periodic Redis metrics mirror.
type MetricsRedisConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Stream   string   `yaml:"stream"`
	Interval Duration `yaml:"interval"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects threshold values that would corrupt detection. A
// validation failure is fatal at startup; no event may be processed with a
// broken configuration.
func (c *FloodwatchConfig) Validate() error {
	d := c.Detection
	if d.HighRequestRate <= 0 {
		return fmt.Errorf("detection.high_request_rate must be positive, got %d", d.HighRequestRate)
	}
	if d.PortScanThreshold <= 0 {
		return fmt.Errorf("detection.port_scan_threshold must be positive, got %d", d.PortScanThreshold)
	}
	if d.NewIPRate <= 0 {
		return fmt.Errorf("detection.new_ip_rate must be positive, got %d", d.NewIPRate)
	}
	if d.SpikeMultiplier <= 1 {
		return fmt.Errorf("detection.spike_multiplier must be greater than 1, got %v", d.SpikeMultiplier)
	}
	if c.Baseline.Sigma <= 0 {
		return fmt.Errorf("baseline.sigma must be positive, got %v", c.Baseline.Sigma)
	}
	if c.Baseline.WindowSamples <= 1 {
		return fmt.Errorf("baseline.window_samples must be at least 2, got %d", c.Baseline.WindowSamples)
	}
	if c.Baseline.MinSamples > c.Baseline.WindowSamples {
		return fmt.Errorf("baseline.min_samples %d exceeds window_samples %d", c.Baseline.MinSamples, c.Baseline.WindowSamples)
	}
	if c.Alerts.SuppressionInterval <= 0 {
		return fmt.Errorf("alerts.suppression_interval must be positive, got %v", c.Alerts.SuppressionInterval.Std())
	}
	if c.Alerts.BufferSize <= 0 {
		return fmt.Errorf("alerts.buffer_size must be positive, got %d", c.Alerts.BufferSize)
	}
	if c.Correlation.Reference != "" {
		if _, err := time.Parse(time.RFC3339, c.Correlation.Reference); err != nil {
			return fmt.Errorf("correlation.reference is not RFC3339: %w", err)
		}
	}
	for i, w := range c.Correlation.Windows {
		if w.End <= w.Start {
			return fmt.Errorf("correlation.windows[%d]: end %v not after start %v", i, w.End.Std(), w.Start.Std())
		}
		if w.AttackType == "" {
			return fmt.Errorf("correlation.windows[%d]: attack_type is empty", i)
		}
	}
	return nil
}
