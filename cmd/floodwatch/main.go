package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"floodwatch/config"
	"floodwatch/internal/aggregate"
	"floodwatch/internal/baseline"
	"floodwatch/internal/detect"
	inputredis "floodwatch/internal/input/redis"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/output/alertclickhouse"
	"floodwatch/internal/output/alerthttp"
	"floodwatch/internal/output/alertjson"
	"floodwatch/internal/output/alertredis"
	"floodwatch/internal/output/metricsredis"
	"floodwatch/internal/pipeline"
	"floodwatch/internal/state"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("floodwatch.yml"); err == nil {
		return "floodwatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "floodwatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "floodwatch.yml"
}

func applyDefaults(cfg *config.Config) {
	fw := &cfg.Floodwatch

	if fw.Input.Redis.Addr == "" {
		fw.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if fw.Input.Redis.Stream == "" {
		fw.Input.Redis.Stream = "network_traffic"
	}
	if fw.Input.Redis.StartID == "" {
		fw.Input.Redis.StartID = "0"
	}
	if fw.Input.Redis.BatchSize <= 0 {
		fw.Input.Redis.BatchSize = 100
	}
	if fw.Input.Redis.BlockTimeout <= 0 {
		fw.Input.Redis.BlockTimeout = config.Duration(5 * time.Second)
	}

	if fw.Pipeline.Workers <= 0 {
		fw.Pipeline.Workers = 8
	}
	if fw.Pipeline.ShutdownTimeout <= 0 {
		fw.Pipeline.ShutdownTimeout = config.Duration(10 * time.Second)
	}

	if fw.Detection.HighRequestRate <= 0 {
		fw.Detection.HighRequestRate = 100
	}
	if fw.Detection.PortScanThreshold <= 0 {
		fw.Detection.PortScanThreshold = 10
	}
	if fw.Detection.NewIPRate <= 0 {
		fw.Detection.NewIPRate = 50
	}
	if fw.Detection.NewIPAge <= 0 {
		fw.Detection.NewIPAge = config.Duration(time.Minute)
	}
	if fw.Detection.SpikeMultiplier <= 0 {
		fw.Detection.SpikeMultiplier = 10
	}

	if fw.Baseline.WindowSamples <= 0 {
		fw.Baseline.WindowSamples = 5
	}
	if fw.Baseline.Sigma <= 0 {
		fw.Baseline.Sigma = 2.0
	}
	if fw.Baseline.MinSamples <= 0 {
		fw.Baseline.MinSamples = 3
	}

	if fw.Alerts.SuppressionInterval <= 0 {
		fw.Alerts.SuppressionInterval = config.Duration(time.Minute)
	}
	if fw.Alerts.BufferSize <= 0 {
		fw.Alerts.BufferSize = 1024
	}
	if fw.Alerts.FlushInterval <= 0 {
		fw.Alerts.FlushInterval = config.Duration(2 * time.Second)
	}
	if !fw.Alerts.Outputs.File.Enabled &&
		!fw.Alerts.Outputs.HTTP.Enabled &&
		!fw.Alerts.Outputs.Redis.Enabled &&
		!fw.Alerts.Outputs.ClickHouse.Enabled {
		fw.Alerts.Outputs.File.Enabled = true
	}
	if fw.Alerts.Outputs.File.Path == "" {
		fw.Alerts.Outputs.File.Path = "output/alerts.jsonl"
	}
	if fw.Alerts.Outputs.Redis.Addr == "" {
		fw.Alerts.Outputs.Redis.Addr = fw.Input.Redis.Addr
	}
	if fw.Alerts.Outputs.Redis.Stream == "" {
		fw.Alerts.Outputs.Redis.Stream = "alerts"
	}

	if fw.Metrics.Redis.Addr == "" {
		fw.Metrics.Redis.Addr = fw.Input.Redis.Addr
	}
	if fw.Metrics.Redis.Stream == "" {
		fw.Metrics.Redis.Stream = "metrics"
	}
	if fw.Metrics.Redis.Interval <= 0 {
		fw.Metrics.Redis.Interval = config.Duration(10 * time.Second)
	}

	if fw.Logging.Level == "" {
		fw.Logging.Level = "info"
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)
	if err := cfg.Floodwatch.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fw := cfg.Floodwatch
	if err := logger.Init(fw.Logging.Enabled, fw.Logging.Level, fw.Logging.File, fw.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Floodwatch starting")
	logger.Infof("Config loaded from: %s", configPath)

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         fw.Input.Redis.Addr,
		Password:     fw.Input.Redis.Password,
		DB:           fw.Input.Redis.DB,
		Stream:       fw.Input.Redis.Stream,
		StartID:      fw.Input.Redis.StartID,
		BatchSize:    fw.Input.Redis.BatchSize,
		BlockTimeout: fw.Input.Redis.BlockTimeout.Std(),
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	var writers []pipeline.AlertWriter
	if fw.Alerts.Outputs.File.Enabled {
		w, err := alertjson.NewWriter(fw.Alerts.Outputs.File.Path)
		if err != nil {
			log.Fatalf("Failed to create alert file writer: %v", err)
		}
		writers = append(writers, w)
		logger.Infof("Alert output: file (%s)", fw.Alerts.Outputs.File.Path)
	}
	if fw.Alerts.Outputs.HTTP.Enabled {
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:      fw.Alerts.Outputs.HTTP.URL,
			Timeout:  fw.Alerts.Outputs.HTTP.Timeout.Std(),
			Headers:  fw.Alerts.Outputs.HTTP.Headers,
			MaxBatch: fw.Alerts.Outputs.HTTP.MaxBatch,
		})
		if err != nil {
			log.Fatalf("Failed to create alert HTTP writer: %v", err)
		}
		writers = append(writers, w)
		logger.Infof("Alert output: http (%s)", fw.Alerts.Outputs.HTTP.URL)
	}
	if fw.Alerts.Outputs.Redis.Enabled {
		w, err := alertredis.NewWriter(alertredis.Config{
			Addr:     fw.Alerts.Outputs.Redis.Addr,
			Password: fw.Alerts.Outputs.Redis.Password,
			DB:       fw.Alerts.Outputs.Redis.DB,
			Stream:   fw.Alerts.Outputs.Redis.Stream,
			MaxLen:   fw.Alerts.Outputs.Redis.MaxLen,
		})
		if err != nil {
			log.Fatalf("Failed to create alert Redis writer: %v", err)
		}
		writers = append(writers, w)
		logger.Infof("Alert output: redis stream (%s)", fw.Alerts.Outputs.Redis.Stream)
	}
	if fw.Alerts.Outputs.ClickHouse.Enabled {
		w, err := alertclickhouse.NewWriter(alertclickhouse.Config{
			URL:      fw.Alerts.Outputs.ClickHouse.URL,
			Database: fw.Alerts.Outputs.ClickHouse.Database,
			Table:    fw.Alerts.Outputs.ClickHouse.Table,
			Username: fw.Alerts.Outputs.ClickHouse.Username,
			Password: fw.Alerts.Outputs.ClickHouse.Password,
			Timeout:  fw.Alerts.Outputs.ClickHouse.Timeout.Std(),
			Headers:  fw.Alerts.Outputs.ClickHouse.Headers,
		})
		if err != nil {
			log.Fatalf("Failed to create alert ClickHouse writer: %v", err)
		}
		writers = append(writers, w)
		logger.Infof("Alert output: clickhouse (%s)", fw.Alerts.Outputs.ClickHouse.URL)
	}

	store := state.NewStore(0)
	estimator := baseline.NewEstimator(fw.Baseline.WindowSamples, fw.Baseline.MinSamples)
	aggregator := aggregate.NewAggregator(aggregate.Config{
		SuppressionInterval: fw.Alerts.SuppressionInterval.Std(),
		BufferSize:          fw.Alerts.BufferSize,
	})

	var correlator *detect.Correlator
	if len(fw.Correlation.Windows) > 0 {
		reference := time.Now().UTC()
		if fw.Correlation.Reference != "" {
			// Validated at startup; parse cannot fail here.
			reference, _ = time.Parse(time.RFC3339, fw.Correlation.Reference)
		}
		windows := make([]detect.Window, 0, len(fw.Correlation.Windows))
		for _, w := range fw.Correlation.Windows {
			windows = append(windows, detect.Window{
				Start:      w.Start.Std(),
				End:        w.End.Std(),
				AttackType: w.AttackType,
			})
		}
		correlator = detect.NewCorrelator(reference, windows)
		logger.Infof("Temporal correlation enabled: %d windows from %s", len(windows), reference.Format(time.RFC3339))
	}

	engine := detect.NewEngine([]detect.Layer{
		detect.NewThresholdLayer(detect.ThresholdConfig{
			HighRequestRate:   fw.Detection.HighRequestRate,
			PortScanThreshold: fw.Detection.PortScanThreshold,
			NewIPRate:         fw.Detection.NewIPRate,
			NewIPAge:          fw.Detection.NewIPAge.Std(),
			SpikeMultiplier:   fw.Detection.SpikeMultiplier,
		}),
		detect.NewAdaptiveLayer(fw.Baseline.Sigma, fw.Baseline.MinSamples),
		detect.NewPatternLayer(detect.PatternConfig{
			RateThreshold:       fw.Detection.HighRequestRate,
			AmplificationPorts:  fw.Detection.AmplificationPorts,
			SlowlorisMinCount:   fw.Detection.SlowlorisMinCount,
			SlowlorisResponseMS: fw.Detection.SlowlorisResponseMS,
		}),
	}, correlator)

	mets := metrics.New(
		func() float64 { return float64(store.Len()) },
		func() float64 { return float64(store.Resets()) },
		func() float64 { return float64(aggregator.Dropped()) },
	)
	if fw.Metrics.ListenAddr != "" {
		go func() {
			if err := mets.Serve(fw.Metrics.ListenAddr); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	var mirror *metricsredis.Writer
	if fw.Metrics.Redis.Enabled {
		mirror, err = metricsredis.NewWriter(metricsredis.Config{
			Addr:     fw.Metrics.Redis.Addr,
			Password: fw.Metrics.Redis.Password,
			DB:       fw.Metrics.Redis.DB,
			Stream:   fw.Metrics.Redis.Stream,
		})
		if err != nil {
			log.Fatalf("Failed to create metrics mirror: %v", err)
		}
		logger.Infof("Metrics mirror: redis stream (%s)", fw.Metrics.Redis.Stream)
	}

	pipe := pipeline.New(consumer, engine, store, estimator, aggregator, writers, mets, mirror, pipeline.Options{
		Workers:         fw.Pipeline.Workers,
		FlushInterval:   fw.Alerts.FlushInterval.Std(),
		MetricsInterval: fw.Metrics.Redis.Interval.Std(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()

	select {
	case <-done:
	case <-time.After(fw.Pipeline.ShutdownTimeout.Std()):
		logger.Warnf("Shutdown timeout reached; discarding in-flight events")
	}

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("Floodwatch stopped: processed=%d errors=%d", pipe.Processed(), pipe.Errors())
}
