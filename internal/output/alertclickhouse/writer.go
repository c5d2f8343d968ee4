package alertclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"floodwatch/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer archives alerts in ClickHouse via HTTP JSONEachRow for historical
// queries.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the flattened alert shape inserted into ClickHouse. Supporting
// metrics go in as a JSON string column.
type row struct {
	AlertID        string    `json:"alert_id"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"alert_type"`
	Severity       string    `json:"severity"`
	Confidence     float64   `json:"confidence"`
	SourceAddr     string    `json:"source_ip"`
	DestAddr       string    `json:"dest_ip"`
	DestPort       int       `json:"dest_port"`
	Layer          string    `json:"layer"`
	CorrelationTag string    `json:"correlation_tag"`
	Metrics        string    `json:"metrics"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "alerts"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	base := strings.TrimRight(cfg.URL, "/")
	endpoint := base + "/?query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteAlerts inserts a batch of alerts.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, alert := range alerts {
		metrics := ""
		if len(alert.Metrics) > 0 {
			if b, err := json.Marshal(alert.Metrics); err == nil {
				metrics = string(b)
			}
		}
		r := row{
			AlertID:        alert.AlertID,
			Timestamp:      alert.Timestamp,
			Kind:           string(alert.Kind),
			Severity:       string(alert.Severity),
			Confidence:     alert.Confidence,
			SourceAddr:     alert.SourceAddr,
			DestAddr:       alert.DestAddr,
			DestPort:       alert.DestPort,
			Layer:          alert.Layer,
			CorrelationTag: alert.CorrelationTag,
			Metrics:        metrics,
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal alert row: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
