package alerthttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"floodwatch/pkg/models"
)

// defaultMaxBatch caps how many alerts go into one POST body. The flush loop
// can hand over an arbitrarily large drain after a writer outage; the cap
// keeps each request within what a collector endpoint will accept.
const defaultMaxBatch = 500

// Writer sends alerts to a remote HTTP endpoint as JSON arrays.
type Writer struct {
	url      string
	headers  map[string]string
	maxBatch int
	client   *http.Client
}

// Config configures the HTTP writer.
type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
	// MaxBatch is the largest alert count per POST; zero selects the
	// default.
	MaxBatch int
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http alert URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &Writer{
		url:      cfg.URL,
		headers:  cfg.Headers,
		maxBatch: maxBatch,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteAlerts posts a batch of alerts, split into chunks of at most the
// configured batch cap. A failed chunk fails the whole batch; the caller
// retries, and the receiving end must tolerate redelivery of earlier chunks.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	for len(alerts) > 0 {
		n := len(alerts)
		if n > w.maxBatch {
			n = w.maxBatch
		}
		if err := w.post(alerts[:n]); err != nil {
			return err
		}
		alerts = alerts[n:]
	}
	return nil
}

func (w *Writer) post(alerts []*models.Alert) error {
	body, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}

	return nil
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	return nil
}
