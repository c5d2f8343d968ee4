package alerthttp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"floodwatch/pkg/models"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]models.Alert
	status int
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var alerts []models.Alert
		if err := json.Unmarshal(body, &alerts); err != nil {
			t.Errorf("bad body %q: %v", body, err)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}

		c.mu.Lock()
		c.bodies = append(c.bodies, alerts)
		status := c.status
		c.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
		}
	}
}

func testAlerts(n int) []*models.Alert {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := make([]*models.Alert, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.Alert{
			AlertID:   "a",
			Timestamp: ts,
			Kind:      models.KindHighRequestRate,
			Severity:  models.SeverityHigh,
		})
	}
	return out
}

func TestWriteAlertsSplitsLargeBatches(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, MaxBatch: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteAlerts(testAlerts(5)); err != nil {
		t.Fatalf("write: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) != 3 {
		t.Fatalf("expected 3 posts for 5 alerts with cap 2, got %d", len(c.bodies))
	}
	for i, want := range []int{2, 2, 1} {
		if len(c.bodies[i]) != want {
			t.Fatalf("post %d: expected %d alerts, got %d", i, want, len(c.bodies[i]))
		}
	}
}

func TestWriteAlertsSinglePostUnderCap(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteAlerts(testAlerts(3)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.WriteAlerts(nil); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) != 1 || len(c.bodies[0]) != 3 {
		t.Fatalf("expected one post with 3 alerts, got %v", c.bodies)
	}
}

func TestWriteAlertsFailsOnErrorStatus(t *testing.T) {
	c := &capture{status: http.StatusBadGateway}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteAlerts(testAlerts(1)); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestNewWriterRequiresURL(t *testing.T) {
	if _, err := NewWriter(Config{}); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}
