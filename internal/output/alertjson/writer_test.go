package alertjson

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"floodwatch/pkg/models"
)

func readLines(t *testing.T, path string) []models.Alert {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var out []models.Alert
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var a models.Alert
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, a)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan output: %v", err)
	}
	return out
}

func TestWriteAlertsEmitsOneJSONLinePerAlert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err = w.WriteAlerts([]*models.Alert{
		{AlertID: "a1", Timestamp: ts, Kind: models.KindHighRequestRate, Severity: models.SeverityHigh, Confidence: 0.9, SourceAddr: "203.0.113.5"},
		{AlertID: "a2", Timestamp: ts, Kind: models.KindSynFlood, Severity: models.SeverityMedium, Confidence: 0.6},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readLines(t, path)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if got[0].AlertID != "a1" || got[0].Kind != models.KindHighRequestRate || got[0].SourceAddr != "203.0.113.5" {
		t.Fatalf("unexpected first alert: %+v", got[0])
	}
	if got[1].AlertID != "a2" || got[1].Confidence != 0.6 {
		t.Fatalf("unexpected second alert: %+v", got[1])
	}
}

func TestReopenedWriterAppendsInsteadOfTruncating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteAlerts([]*models.Alert{{AlertID: "a1", Timestamp: ts, Kind: models.KindHighRequestRate}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w, err = NewWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w.WriteAlerts([]*models.Alert{{AlertID: "a2", Timestamp: ts, Kind: models.KindSynFlood}}); err != nil {
		t.Fatalf("write after reopen: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readLines(t, path)
	if len(got) != 2 {
		t.Fatalf("restart must not discard flushed alerts: got %d lines", len(got))
	}
	if got[0].AlertID != "a1" || got[1].AlertID != "a2" {
		t.Fatalf("unexpected order across restart: %+v", got)
	}
}
