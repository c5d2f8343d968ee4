package detect

import (
	"testing"
	"time"

	"floodwatch/pkg/models"
)

func testCorrelator(t0 time.Time) *Correlator {
	return NewCorrelator(t0, []Window{
		{Start: 15 * time.Minute, End: 25 * time.Minute, AttackType: "syn_flood"},
		{Start: 40 * time.Minute, End: 50 * time.Minute, AttackType: "http_flood"},
	})
}

func TestCorroborateUpgradesAlertsInsideWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := testCorrelator(t0)

	ev := testEvent()
	ev.Timestamp = t0.Add(20 * time.Minute)
	alerts := []models.Alert{{Kind: models.KindSynFlood, Confidence: 0.6}}

	c.Corroborate(ev, alerts)
	if alerts[0].Confidence != 0.95 {
		t.Fatalf("expected confidence upgrade to 0.95, got %v", alerts[0].Confidence)
	}
	if alerts[0].CorrelationTag != "syn_flood" {
		t.Fatalf("expected syn_flood tag, got %q", alerts[0].CorrelationTag)
	}
}

func TestCorroborateLeavesAlertsOutsideWindows(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := testCorrelator(t0)

	ev := testEvent()
	ev.Timestamp = t0.Add(30 * time.Minute)
	alerts := []models.Alert{{Kind: models.KindSynFlood, Confidence: 0.6}}

	c.Corroborate(ev, alerts)
	if alerts[0].Confidence != 0.6 || alerts[0].CorrelationTag != "" {
		t.Fatalf("alert outside all windows must pass through, got %+v", alerts[0])
	}
}

func TestCorroborateWindowEndIsExclusive(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := testCorrelator(t0)

	ev := testEvent()
	ev.Timestamp = t0.Add(25 * time.Minute)
	alerts := []models.Alert{{Kind: models.KindSynFlood, Confidence: 0.6}}

	c.Corroborate(ev, alerts)
	if alerts[0].CorrelationTag != "" {
		t.Fatalf("window end must be exclusive, got tag %q", alerts[0].CorrelationTag)
	}

	ev.Timestamp = t0.Add(15 * time.Minute)
	c.Corroborate(ev, alerts)
	if alerts[0].CorrelationTag != "syn_flood" {
		t.Fatalf("window start must be inclusive, got tag %q", alerts[0].CorrelationTag)
	}
}

func TestCorroborateNeverLowersConfidence(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := testCorrelator(t0)

	ev := testEvent()
	ev.Timestamp = t0.Add(20 * time.Minute)
	alerts := []models.Alert{{Kind: models.KindHighRequestRate, Confidence: 0.99}}

	c.Corroborate(ev, alerts)
	if alerts[0].Confidence != 0.99 {
		t.Fatalf("a stronger verdict must not be weakened, got %v", alerts[0].Confidence)
	}
	if alerts[0].CorrelationTag != "syn_flood" {
		t.Fatalf("tag should still be applied, got %q", alerts[0].CorrelationTag)
	}
}

func TestCorroborateSkipsEventsWithoutTimestamp(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := testCorrelator(t0)

	ev := testEvent()
	ev.Timestamp = t0.Add(20 * time.Minute)
	ev.TimestampValid = false
	alerts := []models.Alert{{Kind: models.KindSynFlood, Confidence: 0.6}}

	c.Corroborate(ev, alerts)
	if alerts[0].Confidence != 0.6 || alerts[0].CorrelationTag != "" {
		t.Fatalf("untimed event cannot be placed in a window, got %+v", alerts[0])
	}
}
