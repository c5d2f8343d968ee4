package detect

import (
	"time"

	"floodwatch/pkg/models"
)

// correlatedConfidence is the confidence assigned to any alert whose event
// falls inside a known attack window.
const correlatedConfidence = 0.95

// Window is one known attack interval, as offsets from a reference time.
type Window struct {
	Start      time.Duration
	End        time.Duration
	AttackType string
}

// Correlator upgrades lower-layer alerts whose event timestamp falls inside
// a configured attack window. It only corroborates: an event inside a window
// that produced no alert stays silent.
type Correlator struct {
	reference time.Time
	windows   []Window
}

// NewCorrelator creates a correlator anchored at reference.
func NewCorrelator(reference time.Time, windows []Window) *Correlator {
	return &Correlator{reference: reference, windows: windows}
}

// Corroborate raises the confidence of alerts in place and tags them with
// the matched window's attack type. Events without a usable timestamp cannot
// be placed in a window, so their alerts pass through unchanged.
func (c *Correlator) Corroborate(ev *models.NetworkEvent, alerts []models.Alert) {
	if len(alerts) == 0 || !ev.TimestampValid {
		return
	}

	attackType, ok := c.match(ev.Timestamp)
	if !ok {
		return
	}

	for i := range alerts {
		if alerts[i].Confidence < correlatedConfidence {
			alerts[i].Confidence = correlatedConfidence
		}
		alerts[i].CorrelationTag = attackType
	}
}

func (c *Correlator) match(ts time.Time) (string, bool) {
	offset := ts.Sub(c.reference)
	for _, w := range c.windows {
		if offset >= w.Start && offset < w.End {
			return w.AttackType, true
		}
	}
	return "", false
}
