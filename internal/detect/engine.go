package detect

import (
	"time"

	"github.com/google/uuid"

	"floodwatch/pkg/models"
)

// Layer is one detection strategy. A layer inspects a single normalized
// event together with the source's post-increment state and the current
// baseline, and returns zero or more candidate alerts. A layer that cannot
// evaluate (missing field, no source state) returns nothing; it never
// errors.
type Layer interface {
	Name() string
	Evaluate(ev *models.NetworkEvent, src *models.SourceSnapshot, base models.BaselineSnapshot) []models.Alert
}

// Engine runs the detection layers in fixed order for every event and hands
// the combined candidates to the temporal correlator. A match in one layer
// never short-circuits the others; reconciling overlaps is the aggregator's
// job.
type Engine struct {
	layers     []Layer
	correlator *Correlator
}

// NewEngine creates an engine over the given layers. The correlator may be
// nil when no attack windows are configured.
func NewEngine(layers []Layer, correlator *Correlator) *Engine {
	return &Engine{
		layers:     layers,
		correlator: correlator,
	}
}

// Evaluate runs every layer against the event. src is nil when the event has
// no valid source address; layers keyed on source state skip it.
func (e *Engine) Evaluate(ev *models.NetworkEvent, src *models.SourceSnapshot, base models.BaselineSnapshot) []models.Alert {
	var out []models.Alert
	for _, layer := range e.layers {
		out = append(out, layer.Evaluate(ev, src, base)...)
	}
	if e.correlator != nil && len(out) > 0 {
		e.correlator.Corroborate(ev, out)
	}
	return out
}

// Layers exposes the configured layer names, in evaluation order.
func (e *Engine) Layers() []string {
	names := make([]string, len(e.layers))
	for i, l := range e.layers {
		names[i] = l.Name()
	}
	return names
}

// newAlert fills the fields every layer sets the same way.
func newAlert(ev *models.NetworkEvent, kind models.AlertKind, sev models.Severity, confidence float64, layer string, metrics map[string]float64) models.Alert {
	ts := ev.Timestamp
	if !ev.TimestampValid {
		ts = time.Now()
	}
	a := models.Alert{
		AlertID:    uuid.NewString(),
		Timestamp:  ts,
		Kind:       kind,
		Severity:   sev,
		Confidence: confidence,
		DestAddr:   ev.DestAddr,
		DestPort:   ev.DestPort,
		Layer:      layer,
		Metrics:    metrics,
	}
	if ev.SourceValid {
		a.SourceAddr = ev.SourceAddr
	}
	return a
}
