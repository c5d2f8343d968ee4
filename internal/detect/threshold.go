package detect

import (
	"time"

	"floodwatch/pkg/models"
)

// ThresholdConfig holds the fixed-threshold limits.
type ThresholdConfig struct {
	HighRequestRate   int
	PortScanThreshold int
	NewIPRate         int
	NewIPAge          time.Duration
	SpikeMultiplier   float64
}

// ThresholdLayer is the fixed-threshold detection layer: per-source request
// rate, port fan-out, young-source bursts, and aggregate window spikes.
type ThresholdLayer struct {
	cfg ThresholdConfig
}

// NewThresholdLayer creates the layer with the given limits.
func NewThresholdLayer(cfg ThresholdConfig) *ThresholdLayer {
	if cfg.NewIPAge <= 0 {
		cfg.NewIPAge = time.Minute
	}
	return &ThresholdLayer{cfg: cfg}
}

func (l *ThresholdLayer) Name() string { return "threshold" }

// Evaluate applies the four fixed rules. Source-keyed rules need src; the
// aggregate spike rule runs regardless.
func (l *ThresholdLayer) Evaluate(ev *models.NetworkEvent, src *models.SourceSnapshot, base models.BaselineSnapshot) []models.Alert {
	var out []models.Alert

	if src != nil {
		if src.Count > l.cfg.HighRequestRate {
			out = append(out, newAlert(ev, models.KindHighRequestRate, models.SeverityHigh, 0.9, l.Name(), map[string]float64{
				"count":     float64(src.Count),
				"threshold": float64(l.cfg.HighRequestRate),
			}))
		}
		if src.PortCount > l.cfg.PortScanThreshold {
			out = append(out, newAlert(ev, models.KindPortScan, models.SeverityMedium, 0.8, l.Name(), map[string]float64{
				"ports":     float64(src.PortCount),
				"threshold": float64(l.cfg.PortScanThreshold),
			}))
		}
		if src.Age < l.cfg.NewIPAge && src.Count > l.cfg.NewIPRate {
			out = append(out, newAlert(ev, models.KindNewIPAttack, models.SeverityHigh, 0.85, l.Name(), map[string]float64{
				"count":       float64(src.Count),
				"threshold":   float64(l.cfg.NewIPRate),
				"age_seconds": src.Age.Seconds(),
			}))
		}
	}

	// Spike rule compares the open aggregate window against the one that
	// just closed; no prior window means nothing to compare against.
	if base.PreviousCount > 0 &&
		float64(base.CurrentCount) > l.cfg.SpikeMultiplier*float64(base.PreviousCount) {
		out = append(out, newAlert(ev, models.KindTrafficSpike, models.SeverityHigh, 0.8, l.Name(), map[string]float64{
			"current_window":  float64(base.CurrentCount),
			"previous_window": float64(base.PreviousCount),
			"multiplier":      l.cfg.SpikeMultiplier,
		}))
	}

	return out
}
