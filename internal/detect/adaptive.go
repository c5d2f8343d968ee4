package detect

import (
	"floodwatch/pkg/models"
)

// AdaptiveLayer flags sources whose current-window rate exceeds the rolling
// aggregate baseline by a configured number of standard deviations.
type AdaptiveLayer struct {
	sigma      float64
	minSamples int
}

// NewAdaptiveLayer creates the layer. minSamples is the cold-start floor:
// with fewer baseline samples, or a degenerate deviation, the layer stays
// silent instead of alerting off near-zero variance.
func NewAdaptiveLayer(sigma float64, minSamples int) *AdaptiveLayer {
	if sigma <= 0 {
		sigma = 2.0
	}
	if minSamples <= 0 {
		minSamples = 2
	}
	return &AdaptiveLayer{sigma: sigma, minSamples: minSamples}
}

func (l *AdaptiveLayer) Name() string { return "adaptive" }

// Evaluate compares the source's window count against mean + sigma*stddev.
func (l *AdaptiveLayer) Evaluate(ev *models.NetworkEvent, src *models.SourceSnapshot, base models.BaselineSnapshot) []models.Alert {
	if src == nil {
		return nil
	}
	if base.SampleCount < l.minSamples || base.StdDev <= 0 {
		return nil
	}

	threshold := base.Mean + l.sigma*base.StdDev
	if float64(src.Count) <= threshold {
		return nil
	}

	return []models.Alert{newAlert(ev, models.KindAnomalousTraffic, models.SeverityMedium, 0.7, l.Name(), map[string]float64{
		"count":        float64(src.Count),
		"baseline_avg": base.Mean,
		"baseline_std": base.StdDev,
		"threshold":    threshold,
	})}
}
