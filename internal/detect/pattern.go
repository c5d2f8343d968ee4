package detect

import (
	"floodwatch/internal/normalize"
	"floodwatch/pkg/models"
)

// PatternConfig tunes the attack-signature heuristics.
type PatternConfig struct {
	// RateThreshold mirrors the threshold layer's request-rate limit; the
	// HTTP flood signature only fires for sources already over it.
	RateThreshold int
	// AmplificationPorts are source ports of known reflection services.
	AmplificationPorts []int
	// SlowlorisMinCount is the sustained per-source event count before the
	// slow-connection signature applies.
	SlowlorisMinCount int
	// SlowlorisResponseMS is the elevated response-time floor.
	SlowlorisResponseMS float64
}

// PatternLayer infers attack types from per-event protocol shape.
type PatternLayer struct {
	cfg      PatternConfig
	ampPorts map[int]struct{}
}

// NewPatternLayer creates the layer.
func NewPatternLayer(cfg PatternConfig) *PatternLayer {
	if len(cfg.AmplificationPorts) == 0 {
		// DNS, NTP, SSDP, memcached reflection services.
		cfg.AmplificationPorts = []int{53, 123, 1900, 11211}
	}
	if cfg.SlowlorisMinCount <= 0 {
		cfg.SlowlorisMinCount = 20
	}
	if cfg.SlowlorisResponseMS <= 0 {
		cfg.SlowlorisResponseMS = 1000
	}
	ports := make(map[int]struct{}, len(cfg.AmplificationPorts))
	for _, p := range cfg.AmplificationPorts {
		ports[p] = struct{}{}
	}
	return &PatternLayer{cfg: cfg, ampPorts: ports}
}

func (l *PatternLayer) Name() string { return "pattern" }

// Evaluate checks each signature independently. A signature whose required
// fields are missing simply does not match.
func (l *PatternLayer) Evaluate(ev *models.NetworkEvent, src *models.SourceSnapshot, _ models.BaselineSnapshot) []models.Alert {
	var out []models.Alert

	// Half-open handshake probes: bare SYN, no response, tiny packet.
	if ev.Protocol == models.ProtocolTCP &&
		ev.OnlyFlag("SYN") &&
		ev.ResponseTimeMS == nil &&
		ev.PacketSizeValid && ev.PacketSize < 100 {
		out = append(out, newAlert(ev, models.KindSynFlood, models.SeverityMedium, 0.6, l.Name(), map[string]float64{
			"packet_size": float64(ev.PacketSize),
		}))
	}

	// Request floods against web services, corroborated by the source
	// already running hot.
	if normalize.IsWebPort(ev.DestPort) && ev.HTTPMethod != "" &&
		src != nil && src.Count > l.cfg.RateThreshold {
		out = append(out, newAlert(ev, models.KindHTTPFlood, models.SeverityMedium, 0.65, l.Name(), map[string]float64{
			"count":     float64(src.Count),
			"dest_port": float64(ev.DestPort),
		}))
	}

	// Oversized UDP replies from reflection-service ports.
	if ev.Protocol == models.ProtocolUDP &&
		ev.PacketSizeValid && ev.PacketSize > 2000 {
		if _, ok := l.ampPorts[ev.SourcePort]; ok {
			out = append(out, newAlert(ev, models.KindUDPAmplification, models.SeverityMedium, 0.75, l.Name(), map[string]float64{
				"packet_size": float64(ev.PacketSize),
				"source_port": float64(ev.SourcePort),
			}))
		}
	}

	// Connections held open: sustained traffic from one source with slow
	// responses and no completing flag in sight.
	if ev.Protocol == models.ProtocolTCP &&
		!ev.HasFlag("FIN") && !ev.HasFlag("PSH") && !ev.HasFlag("RST") &&
		ev.ResponseTimeMS != nil && *ev.ResponseTimeMS > l.cfg.SlowlorisResponseMS &&
		src != nil && src.Count > l.cfg.SlowlorisMinCount && ev.DestValid {
		out = append(out, newAlert(ev, models.KindSlowloris, models.SeverityMedium, 0.7, l.Name(), map[string]float64{
			"count":            float64(src.Count),
			"response_time_ms": *ev.ResponseTimeMS,
		}))
	}

	return out
}
