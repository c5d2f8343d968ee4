package models

import "time"

// AlertKind enumerates the detection verdicts the engine can emit.
type AlertKind string

const (
	KindHighRequestRate  AlertKind = "HIGH_REQUEST_RATE"
	KindPortScan         AlertKind = "PORT_SCAN"
	KindNewIPAttack      AlertKind = "NEW_IP_ATTACK"
	KindTrafficSpike     AlertKind = "TRAFFIC_SPIKE"
	KindAnomalousTraffic AlertKind = "ANOMALOUS_TRAFFIC"
	KindSynFlood         AlertKind = "SYN_FLOOD_SUSPECT"
	KindHTTPFlood        AlertKind = "HTTP_FLOOD_SUSPECT"
	KindUDPAmplification AlertKind = "UDP_AMPLIFICATION_SUSPECT"
	KindSlowloris        AlertKind = "SLOWLORIS_SUSPECT"
)

// Severity ranks alert urgency.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
	SeverityInfo   Severity = "INFO"
)

// Alert describes one detection verdict for one event.
type Alert struct {
	AlertID    string    `json:"alert_id"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       AlertKind `json:"alert_type"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"`
	SourceAddr string    `json:"source_ip,omitempty"`
	DestAddr   string    `json:"dest_ip,omitempty"`
	DestPort   int       `json:"dest_port,omitempty"`
	Layer      string    `json:"layer"`

	// Metrics carries the supporting measurements behind the verdict
	// (observed value, threshold, baseline statistics).
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// CorrelationTag names the known attack window the event fell into,
	// when temporal correlation matched.
	CorrelationTag string `json:"correlation_tag,omitempty"`
}
