package models

import "time"

// Protocol is the transport protocol of a network event.
type Protocol string

const (
	ProtocolTCP     Protocol = "TCP"
	ProtocolUDP     Protocol = "UDP"
	ProtocolUnknown Protocol = "UNKNOWN"
)

// ParseProtocol maps a raw protocol token to a Protocol.
func ParseProtocol(raw string) Protocol {
	switch raw {
	case "TCP", "tcp":
		return ProtocolTCP
	case "UDP", "udp":
		return ProtocolUDP
	default:
		return ProtocolUnknown
	}
}

// NetworkEvent is one normalized traffic record. Field validity flags carry
// the outcome of structural validation: a false flag means the raw value was
// missing or unparsable and the field holds its zero sentinel. Layers that
// need a field must check its flag and skip when it is false.
type NetworkEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	TimestampValid bool      `json:"timestamp_valid"`

	SourceAddr  string `json:"source_ip"`
	SourceValid bool   `json:"source_valid"`
	DestAddr    string `json:"dest_ip"`
	DestValid   bool   `json:"dest_valid"`

	SourcePort int `json:"source_port"`
	DestPort   int `json:"dest_port"`

	Protocol Protocol `json:"protocol"`

	// PacketSize may be negative, zero, or absurdly large; outliers are
	// data, not errors.
	PacketSize      int  `json:"packet_size"`
	PacketSizeValid bool `json:"packet_size_valid"`

	Flags []string `json:"flags,omitempty"`

	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`

	HTTPMethod string `json:"http_method,omitempty"`
	HTTPPath   string `json:"http_path,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`

	// IsAttack is the ground-truth label from the dataset. It is carried
	// for validation tooling only and must never feed detection.
	IsAttack bool `json:"is_attack"`

	// MalformedFields lists raw field names that failed to parse and were
	// replaced by sentinels.
	MalformedFields []string `json:"malformed_fields,omitempty"`
}

// HasFlag reports whether the event carries the given TCP flag token.
func (e *NetworkEvent) HasFlag(name string) bool {
	for _, f := range e.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// OnlyFlag reports whether the flag set is exactly {name}.
func (e *NetworkEvent) OnlyFlag(name string) bool {
	return len(e.Flags) == 1 && e.Flags[0] == name
}

// SourceSnapshot is the post-increment view of a source returned by the
// state store.
type SourceSnapshot struct {
	Addr      string
	Count     int
	PortCount int
	Age       time.Duration
	NewSource bool
}

// BaselineSnapshot is the rolling aggregate statistic used for adaptive
// thresholding. Replaced wholesale on each minute advance; safe to copy.
type BaselineSnapshot struct {
	Mean          float64
	StdDev        float64
	SampleCount   int
	CurrentCount  int64
	PreviousCount int64
}
