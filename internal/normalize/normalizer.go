package normalize

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"floodwatch/pkg/models"
)

// MalformedEventError reports a raw record that could not be normalized at
// all. Field-level problems never produce this error; they degrade to
// sentinels and validity flags on the event.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: field %q: %s", e.Field, e.Reason)
}

var webPorts = map[int]struct{}{80: {}, 443: {}, 8080: {}, 8443: {}}

// IsWebPort reports whether port carries web-service traffic.
func IsWebPort(port int) bool {
	_, ok := webPorts[port]
	return ok
}

// Normalize converts a raw stream record into a NetworkEvent. The record is
// the field map of one stream entry; a "data" field holding a JSON object is
// merged in, with entry-level fields taking precedence. Normalization is
// purely structural: no attack inference happens here.
func Normalize(raw map[string]string) (*models.NetworkEvent, error) {
	if len(raw) == 0 {
		return nil, &MalformedEventError{Field: "record", Reason: "empty record"}
	}

	fields := mergeData(raw)
	ev := &models.NetworkEvent{}

	if ts, ok := lookup(fields, "timestamp"); ok {
		if t, parsed := parseTimestamp(ts); parsed {
			ev.Timestamp = t
			ev.TimestampValid = true
		} else {
			ev.MalformedFields = append(ev.MalformedFields, "timestamp")
		}
	}

	ev.SourceAddr, ev.SourceValid = parseAddr(fields, "source_ip")
	ev.DestAddr, ev.DestValid = parseAddr(fields, "dest_ip")

	ev.SourcePort, _ = parseIntField(fields, "source_port", ev)
	ev.DestPort, _ = parseIntField(fields, "dest_port", ev)
	ev.PacketSize, ev.PacketSizeValid = parseIntField(fields, "packet_size", ev)

	if proto, ok := lookup(fields, "protocol"); ok {
		ev.Protocol = models.ParseProtocol(proto)
	} else {
		ev.Protocol = models.ProtocolUnknown
	}

	if flags, ok := lookup(fields, "flags"); ok {
		ev.Flags = splitFlags(flags)
	}

	if rt, ok := lookup(fields, "response_time_ms"); ok {
		if v, err := strconv.ParseFloat(rt, 64); err == nil {
			ev.ResponseTimeMS = &v
		} else {
			ev.MalformedFields = append(ev.MalformedFields, "response_time_ms")
		}
	}

	// Application-layer fields appear only for web-service traffic.
	if m, ok := lookup(fields, "http_method"); ok {
		ev.HTTPMethod = m
	}
	if p, ok := lookup(fields, "http_path"); ok {
		ev.HTTPPath = p
	}
	if st, ok := lookup(fields, "http_status"); ok {
		if v, err := strconv.Atoi(st); err == nil {
			ev.HTTPStatus = v
		} else {
			ev.MalformedFields = append(ev.MalformedFields, "http_status")
		}
	}
	if ua, ok := lookup(fields, "user_agent"); ok {
		ev.UserAgent = ua
	}

	if attack, ok := lookup(fields, "is_attack"); ok {
		ev.IsAttack = attack == "True" || attack == "true" || attack == "1"
	}

	return ev, nil
}

// mergeData flattens the optional "data" JSON envelope under the entry
// fields. Entry-level values win on conflict.
func mergeData(raw map[string]string) map[string]string {
	data, ok := raw["data"]
	if !ok || data == "" {
		return raw
	}

	var inner map[string]interface{}
	if err := json.Unmarshal([]byte(data), &inner); err != nil {
		return raw
	}

	merged := make(map[string]string, len(raw)+len(inner))
	for k, v := range inner {
		merged[k] = stringify(v)
	}
	for k, v := range raw {
		if k == "data" {
			continue
		}
		merged[k] = v
	}
	return merged
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// lookup returns a field value, treating empty strings and NaN markers as
// absent.
func lookup(fields map[string]string, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" || v == "NaN" || v == "nan" || v == "None" || v == "null" {
		return "", false
	}
	return v, true
}

// parseAddr retains syntactically invalid addresses rather than rejecting
// them; the false flag keeps them out of per-source aggregation.
func parseAddr(fields map[string]string, key string) (string, bool) {
	v, ok := lookup(fields, key)
	if !ok {
		return "", false
	}
	if _, err := netip.ParseAddr(v); err != nil {
		return v, false
	}
	return v, true
}

func parseIntField(fields map[string]string, key string, ev *models.NetworkEvent) (int, bool) {
	v, ok := lookup(fields, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Producers occasionally ship float-typed counts.
		if f, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			return int(f), true
		}
		ev.MalformedFields = append(ev.MalformedFields, key)
		return 0, false
	}
	return n, true
}

func splitFlags(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '|' || r == ' ' || r == '+'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}
