package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Wire message types pushed by the telemetry backend.
const (
	MsgInitialState    = "initial_state"
	MsgTelemetryUpdate = "telemetry_update"
	MsgDeviceStatus    = "device_status"
)

// ReservedPrefix marks telemetry keys that carry out-of-band state for the
// machine-state extractor. They never enter the telemetry series.
const ReservedPrefix = "_"

// Timestamp is a unix-seconds instant that tolerates both wire spellings:
// a JSON number (possibly fractional) or an RFC3339 string.
type Timestamp float64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*t = 0
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*t = Timestamp(float64(parsed.UnixNano()) / float64(time.Second))
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(f)
	return nil
}

func (t Timestamp) Time() time.Time {
	sec := int64(t)
	nsec := int64((float64(t) - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Now returns the current instant as a wire timestamp.
func Now() Timestamp {
	return Timestamp(float64(time.Now().UnixNano()) / float64(time.Second))
}

// Envelope is the decoded form of any inbound wire message. Fields beyond Type
// are populated depending on the discriminator.
type Envelope struct {
	Type      string         `json:"type"`
	Devices   []Device       `json:"devices,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
	Status    DeviceStatus   `json:"status,omitempty"`
	Timestamp Timestamp      `json:"timestamp,omitempty"`
	Telemetry map[string]any `json:"telemetry,omitempty"`
}

// DecodeEnvelope parses one inbound frame. A frame without a type discriminator
// is malformed; unknown discriminators decode fine and are ignored downstream.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message without type discriminator")
	}
	return &env, nil
}

// NumericValue coerces a decoded telemetry value into a storable number.
// Devices report relay and pin states as booleans; those become 0/1.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
