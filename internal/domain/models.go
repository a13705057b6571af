package domain

import "strings"

type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// Device is the merged view of a discovered device. The same record can be
// hydrated from the REST discovery call or from an initial_state push; merges
// are keyed by DeviceID, last writer wins.
type Device struct {
	DeviceID      string       `json:"device_id"`
	Status        DeviceStatus `json:"status"`
	FirstSeen     string       `json:"first_seen,omitempty"`
	LastSeen      *Timestamp   `json:"last_seen,omitempty"`
	TelemetryKeys []string     `json:"telemetry_keys"`
}

func (d Device) Clone() Device {
	out := d
	out.TelemetryKeys = append([]string(nil), d.TelemetryKeys...)
	if d.LastSeen != nil {
		ts := *d.LastSeen
		out.LastSeen = &ts
	}
	return out
}

// TelemetryPoint is one sample in a series. Immutable once appended.
type TelemetryPoint struct {
	Timestamp Timestamp `json:"timestamp"`
	Value     float64   `json:"value"`
}

type MachineStateKind string

const (
	StateRunning MachineStateKind = "RUNNING"
	StateIdle    MachineStateKind = "IDLE"
	StateFault   MachineStateKind = "FAULT"
	StateUnknown MachineStateKind = "UNKNOWN"
)

// ParseMachineState maps a wire value onto the closed state enum. Anything the
// backend may grow in the future degrades to UNKNOWN instead of leaking through.
func ParseMachineState(s string) MachineStateKind {
	switch MachineStateKind(strings.ToUpper(s)) {
	case StateRunning:
		return StateRunning
	case StateIdle:
		return StateIdle
	case StateFault:
		return StateFault
	default:
		return StateUnknown
	}
}

// MachineState is the derived operational classification for one device.
// Replaced wholesale on every update that carries state fields.
type MachineState struct {
	State      MachineStateKind `json:"state"`
	Confidence *float64         `json:"confidence,omitempty"`
	Reasons    []string         `json:"reasons,omitempty"`
}

// Dashboard is a named, independently persisted widget arrangement.
// CreatedAt is unix milliseconds, matching the persisted blob format.
type Dashboard struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Widgets   []Widget `json:"widgets"`
	CreatedAt int64    `json:"createdAt"`
}

func (d Dashboard) Clone() Dashboard {
	out := d
	out.Widgets = CloneWidgets(d.Widgets)
	return out
}

func CloneDashboards(in []Dashboard) []Dashboard {
	out := make([]Dashboard, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}
