// Package machinestate derives a per-device operational classification from
// the reserved fields of telemetry payloads. It is deliberately separate from
// the telemetry store so state never pollutes chart or history data.
package machinestate

import (
	"sync"

	"github.com/iotdash/dashboard-engine/internal/domain"
)

// Reserved payload fields feeding the extractor.
const (
	FieldState      = "_machine_state"
	FieldConfidence = "_state_confidence"
	FieldReasons    = "_state_reasons"
)

// TransitionFunc observes state replacements. prev is the previously stored
// state (UNKNOWN for a first sighting).
type TransitionFunc func(deviceID string, prev, next domain.MachineState)

type Extractor struct {
	mu           sync.RWMutex
	states       map[string]domain.MachineState
	onTransition TransitionFunc
}

func NewExtractor() *Extractor {
	return &Extractor{states: make(map[string]domain.MachineState)}
}

// OnTransition registers a hook invoked whenever the stored state kind
// changes. Set once at composition time, before messages flow.
func (e *Extractor) OnTransition(fn TransitionFunc) {
	e.onTransition = fn
}

// Apply inspects one telemetry_update payload. Without a _machine_state field
// it does nothing; with one it replaces the device's entry wholesale, so stale
// confidence or reasons never survive an update that omits them.
func (e *Extractor) Apply(deviceID string, telemetry map[string]any) {
	raw, ok := telemetry[FieldState]
	if !ok {
		return
	}
	str, ok := raw.(string)
	if !ok {
		return
	}

	next := domain.MachineState{State: domain.ParseMachineState(str)}
	if c, ok := domain.NumericValue(telemetry[FieldConfidence]); ok {
		next.Confidence = &c
	}
	if list, ok := telemetry[FieldReasons].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				next.Reasons = append(next.Reasons, s)
			}
		}
	}

	e.mu.Lock()
	prev, seen := e.states[deviceID]
	if !seen {
		prev = domain.MachineState{State: domain.StateUnknown}
	}
	e.states[deviceID] = next
	hook := e.onTransition
	e.mu.Unlock()

	if hook != nil && prev.State != next.State {
		hook(deviceID, prev, next)
	}
}

// StateFor returns the stored state for a device, defaulting to UNKNOWN for
// devices that never reported one. The default is never stored.
func (e *Extractor) StateFor(deviceID string) domain.MachineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if st, ok := e.states[deviceID]; ok {
		return st
	}
	return domain.MachineState{State: domain.StateUnknown}
}

// States returns a copy of all stored states.
func (e *Extractor) States() map[string]domain.MachineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]domain.MachineState, len(e.states))
	for id, st := range e.states {
		out[id] = st
	}
	return out
}
