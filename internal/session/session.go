// Package session owns one user's complete engine state: the telemetry store,
// machine-state extractor, dashboard registry, in-flight widget draft, theme
// and persistence gateway. Every mutation goes through the session so readers
// always observe a coherent view.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iotdash/dashboard-engine/internal/dashboard"
	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/layout"
	"github.com/iotdash/dashboard-engine/internal/machinestate"
	"github.com/iotdash/dashboard-engine/internal/persist"
	"github.com/iotdash/dashboard-engine/internal/telemetry"
)

// Broadcaster fans raw frames out to connected browsers.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// FaultNotifier is invoked when a device enters the FAULT state.
type FaultNotifier interface {
	NotifyFault(deviceID string, st domain.MachineState) error
}

type Session struct {
	mu        sync.Mutex
	store     *telemetry.Store
	extractor *machinestate.Extractor
	registry  *dashboard.Registry
	draft     *layout.Draft
	gateway   *persist.Gateway
	hub       Broadcaster
	theme     string
	log       zerolog.Logger
}

func New(store *telemetry.Store, gateway *persist.Gateway, hub Broadcaster, log zerolog.Logger) *Session {
	return &Session{
		store:     store,
		extractor: machinestate.NewExtractor(),
		registry:  dashboard.NewRegistry(),
		draft:     layout.NewDraft(),
		gateway:   gateway,
		hub:       hub,
		theme:     "light",
		log:       log.With().Str("component", "session").Logger(),
	}
}

// SetFaultNotifier wires an alert sink that fires on entry into FAULT. Call
// during composition, before messages flow.
func (s *Session) SetFaultNotifier(n FaultNotifier) {
	s.extractor.OnTransition(func(deviceID string, prev, next domain.MachineState) {
		if next.State != domain.StateFault || prev.State == domain.StateFault {
			return
		}
		if err := n.NotifyFault(deviceID, next); err != nil {
			s.log.Warn().Err(err).Str("device_id", deviceID).Msg("fault notification failed")
		}
	})
}

// HandleMessage is the feed sink: it folds one decoded message into the
// telemetry store and state extractor, then relays the raw frame to browsers.
func (s *Session) HandleMessage(env *domain.Envelope, raw []byte) {
	s.store.Apply(env)
	if env.Type == domain.MsgTelemetryUpdate {
		s.extractor.Apply(env.DeviceID, env.Telemetry)
	}
	if s.hub != nil {
		s.hub.Broadcast(raw)
	}
}

// Telemetry and device reads delegate to the store, which carries its own lock.

func (s *Session) Devices() []domain.Device { return s.store.Devices() }
func (s *Session) Latest(id string) map[string]float64 { return s.store.Latest(id) }
func (s *Session) HasDevice(id string) bool { return s.store.HasDevice(id) }
func (s *Session) History(id, key string) []domain.TelemetryPoint {
	return s.store.History(id, key)
}
func (s *Session) StateFor(id string) domain.MachineState { return s.extractor.StateFor(id) }
func (s *Session) States() map[string]domain.MachineState { return s.extractor.States() }

// InitialStateFrame renders the frame a freshly connected browser receives.
func (s *Session) InitialStateFrame() []byte {
	env := domain.Envelope{
		Type:    domain.MsgInitialState,
		Devices: s.store.Devices(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Msg("initial state encode failed")
		return []byte(`{"type":"initial_state","devices":[]}`)
	}
	return raw
}

// Widget creation runs as a small three-step flow: begin with a type and
// placement, bind a device or stream, and for multi-metric widgets pick the
// metrics afterwards.

func (s *Session) BeginWidget(t domain.WidgetType, x, y, w, h int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Begin(t, x, y, w, h)
}

func (s *Session) BindWidget(deviceID, key string) (domain.Widget, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, committed, err := s.draft.Bind(deviceID, key)
	if err != nil {
		return domain.Widget{}, false, err
	}
	if committed {
		s.registry.Add(w)
	}
	return w, committed, nil
}

func (s *Session) SelectMetrics(metrics []domain.MetricBinding) (domain.Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.draft.SelectMetrics(metrics)
	if err != nil {
		return domain.Widget{}, err
	}
	s.registry.Add(w)
	return w, nil
}

func (s *Session) CancelDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Cancel()
}

func (s *Session) Widgets() []domain.Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Widgets()
}

func (s *Session) RemoveWidget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Remove(id)
}

func (s *Session) DuplicateWidget(id string) (domain.Widget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Duplicate(id)
}

func (s *Session) UpdateWidgetSettings(id string, settings layout.Settings) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.UpdateSettings(id, settings)
}

func (s *Session) ApplyLayout(items []layout.Placement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.ApplyLayout(items)
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Undo()
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Redo()
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.CanRedo()
}

// Dashboard registry operations.

func (s *Session) Dashboards() []domain.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Dashboards()
}

func (s *Session) ActiveDashboardID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ActiveID()
}

func (s *Session) CreateDashboard(name string) domain.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Create(name)
}

func (s *Session) SwitchDashboard(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.SwitchTo(id)
}

func (s *Session) RenameDashboard(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Rename(id, name)
}

func (s *Session) DeleteDashboard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Delete(id)
}

// Theme handling. Only the two values the renderer understands are accepted.

func (s *Session) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *Session) SetTheme(theme string) error {
	if theme != "light" && theme != "dark" {
		return fmt.Errorf("unknown theme %q", theme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	return nil
}

// Save captures the full multi-dashboard snapshot through the gateway.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	snap := persist.Snapshot{
		Dashboards: s.registry.Dashboards(),
		ActiveID:   s.registry.ActiveID(),
		Theme:      s.theme,
	}
	s.mu.Unlock()
	return s.gateway.Save(ctx, snap)
}

// Load replaces the registry and theme with the persisted snapshot. The
// in-memory state is untouched when the gateway reports an error.
func (s *Session) Load(ctx context.Context) error {
	snap, err := s.gateway.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Restore(snap.Dashboards, snap.ActiveID)
	if snap.Theme == "dark" || snap.Theme == "light" {
		s.theme = snap.Theme
	}
	s.log.Info().Str("active", snap.ActiveID).Int("dashboards", len(snap.Dashboards)).Msg("snapshot restored")
	return nil
}
