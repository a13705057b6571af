package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/layout"
	"github.com/iotdash/dashboard-engine/internal/persist"
	"github.com/iotdash/dashboard-engine/internal/telemetry"
)

type fakeHub struct {
	mu     sync.Mutex
	frames [][]byte
}

func (h *fakeHub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, msg)
}

func (h *fakeHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyFault(deviceID string, _ domain.MachineState) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, deviceID)
	return nil
}

func newTestSession(t *testing.T) (*Session, *fakeHub) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboards.json")
	gateway := persist.NewGateway(persist.NewFileStore(path), "file", zerolog.Nop())
	hub := &fakeHub{}
	sess := New(telemetry.NewStore(zerolog.Nop()), gateway, hub, zerolog.Nop())
	return sess, hub
}

func feed(t *testing.T, s *Session, frame string) {
	t.Helper()
	env, err := domain.DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	s.HandleMessage(env, []byte(frame))
}

func TestHandleMessageFoldsAndRelays(t *testing.T) {
	s, hub := newTestSession(t)
	feed(t, s, `{"type":"telemetry_update","device_id":"mill-1","timestamp":1,"telemetry":{"temperature":42,"_machine_state":"FAULT","_state_confidence":87}}`)

	require.True(t, s.HasDevice("mill-1"))
	assert.Equal(t, map[string]float64{"temperature": 42}, s.Latest("mill-1"))

	st := s.StateFor("mill-1")
	assert.Equal(t, domain.StateFault, st.State)
	require.NotNil(t, st.Confidence)
	assert.Equal(t, 87.0, *st.Confidence)

	// reserved fields never reach the series
	assert.Empty(t, s.History("mill-1", "_machine_state"))

	assert.Equal(t, 1, hub.count())
}

func TestFaultNotifierFiresOnEntryOnly(t *testing.T) {
	s, _ := newTestSession(t)
	n := &fakeNotifier{}
	s.SetFaultNotifier(n)

	feed(t, s, `{"type":"telemetry_update","device_id":"mill-1","timestamp":1,"telemetry":{"_machine_state":"RUNNING"}}`)
	feed(t, s, `{"type":"telemetry_update","device_id":"mill-1","timestamp":2,"telemetry":{"_machine_state":"FAULT"}}`)
	feed(t, s, `{"type":"telemetry_update","device_id":"mill-1","timestamp":3,"telemetry":{"_machine_state":"FAULT"}}`)
	feed(t, s, `{"type":"telemetry_update","device_id":"mill-1","timestamp":4,"telemetry":{"_machine_state":"IDLE"}}`)

	assert.Equal(t, []string{"mill-1"}, n.calls)
}

func TestWidgetAddFlow(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.BeginWidget(domain.WidgetGauge, 0, 0, 4, 3))
	w, committed, err := s.BindWidget("pump-1", "flow")
	require.NoError(t, err)
	require.True(t, committed)

	widgets := s.Widgets()
	require.Len(t, widgets, 1)
	assert.Equal(t, w.ID, widgets[0].ID)
	assert.Equal(t, "pump-1.flow", widgets[0].Bind)
	assert.True(t, s.CanUndo())
}

func TestMultiMetricFlowThroughSession(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.BeginWidget(domain.WidgetMultiMetric, 0, 0, 4, 3))
	_, committed, err := s.BindWidget("mill-1", "")
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Empty(t, s.Widgets())

	w, err := s.SelectMetrics([]domain.MetricBinding{{Key: "rpm"}})
	require.NoError(t, err)
	require.Len(t, s.Widgets(), 1)
	assert.Equal(t, w.ID, s.Widgets()[0].ID)
}

func TestUndoRedoThroughSession(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.BeginWidget(domain.WidgetNumeric, 0, 0, 4, 3))
	_, _, err := s.BindWidget("pump-1", "flow")
	require.NoError(t, err)

	require.True(t, s.Undo())
	assert.Empty(t, s.Widgets())
	require.True(t, s.Redo())
	assert.Len(t, s.Widgets(), 1)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.BeginWidget(domain.WidgetChart, 0, 0, 6, 4))
	w, _, err := s.BindWidget("pump-1", "flow")
	require.NoError(t, err)
	second := s.CreateDashboard("Second")
	require.NoError(t, s.SetTheme("dark"))

	require.NoError(t, s.Save(ctx))

	// mutate after saving, then restore
	require.True(t, s.SwitchDashboard("default"))
	require.True(t, s.RemoveWidget(w.ID))
	require.NoError(t, s.SetTheme("light"))

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, second.ID, s.ActiveDashboardID())
	assert.Equal(t, "dark", s.Theme())

	require.True(t, s.SwitchDashboard("default"))
	require.Len(t, s.Widgets(), 1)
	assert.Equal(t, w.ID, s.Widgets()[0].ID)
}

func TestLoadWithoutSnapshot(t *testing.T) {
	s, _ := newTestSession(t)
	err := s.Load(context.Background())
	assert.ErrorIs(t, err, persist.ErrNoSnapshot)
	// in-memory state untouched
	assert.Equal(t, "default", s.ActiveDashboardID())
}

func TestDeleteLastDashboardSurfaces(t *testing.T) {
	s, _ := newTestSession(t)
	assert.Error(t, s.DeleteDashboard("default"))
}

func TestThemeValidation(t *testing.T) {
	s, _ := newTestSession(t)
	assert.Equal(t, "light", s.Theme())
	require.NoError(t, s.SetTheme("dark"))
	assert.Equal(t, "dark", s.Theme())
	assert.Error(t, s.SetTheme("solarized"))
	assert.Equal(t, "dark", s.Theme())
}

func TestInitialStateFrame(t *testing.T) {
	s, _ := newTestSession(t)
	feed(t, s, `{"type":"telemetry_update","device_id":"pump-1","timestamp":1,"telemetry":{"flow":10}}`)

	var decoded struct {
		Type    string          `json:"type"`
		Devices []domain.Device `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(s.InitialStateFrame(), &decoded))
	assert.Equal(t, domain.MsgInitialState, decoded.Type)
	require.Len(t, decoded.Devices, 1)
	assert.Equal(t, "pump-1", decoded.Devices[0].DeviceID)
}

func TestApplyLayoutThroughSession(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.BeginWidget(domain.WidgetNumeric, 0, 0, 4, 3))
	w, _, err := s.BindWidget("pump-1", "flow")
	require.NoError(t, err)

	s.ApplyLayout([]layout.Placement{{ID: w.ID, X: 7, Y: 8, W: 5, H: 4}})
	got := s.Widgets()[0]
	assert.Equal(t, 7, got.X)
	assert.Equal(t, 8, got.Y)
}
