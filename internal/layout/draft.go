package layout

import (
	"errors"

	"github.com/iotdash/dashboard-engine/internal/domain"
)

var (
	ErrNoDraft    = errors.New("no widget draft in progress")
	ErrNoDevice   = errors.New("no device selected")
	ErrNoKey      = errors.New("no telemetry key selected")
	ErrBadKind    = errors.New("unknown widget type")
	ErrNotPending = errors.New("draft is not awaiting metric selection")
)

// DraftPhase is the state of the pending-widget flow.
type DraftPhase int

const (
	PhaseIdle DraftPhase = iota
	// PhaseAwaitingBinding: a kind and grid position were chosen, the device
	// (and key, for key-bound kinds) is still missing.
	PhaseAwaitingBinding
	// PhaseAwaitingMetrics: multi-metric widgets additionally wait for the
	// metric list before anything is created.
	PhaseAwaitingMetrics
)

// Draft is the single pending-widget value behind every add flow. It replaces
// scattered per-modal flags with one explicit machine:
// Idle -> AwaitingBinding -> AwaitingMetrics? -> committed (back to Idle).
// Nothing is added to the layout until the flow completes.
type Draft struct {
	phase      DraftPhase
	widgetType domain.WidgetType
	x, y, w, h int
	deviceID   string
}

func NewDraft() *Draft { return &Draft{} }

func (d *Draft) Phase() DraftPhase { return d.phase }

// Begin starts a new flow, discarding any earlier pending draft.
func (d *Draft) Begin(t domain.WidgetType, x, y, w, h int) error {
	if !t.Valid() {
		return ErrBadKind
	}
	d.phase = PhaseAwaitingBinding
	d.widgetType = t
	d.x, d.y, d.w, d.h = x, y, w, h
	d.deviceID = ""
	return nil
}

// Bind supplies the device (and key). For the multi-metric kind the flow
// advances to metric selection and no widget exists yet; committed reports
// whether a widget was produced.
func (d *Draft) Bind(deviceID, key string) (w domain.Widget, committed bool, err error) {
	if d.phase != PhaseAwaitingBinding {
		return domain.Widget{}, false, ErrNoDraft
	}
	if deviceID == "" {
		return domain.Widget{}, false, ErrNoDevice
	}
	if d.widgetType == domain.WidgetMultiMetric {
		d.deviceID = deviceID
		d.phase = PhaseAwaitingMetrics
		return domain.Widget{}, false, nil
	}
	if d.widgetType.Binding() == domain.BindKeyPath && key == "" {
		return domain.Widget{}, false, ErrNoKey
	}
	widget := d.build(deviceID, key, nil)
	d.phase = PhaseIdle
	return widget, true, nil
}

// SelectMetrics completes a multi-metric flow with the chosen metric list.
func (d *Draft) SelectMetrics(metrics []domain.MetricBinding) (domain.Widget, error) {
	if d.phase != PhaseAwaitingMetrics {
		return domain.Widget{}, ErrNotPending
	}
	widget := d.build(d.deviceID, "", metrics)
	d.phase = PhaseIdle
	return widget, nil
}

// Cancel abandons any pending flow.
func (d *Draft) Cancel() {
	d.phase = PhaseIdle
	d.deviceID = ""
}

func (d *Draft) build(deviceID, key string, metrics []domain.MetricBinding) domain.Widget {
	w := domain.Widget{
		ID:   NewWidgetID(),
		Type: d.widgetType,
		X:    d.x,
		Y:    d.y,
		W:    d.w,
		H:    d.h,
		MinW: 2,
		MinH: 2,
	}
	switch d.widgetType.Binding() {
	case domain.BindKeyPath:
		w.Bind = deviceID + "." + key
	case domain.BindDevice:
		w.DeviceID = deviceID
	}
	if w.W == 0 || w.H == 0 {
		w.W, w.H = defaultSize(d.widgetType)
	}
	if w.X < 0 {
		w.X = 0
	}
	if w.Y < 0 {
		w.Y = 0
	}
	if w.W < w.MinW {
		w.W = w.MinW
	}
	if w.H < w.MinH {
		w.H = w.MinH
	}
	if d.widgetType == domain.WidgetAlarm && w.Threshold == nil {
		threshold := 50.0
		w.Threshold = &threshold
	}
	w.Metrics = append([]domain.MetricBinding(nil), metrics...)
	return w
}

func defaultSize(t domain.WidgetType) (w, h int) {
	switch t {
	case domain.WidgetChart, domain.WidgetChartStep, domain.WidgetChartSmooth,
		domain.WidgetChartLinear, domain.WidgetChartBar,
		domain.WidgetChartScatter, domain.WidgetMultiStream:
		return 6, 4
	default:
		return 4, 3
	}
}
