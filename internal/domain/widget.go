package domain

import "strings"

// WidgetType enumerates the widget kinds the renderer understands. The set is
// closed: binding style and default geometry dispatch exhaustively on it.
type WidgetType string

const (
	WidgetNumeric      WidgetType = "numeric"
	WidgetGauge        WidgetType = "gauge"
	WidgetChart        WidgetType = "chart"
	WidgetChartStep    WidgetType = "chart_step"
	WidgetChartSmooth  WidgetType = "chart_smooth"
	WidgetChartLinear  WidgetType = "chart_linear"
	WidgetChartBar     WidgetType = "chart_bar"
	WidgetChartScatter WidgetType = "chart_scatter"
	WidgetMultiStream  WidgetType = "chart_multistream"
	WidgetStatus       WidgetType = "status"
	WidgetProgress     WidgetType = "progress"
	WidgetAlarm        WidgetType = "alarm"
	WidgetBattery      WidgetType = "battery"
	WidgetKPI          WidgetType = "kpi"
	WidgetStatusTile   WidgetType = "status_widget"
	WidgetMap          WidgetType = "map"
	WidgetPrediction   WidgetType = "prediction"
	WidgetMultiMetric  WidgetType = "multi_metric"
	WidgetPinMapping   WidgetType = "pin_mapping"
	WidgetPinReference WidgetType = "pin_reference"
	WidgetMachineState WidgetType = "machine_state"
	WidgetControl      WidgetType = "control"
)

// BindingStyle says what a widget kind needs to resolve its data.
type BindingStyle int

const (
	// BindKeyPath binds to a single "deviceId.key" telemetry stream.
	BindKeyPath BindingStyle = iota
	// BindDevice binds to a device as a whole (status, state, metric lists).
	BindDevice
	// BindNone needs no data binding at all.
	BindNone
)

// Binding dispatches exhaustively over the kind enum.
func (t WidgetType) Binding() BindingStyle {
	switch t {
	case WidgetNumeric, WidgetGauge, WidgetChart, WidgetChartStep,
		WidgetChartSmooth, WidgetChartLinear, WidgetChartBar,
		WidgetChartScatter, WidgetProgress, WidgetAlarm, WidgetKPI,
		WidgetPrediction:
		return BindKeyPath
	case WidgetStatus, WidgetStatusTile, WidgetBattery, WidgetMap,
		WidgetMultiStream, WidgetMultiMetric, WidgetPinMapping,
		WidgetMachineState, WidgetControl:
		return BindDevice
	case WidgetPinReference:
		return BindNone
	}
	return BindNone
}

func (t WidgetType) Valid() bool {
	switch t {
	case WidgetNumeric, WidgetGauge, WidgetChart, WidgetChartStep,
		WidgetChartSmooth, WidgetChartLinear, WidgetChartBar,
		WidgetChartScatter, WidgetMultiStream, WidgetStatus, WidgetProgress,
		WidgetAlarm, WidgetBattery, WidgetKPI, WidgetStatusTile, WidgetMap,
		WidgetPrediction, WidgetMultiMetric, WidgetPinMapping,
		WidgetPinReference, WidgetMachineState, WidgetControl:
		return true
	}
	return false
}

// MetricBinding is one entry of a multi-metric widget's list.
type MetricBinding struct {
	Key       string   `json:"key"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// StreamBinding is one series of a multi-stream chart.
type StreamBinding struct {
	Key string `json:"key"`
}

// Widget is one placed widget descriptor. Exactly one binding style is
// populated per instance: Bind ("deviceId.key") for key-bound kinds, DeviceID
// for device-bound kinds. ID never changes after creation.
type Widget struct {
	ID          string          `json:"id"`
	Type        WidgetType      `json:"type"`
	Bind        string          `json:"bind,omitempty"`
	DeviceID    string          `json:"deviceId,omitempty"`
	X           int             `json:"x"`
	Y           int             `json:"y"`
	W           int             `json:"w"`
	H           int             `json:"h"`
	MinW        int             `json:"minW,omitempty"`
	MinH        int             `json:"minH,omitempty"`
	CustomTitle string          `json:"customTitle,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Threshold   *float64        `json:"threshold,omitempty"`
	Min         *float64        `json:"min,omitempty"`
	Max         *float64        `json:"max,omitempty"`
	Metrics     []MetricBinding `json:"metrics,omitempty"`
	Streams     []StreamBinding `json:"streams,omitempty"`
}

// Device resolves the device half of the binding regardless of style.
func (w Widget) Device() string {
	if w.Bind != "" {
		if i := strings.IndexByte(w.Bind, '.'); i >= 0 {
			return w.Bind[:i]
		}
		return w.Bind
	}
	return w.DeviceID
}

// Key resolves the telemetry key for key-bound widgets, "" otherwise.
func (w Widget) Key() string {
	if i := strings.IndexByte(w.Bind, '.'); i >= 0 {
		return w.Bind[i+1:]
	}
	return ""
}

func (w Widget) Clone() Widget {
	out := w
	out.Metrics = append([]MetricBinding(nil), w.Metrics...)
	out.Streams = append([]StreamBinding(nil), w.Streams...)
	if w.Threshold != nil {
		v := *w.Threshold
		out.Threshold = &v
	}
	if w.Min != nil {
		v := *w.Min
		out.Min = &v
	}
	if w.Max != nil {
		v := *w.Max
		out.Max = &v
	}
	return out
}

func CloneWidgets(in []Widget) []Widget {
	out := make([]Widget, len(in))
	for i, w := range in {
		out[i] = w.Clone()
	}
	return out
}
