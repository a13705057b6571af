// Package layout owns the editable widget model for the active dashboard:
// the ordered widget list, its undo/redo history, and the pending-widget
// draft flow. Every mutation replaces the list atomically and records the
// result in the history log.
package layout

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/iotdash/dashboard-engine/internal/domain"
)

var lastID atomic.Int64

// NewWidgetID allocates a time-based id. Strictly increasing even when the
// clock is coarse, so ids stay unique for the session and sort by creation.
func NewWidgetID() string {
	now := time.Now().UnixNano()
	for {
		prev := lastID.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastID.CompareAndSwap(prev, now) {
			return "widget_" + strconv.FormatInt(now, 10)
		}
	}
}

// Settings is the shallow-merge patch applied by UpdateSettings. Nil fields
// are left untouched.
type Settings struct {
	CustomTitle *string  `json:"customTitle,omitempty"`
	Unit        *string  `json:"unit,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

// Placement is one entry of a grid layout-change event.
type Placement struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	W  int    `json:"w"`
	H  int    `json:"h"`
}

type Model struct {
	widgets []domain.Widget
	hist    *History
}

func NewModel() *Model {
	return &Model{hist: NewHistory(nil)}
}

func (m *Model) Widgets() []domain.Widget {
	return domain.CloneWidgets(m.widgets)
}

func (m *Model) History() *History { return m.hist }

// Reset replaces the list and collapses history to a single entry.
func (m *Model) Reset(widgets []domain.Widget) {
	m.widgets = domain.CloneWidgets(widgets)
	m.hist.Reset(m.widgets)
}

func (m *Model) set(widgets []domain.Widget) {
	m.widgets = widgets
	m.hist.Record(widgets)
}

// Add appends an already-built widget and records the new list.
func (m *Model) Add(w domain.Widget) {
	next := append(domain.CloneWidgets(m.widgets), w)
	m.set(next)
}

// Remove deletes the widget with the given id. Absent ids are a no-op and
// record nothing.
func (m *Model) Remove(id string) bool {
	next := make([]domain.Widget, 0, len(m.widgets))
	found := false
	for _, w := range m.widgets {
		if w.ID == id {
			found = true
			continue
		}
		next = append(next, w.Clone())
	}
	if !found {
		return false
	}
	m.set(next)
	return true
}

// Duplicate clones a widget under a fresh id, offset by one grid unit on both
// axes so the copy does not exactly overlap the original.
func (m *Model) Duplicate(id string) (domain.Widget, bool) {
	for _, w := range m.widgets {
		if w.ID != id {
			continue
		}
		copy := w.Clone()
		copy.ID = NewWidgetID()
		copy.X = w.X + 1
		copy.Y = w.Y + 1
		m.Add(copy)
		return copy, true
	}
	return domain.Widget{}, false
}

// UpdateSettings shallow-merges the patch into the widget.
func (m *Model) UpdateSettings(id string, s Settings) bool {
	next := domain.CloneWidgets(m.widgets)
	found := false
	for i := range next {
		if next[i].ID != id {
			continue
		}
		found = true
		if s.CustomTitle != nil {
			next[i].CustomTitle = *s.CustomTitle
		}
		if s.Unit != nil {
			next[i].Unit = *s.Unit
		}
		if s.Threshold != nil {
			v := *s.Threshold
			next[i].Threshold = &v
		}
		if s.Min != nil {
			v := *s.Min
			next[i].Min = &v
		}
		if s.Max != nil {
			v := *s.Max
			next[i].Max = &v
		}
	}
	if !found {
		return false
	}
	m.set(next)
	return true
}

// ApplyLayout folds a grid layout-change event into the list. Only widgets
// named by the event move; a widget missing from the event is left alone.
// Layout events never delete.
func (m *Model) ApplyLayout(items []Placement) {
	if len(items) == 0 {
		return
	}
	byID := make(map[string]Placement, len(items))
	for _, p := range items {
		byID[p.ID] = p
	}
	next := domain.CloneWidgets(m.widgets)
	changed := false
	for i := range next {
		p, ok := byID[next[i].ID]
		if !ok {
			continue
		}
		if p.X < 0 || p.Y < 0 || p.W < 0 || p.H < 0 {
			continue
		}
		if next[i].MinW > 0 && p.W < next[i].MinW {
			p.W = next[i].MinW
		}
		if next[i].MinH > 0 && p.H < next[i].MinH {
			p.H = next[i].MinH
		}
		if next[i].X != p.X || next[i].Y != p.Y || next[i].W != p.W || next[i].H != p.H {
			next[i].X, next[i].Y, next[i].W, next[i].H = p.X, p.Y, p.W, p.H
			changed = true
		}
	}
	if changed {
		m.set(next)
	}
}

// Undo steps the list back one snapshot. No-op at the start of the log.
func (m *Model) Undo() bool {
	widgets, ok := m.hist.Undo()
	if !ok {
		return false
	}
	m.widgets = widgets
	return true
}

// Redo steps forward one snapshot. No-op at the end of the log.
func (m *Model) Redo() bool {
	widgets, ok := m.hist.Redo()
	if !ok {
		return false
	}
	m.widgets = widgets
	return true
}

func (m *Model) CanUndo() bool { return m.hist.CanUndo() }
func (m *Model) CanRedo() bool { return m.hist.CanRedo() }
