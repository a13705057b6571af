package layout

import "github.com/iotdash/dashboard-engine/internal/domain"

// History is a linear, truncating version log of widget-list snapshots.
// The index always points at the entry matching the live list; recording
// after one or more undos discards everything past the index.
type History struct {
	log   [][]domain.Widget
	index int
}

func NewHistory(initial []domain.Widget) *History {
	return &History{log: [][]domain.Widget{domain.CloneWidgets(initial)}}
}

func (h *History) Record(widgets []domain.Widget) {
	h.log = append(h.log[:h.index+1], domain.CloneWidgets(widgets))
	h.index = len(h.log) - 1
}

func (h *History) Undo() ([]domain.Widget, bool) {
	if h.index == 0 {
		return nil, false
	}
	h.index--
	return domain.CloneWidgets(h.log[h.index]), true
}

func (h *History) Redo() ([]domain.Widget, bool) {
	if h.index >= len(h.log)-1 {
		return nil, false
	}
	h.index++
	return domain.CloneWidgets(h.log[h.index]), true
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.log)-1 }

// Reset collapses the log to a single entry. Used when switching dashboards:
// history never spans across them.
func (h *History) Reset(widgets []domain.Widget) {
	h.log = [][]domain.Widget{domain.CloneWidgets(widgets)}
	h.index = 0
}

// Len is the number of snapshots currently in the log.
func (h *History) Len() int { return len(h.log) }
