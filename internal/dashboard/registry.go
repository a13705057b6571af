// Package dashboard holds the named collection of widget arrangements and the
// active pointer. The live layout model and the active dashboard's widgets
// are kept identical after every mutation (write-through); history never
// survives a dashboard switch.
package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/layout"
)

// ErrLastDashboard rejects deleting the only remaining dashboard.
var ErrLastDashboard = errors.New("cannot delete the last dashboard")

// DefaultName is the name given to the initial dashboard and to dashboards
// migrated from the legacy single-dashboard format.
const DefaultName = "Main Dashboard"

// Registry is single-owner state: all access is serialized by the session.
type Registry struct {
	dashboards []domain.Dashboard
	activeID   string
	model      *layout.Model
}

func NewRegistry() *Registry {
	r := &Registry{model: layout.NewModel()}
	initial := domain.Dashboard{
		ID:        "default",
		Name:      DefaultName,
		Widgets:   []domain.Widget{},
		CreatedAt: time.Now().UnixMilli(),
	}
	r.dashboards = []domain.Dashboard{initial}
	r.activeID = initial.ID
	r.model.Reset(nil)
	return r
}

func (r *Registry) ActiveID() string { return r.activeID }

// Widgets returns the live layout's widget list.
func (r *Registry) Widgets() []domain.Widget { return r.model.Widgets() }

// Dashboards returns a copy of the collection; the active entry reflects the
// live layout.
func (r *Registry) Dashboards() []domain.Dashboard {
	return domain.CloneDashboards(r.dashboards)
}

// Create appends a new empty dashboard, makes it active, and resets history.
func (r *Registry) Create(name string) domain.Dashboard {
	if name == "" {
		name = fmt.Sprintf("Dashboard %d", len(r.dashboards)+1)
	}
	d := domain.Dashboard{
		ID:        "dashboard_" + uuid.NewString(),
		Name:      name,
		Widgets:   []domain.Widget{},
		CreatedAt: time.Now().UnixMilli(),
	}
	r.dashboards = append(r.dashboards, d)
	r.activeID = d.ID
	r.model.Reset(nil)
	return d.Clone()
}

// SwitchTo activates a dashboard by id, loading its widgets as the live model
// and collapsing history to a single entry. Unknown ids are a silent no-op.
func (r *Registry) SwitchTo(id string) bool {
	for _, d := range r.dashboards {
		if d.ID == id {
			r.activeID = id
			r.model.Reset(d.Widgets)
			return true
		}
	}
	return false
}

// Rename updates the name only.
func (r *Registry) Rename(id, name string) bool {
	for i := range r.dashboards {
		if r.dashboards[i].ID == id {
			r.dashboards[i].Name = name
			return true
		}
	}
	return false
}

// Delete removes a dashboard. Deleting the last one is rejected; deleting the
// active one switches to the first remaining.
func (r *Registry) Delete(id string) error {
	if len(r.dashboards) == 1 {
		return ErrLastDashboard
	}
	idx := -1
	for i, d := range r.dashboards {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("dashboard %q not found", id)
	}
	r.dashboards = append(r.dashboards[:idx], r.dashboards[idx+1:]...)
	if r.activeID == id {
		r.SwitchTo(r.dashboards[0].ID)
	}
	return nil
}

// Restore replaces the whole collection from a loaded snapshot. An empty
// collection falls back to a fresh default; an unknown active id falls back
// to the first entry.
func (r *Registry) Restore(dashboards []domain.Dashboard, activeID string) {
	if len(dashboards) == 0 {
		fresh := NewRegistry()
		r.dashboards = fresh.dashboards
		r.activeID = fresh.activeID
		r.model.Reset(nil)
		return
	}
	r.dashboards = domain.CloneDashboards(dashboards)
	if !r.SwitchTo(activeID) {
		r.SwitchTo(r.dashboards[0].ID)
	}
}

// sync writes the live widget list through into the active entry.
func (r *Registry) sync() {
	widgets := r.model.Widgets()
	for i := range r.dashboards {
		if r.dashboards[i].ID == r.activeID {
			r.dashboards[i].Widgets = widgets
			return
		}
	}
}

// Layout mutations, each writing through to the active dashboard entry.

func (r *Registry) Add(w domain.Widget) {
	r.model.Add(w)
	r.sync()
}

func (r *Registry) Remove(id string) bool {
	ok := r.model.Remove(id)
	if ok {
		r.sync()
	}
	return ok
}

func (r *Registry) Duplicate(id string) (domain.Widget, bool) {
	w, ok := r.model.Duplicate(id)
	if ok {
		r.sync()
	}
	return w, ok
}

func (r *Registry) UpdateSettings(id string, s layout.Settings) bool {
	ok := r.model.UpdateSettings(id, s)
	if ok {
		r.sync()
	}
	return ok
}

func (r *Registry) ApplyLayout(items []layout.Placement) {
	r.model.ApplyLayout(items)
	r.sync()
}

func (r *Registry) Undo() bool {
	ok := r.model.Undo()
	if ok {
		r.sync()
	}
	return ok
}

func (r *Registry) Redo() bool {
	ok := r.model.Redo()
	if ok {
		r.sync()
	}
	return ok
}

func (r *Registry) CanUndo() bool { return r.model.CanUndo() }
func (r *Registry) CanRedo() bool { return r.model.CanRedo() }
