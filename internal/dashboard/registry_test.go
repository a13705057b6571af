package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/layout"
)

func testWidget(id string) domain.Widget {
	return domain.Widget{ID: id, Type: domain.WidgetNumeric, Bind: "dev-1.flow", W: 4, H: 3}
}

func TestNewRegistrySeedsDefault(t *testing.T) {
	r := NewRegistry()
	dashboards := r.Dashboards()
	require.Len(t, dashboards, 1)
	assert.Equal(t, "default", dashboards[0].ID)
	assert.Equal(t, DefaultName, dashboards[0].Name)
	assert.Empty(t, dashboards[0].Widgets)
	assert.Equal(t, "default", r.ActiveID())
	assert.NotZero(t, dashboards[0].CreatedAt)
}

func TestMutationsWriteThrough(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))

	dashboards := r.Dashboards()
	require.Len(t, dashboards[0].Widgets, 1)
	assert.Equal(t, "a", dashboards[0].Widgets[0].ID)
	assert.Equal(t, r.Widgets(), dashboards[0].Widgets)
}

func TestCreateSwitchesAndResetsHistory(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))
	assert.True(t, r.CanUndo())

	d := r.Create("Production Floor")
	assert.Equal(t, "Production Floor", d.Name)
	assert.Equal(t, d.ID, r.ActiveID())
	assert.Empty(t, r.Widgets())
	assert.False(t, r.CanUndo())

	// the first dashboard's widgets are intact
	dashboards := r.Dashboards()
	require.Len(t, dashboards, 2)
	assert.Len(t, dashboards[0].Widgets, 1)
}

func TestCreateDefaultName(t *testing.T) {
	r := NewRegistry()
	d := r.Create("")
	assert.Equal(t, "Dashboard 2", d.Name)
}

func TestSwitchLoadsWidgetsAndDropsHistory(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))
	second := r.Create("Second")
	r.Add(testWidget("b"))

	require.True(t, r.SwitchTo("default"))
	require.Len(t, r.Widgets(), 1)
	assert.Equal(t, "a", r.Widgets()[0].ID)
	assert.False(t, r.CanUndo())
	assert.False(t, r.CanRedo())

	require.True(t, r.SwitchTo(second.ID))
	assert.Equal(t, "b", r.Widgets()[0].ID)
}

func TestSwitchUnknownIDNoop(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))
	assert.False(t, r.SwitchTo("ghost"))
	assert.Equal(t, "default", r.ActiveID())
	assert.Len(t, r.Widgets(), 1)
}

func TestRename(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Rename("default", "Shop Floor"))
	assert.Equal(t, "Shop Floor", r.Dashboards()[0].Name)
	assert.False(t, r.Rename("ghost", "x"))
}

func TestDeleteLastDashboardRejected(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Delete("default"), ErrLastDashboard)
	require.Len(t, r.Dashboards(), 1)
}

func TestDeleteActiveFallsBack(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))
	second := r.Create("Second")
	require.Equal(t, second.ID, r.ActiveID())

	require.NoError(t, r.Delete(second.ID))
	assert.Equal(t, "default", r.ActiveID())
	require.Len(t, r.Widgets(), 1)
	assert.Equal(t, "a", r.Widgets()[0].ID)
}

func TestDeleteInactiveKeepsActive(t *testing.T) {
	r := NewRegistry()
	second := r.Create("Second")
	require.NoError(t, r.Delete("default"))
	assert.Equal(t, second.ID, r.ActiveID())
	assert.Error(t, r.Delete("ghost"))
}

func TestRestoreSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("local"))

	r.Restore([]domain.Dashboard{
		{ID: "d1", Name: "One", Widgets: []domain.Widget{testWidget("x")}},
		{ID: "d2", Name: "Two", Widgets: []domain.Widget{}},
	}, "d2")

	assert.Equal(t, "d2", r.ActiveID())
	assert.Empty(t, r.Widgets())
	require.Len(t, r.Dashboards(), 2)

	require.True(t, r.SwitchTo("d1"))
	assert.Equal(t, "x", r.Widgets()[0].ID)
}

func TestRestoreUnknownActiveFallsBackToFirst(t *testing.T) {
	r := NewRegistry()
	r.Restore([]domain.Dashboard{{ID: "d1", Name: "One", Widgets: []domain.Widget{}}}, "ghost")
	assert.Equal(t, "d1", r.ActiveID())
}

func TestRestoreEmptyFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	r.Create("Second")
	r.Restore(nil, "")
	dashboards := r.Dashboards()
	require.Len(t, dashboards, 1)
	assert.Equal(t, DefaultName, dashboards[0].Name)
}

func TestUndoWritesThrough(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))
	r.Add(testWidget("b"))

	require.True(t, r.Undo())
	dashboards := r.Dashboards()
	assert.Len(t, dashboards[0].Widgets, 1)

	require.True(t, r.Redo())
	assert.Len(t, r.Dashboards()[0].Widgets, 2)
}

func TestUpdateSettingsThroughRegistry(t *testing.T) {
	r := NewRegistry()
	r.Add(testWidget("a"))
	title := "Renamed"
	require.True(t, r.UpdateSettings("a", layout.Settings{CustomTitle: &title}))
	assert.Equal(t, "Renamed", r.Dashboards()[0].Widgets[0].CustomTitle)
}
