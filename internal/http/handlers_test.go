package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/persist"
	"github.com/iotdash/dashboard-engine/internal/session"
	"github.com/iotdash/dashboard-engine/internal/telemetry"
)

func newTestApp(t *testing.T) (*fiber.App, *session.Session) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboards.json")
	gateway := persist.NewGateway(persist.NewFileStore(path), "file", zerolog.Nop())
	sess := session.New(telemetry.NewStore(zerolog.Nop()), gateway, nil, zerolog.Nop())
	app := fiber.New()
	Register(app, sess, nil, func() bool { return true })
	return app, sess
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func feed(t *testing.T, s *session.Session, frame string) {
	t.Helper()
	env, err := domain.DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	s.HandleMessage(env, []byte(frame))
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t)
	resp, body := doJSON(t, app, "GET", "/healthz", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["feed_connected"])
}

func TestDeviceEndpoints(t *testing.T) {
	app, sess := newTestApp(t)
	feed(t, sess, `{"type":"telemetry_update","device_id":"pump-1","timestamp":1,"telemetry":{"flow":10,"_machine_state":"RUNNING"}}`)

	resp, body := doJSON(t, app, "GET", "/api/devices", nil)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, body["devices"], 1)

	resp, body = doJSON(t, app, "GET", "/api/devices/pump-1/telemetry", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, map[string]any{"flow": float64(10)}, body["telemetry"])

	resp, body = doJSON(t, app, "GET", "/api/devices/pump-1/history/flow", nil)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, body["points"], 1)

	resp, body = doJSON(t, app, "GET", "/api/devices/pump-1/state", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "RUNNING", body["state"])

	resp, _ = doJSON(t, app, "GET", "/api/devices/ghost/telemetry", nil)
	assert.Equal(t, 404, resp.StatusCode)

	// unknown devices still answer a state: the UNKNOWN default
	resp, body = doJSON(t, app, "GET", "/api/devices/ghost/state", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "UNKNOWN", body["state"])
}

func TestWidgetLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp, created := doJSON(t, app, "POST", "/api/widgets", addWidgetRequest{
		Type: "gauge", DeviceID: "pump-1", Key: "flow", X: 1, Y: 2, W: 4, H: 3,
	})
	require.Equal(t, 201, resp.StatusCode)
	id := created["id"].(string)
	assert.Equal(t, "pump-1.flow", created["bind"])

	resp, dup := doJSON(t, app, "POST", "/api/widgets/"+id+"/duplicate", nil)
	require.Equal(t, 201, resp.StatusCode)
	assert.NotEqual(t, id, dup["id"])
	assert.Equal(t, float64(2), dup["x"])

	resp, _ = doJSON(t, app, "PATCH", "/api/widgets/"+id, map[string]any{"customTitle": "Flow Rate"})
	assert.Equal(t, 204, resp.StatusCode)

	resp, _ = doJSON(t, app, "DELETE", "/api/widgets/"+id, nil)
	assert.Equal(t, 204, resp.StatusCode)

	resp, _ = doJSON(t, app, "DELETE", "/api/widgets/"+id, nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp, body := doJSON(t, app, "GET", "/api/widgets", nil)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, body["widgets"], 1)
}

func TestWidgetValidation(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/widgets", addWidgetRequest{Type: "hologram"})
	assert.Equal(t, 400, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/widgets", addWidgetRequest{Type: "gauge", Key: "flow"})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestMultiMetricTwoPhase(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "/api/widgets", addWidgetRequest{
		Type: "multi_metric", DeviceID: "mill-1", X: 0, Y: 0, W: 4, H: 3,
	})
	require.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, "awaiting_metrics", body["status"])

	resp, widget := doJSON(t, app, "POST", "/api/widgets/metrics", selectMetricsRequest{
		Metrics: []domain.MetricBinding{{Key: "rpm"}, {Key: "temperature"}},
	})
	require.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "mill-1", widget["deviceId"])
	assert.Len(t, widget["metrics"], 2)

	// second selection with no pending draft
	resp, _ = doJSON(t, app, "POST", "/api/widgets/metrics", selectMetricsRequest{})
	assert.Equal(t, 409, resp.StatusCode)
}

func TestUndoRedoEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/history/undo", nil)
	assert.Equal(t, 409, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/widgets", addWidgetRequest{Type: "numeric", DeviceID: "pump-1", Key: "flow", W: 4, H: 3})
	require.Equal(t, 201, resp.StatusCode)

	resp, body := doJSON(t, app, "POST", "/api/history/undo", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, body["widgets"])
	assert.Equal(t, true, body["canRedo"])

	resp, body = doJSON(t, app, "POST", "/api/history/redo", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, body["widgets"], 1)
}

func TestDashboardEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "DELETE", "/api/dashboards/default", nil)
	assert.Equal(t, 409, resp.StatusCode)

	resp, created := doJSON(t, app, "POST", "/api/dashboards", dashboardRequest{Name: "Floor 2"})
	require.Equal(t, 201, resp.StatusCode)
	id := created["id"].(string)

	resp, body := doJSON(t, app, "GET", "/api/dashboards", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, body["dashboards"], 2)
	assert.Equal(t, id, body["activeId"])

	resp, _ = doJSON(t, app, "PATCH", "/api/dashboards/"+id, dashboardRequest{Name: "Floor Two"})
	assert.Equal(t, 204, resp.StatusCode)

	resp, body = doJSON(t, app, "POST", "/api/dashboards/default/activate", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "default", body["activeId"])

	resp, _ = doJSON(t, app, "POST", "/api/dashboards/ghost/activate", nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp, body = doJSON(t, app, "DELETE", "/api/dashboards/"+id, nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, body["dashboards"], 1)
}

func TestSaveLoadEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/load", nil)
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/widgets", addWidgetRequest{Type: "chart", DeviceID: "pump-1", Key: "flow"})
	require.Equal(t, 201, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/save", nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp, body := doJSON(t, app, "POST", "/api/load", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "default", body["activeId"])
}

func TestThemeEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, "PUT", "/api/theme", themeRequest{Theme: "dark"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "dark", body["theme"])

	resp, _ = doJSON(t, app, "PUT", "/api/theme", themeRequest{Theme: "plasma"})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestControlWithoutUpstream(t *testing.T) {
	app, _ := newTestApp(t)
	resp, _ := doJSON(t, app, "POST", "/api/control", map[string]any{"device_id": "pump-1", "command": "relay_on"})
	assert.Equal(t, 503, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/control", map[string]any{"command": "relay_on"})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestStateEndpoint(t *testing.T) {
	app, sess := newTestApp(t)
	feed(t, sess, `{"type":"telemetry_update","device_id":"pump-1","timestamp":1,"telemetry":{"flow":10}}`)

	resp, body := doJSON(t, app, "GET", "/api/state", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "default", body["activeId"])
	assert.Equal(t, float64(1), body["deviceCount"])
	assert.Equal(t, "light", body["theme"])
}
