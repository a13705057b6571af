package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/iotdash/dashboard-engine/internal/dashboard"
	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/layout"
	"github.com/iotdash/dashboard-engine/internal/persist"
	"github.com/iotdash/dashboard-engine/internal/session"
	"github.com/iotdash/dashboard-engine/internal/upstream"
)

type addWidgetRequest struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	Key      string `json:"key"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	W        int    `json:"w"`
	H        int    `json:"h"`
}

type selectMetricsRequest struct {
	Metrics []domain.MetricBinding `json:"metrics"`
}

type dashboardRequest struct {
	Name string `json:"name"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func Register(app *fiber.App, s *session.Session, up *upstream.Client, connected func() bool) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "feed_connected": connected()})
	})

	api := app.Group("/api")

	api.Get("/devices", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"devices": s.Devices()})
	})

	api.Get("/devices/:id/telemetry", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !s.HasDevice(id) {
			return c.Status(404).JSON(fiber.Map{"error": "unknown device"})
		}
		return c.JSON(fiber.Map{"device_id": id, "telemetry": s.Latest(id)})
	})

	api.Get("/devices/:id/history/:key", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !s.HasDevice(id) {
			return c.Status(404).JSON(fiber.Map{"error": "unknown device"})
		}
		key := c.Params("key")
		return c.JSON(fiber.Map{"device_id": id, "key": key, "points": s.History(id, key)})
	})

	api.Get("/devices/:id/state", func(c *fiber.Ctx) error {
		return c.JSON(s.StateFor(c.Params("id")))
	})

	api.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"dashboards":  s.Dashboards(),
			"activeId":    s.ActiveDashboardID(),
			"widgets":     s.Widgets(),
			"theme":       s.Theme(),
			"connected":   connected(),
			"canUndo":     s.CanUndo(),
			"canRedo":     s.CanRedo(),
			"deviceCount": len(s.Devices()),
		})
	})

	api.Post("/control", func(c *fiber.Ctx) error {
		var cmd upstream.ControlCommand
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		if cmd.DeviceID == "" || cmd.Command == "" {
			return c.Status(400).JSON(fiber.Map{"error": "device_id and command are required"})
		}
		if up == nil {
			return c.Status(503).JSON(fiber.Map{"error": "no upstream configured"})
		}
		if err := up.Control(c.Context(), cmd); err != nil {
			return c.Status(502).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "sent"})
	})

	// Widget creation is a two-step flow. A single POST both begins the draft
	// and binds it; multi_metric widgets answer 202 and wait for a follow-up
	// metric selection.
	api.Post("/widgets", func(c *fiber.Ctx) error {
		var req addWidgetRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		t := domain.WidgetType(req.Type)
		if !t.Valid() {
			return c.Status(400).JSON(fiber.Map{"error": "unknown widget type"})
		}
		if err := s.BeginWidget(t, req.X, req.Y, req.W, req.H); err != nil {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		w, committed, err := s.BindWidget(req.DeviceID, req.Key)
		if err != nil {
			s.CancelDraft()
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		if !committed {
			return c.Status(202).JSON(fiber.Map{"status": "awaiting_metrics", "widget": w})
		}
		return c.Status(201).JSON(w)
	})

	api.Post("/widgets/metrics", func(c *fiber.Ctx) error {
		var req selectMetricsRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		w, err := s.SelectMetrics(req.Metrics)
		if err != nil {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(w)
	})

	api.Delete("/widgets/draft", func(c *fiber.Ctx) error {
		s.CancelDraft()
		return c.SendStatus(204)
	})

	api.Get("/widgets", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"widgets": s.Widgets()})
	})

	api.Post("/widgets/:id/duplicate", func(c *fiber.Ctx) error {
		w, ok := s.DuplicateWidget(c.Params("id"))
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "unknown widget"})
		}
		return c.Status(201).JSON(w)
	})

	api.Patch("/widgets/:id", func(c *fiber.Ctx) error {
		var settings layout.Settings
		if err := c.BodyParser(&settings); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		if !s.UpdateWidgetSettings(c.Params("id"), settings) {
			return c.Status(404).JSON(fiber.Map{"error": "unknown widget"})
		}
		return c.SendStatus(204)
	})

	api.Delete("/widgets/:id", func(c *fiber.Ctx) error {
		if !s.RemoveWidget(c.Params("id")) {
			return c.Status(404).JSON(fiber.Map{"error": "unknown widget"})
		}
		return c.SendStatus(204)
	})

	api.Post("/layout", func(c *fiber.Ctx) error {
		var items []layout.Placement
		if err := c.BodyParser(&items); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		s.ApplyLayout(items)
		return c.JSON(fiber.Map{"widgets": s.Widgets()})
	})

	api.Post("/history/undo", func(c *fiber.Ctx) error {
		if !s.Undo() {
			return c.Status(409).JSON(fiber.Map{"error": "nothing to undo"})
		}
		return c.JSON(fiber.Map{"widgets": s.Widgets(), "canUndo": s.CanUndo(), "canRedo": s.CanRedo()})
	})

	api.Post("/history/redo", func(c *fiber.Ctx) error {
		if !s.Redo() {
			return c.Status(409).JSON(fiber.Map{"error": "nothing to redo"})
		}
		return c.JSON(fiber.Map{"widgets": s.Widgets(), "canUndo": s.CanUndo(), "canRedo": s.CanRedo()})
	})

	api.Get("/dashboards", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"dashboards": s.Dashboards(), "activeId": s.ActiveDashboardID()})
	})

	api.Post("/dashboards", func(c *fiber.Ctx) error {
		var req dashboardRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		return c.Status(201).JSON(s.CreateDashboard(req.Name))
	})

	api.Post("/dashboards/:id/activate", func(c *fiber.Ctx) error {
		if !s.SwitchDashboard(c.Params("id")) {
			return c.Status(404).JSON(fiber.Map{"error": "unknown dashboard"})
		}
		return c.JSON(fiber.Map{"activeId": s.ActiveDashboardID(), "widgets": s.Widgets()})
	})

	api.Patch("/dashboards/:id", func(c *fiber.Ctx) error {
		var req dashboardRequest
		if err := c.BodyParser(&req); err != nil || req.Name == "" {
			return c.Status(400).JSON(fiber.Map{"error": "name is required"})
		}
		if !s.RenameDashboard(c.Params("id"), req.Name) {
			return c.Status(404).JSON(fiber.Map{"error": "unknown dashboard"})
		}
		return c.SendStatus(204)
	})

	api.Delete("/dashboards/:id", func(c *fiber.Ctx) error {
		if err := s.DeleteDashboard(c.Params("id")); err != nil {
			if errors.Is(err, dashboard.ErrLastDashboard) {
				return c.Status(409).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(404).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"activeId": s.ActiveDashboardID(), "dashboards": s.Dashboards()})
	})

	api.Post("/save", func(c *fiber.Ctx) error {
		if err := s.Save(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "saved"})
	})

	api.Post("/load", func(c *fiber.Ctx) error {
		if err := s.Load(c.Context()); err != nil {
			if errors.Is(err, persist.ErrNoSnapshot) {
				return c.Status(404).JSON(fiber.Map{"error": "no saved snapshot"})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"dashboards": s.Dashboards(), "activeId": s.ActiveDashboardID(), "theme": s.Theme()})
	})

	api.Put("/theme", func(c *fiber.Ctx) error {
		var req themeRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "bad request body"})
		}
		if err := s.SetTheme(req.Theme); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"theme": s.Theme()})
	})
}
