// Package upstream talks to the telemetry backend's REST surface: device
// discovery at startup and fire-and-forget control forwarding.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iotdash/dashboard-engine/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Devices fetches the discovered device list.
func (c *Client) Devices(ctx context.Context) ([]domain.Device, error) {
	var out struct {
		Devices []domain.Device `json:"devices"`
	}
	if err := c.getJSON(ctx, "/api/devices", &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// ControlCommand actuates a device through the backend.
type ControlCommand struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Value    any    `json:"value"`
}

// Control forwards an actuation command. Fire-and-forget beyond HTTP status.
func (c *Client) Control(ctx context.Context, cmd ControlCommand) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/control", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("control failed: %s", resp.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
