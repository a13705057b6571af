// Package persist serializes the dashboard registry (plus theme flag) to a
// durable blob store and reads it back, including backward-compatible
// migration from the legacy single-dashboard format.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iotdash/dashboard-engine/internal/dashboard"
	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/metrics"
)

// ErrNoSnapshot reports that the store holds nothing under the snapshot key.
var ErrNoSnapshot = errors.New("no saved snapshot")

// BlobStore is one durable slot for the serialized snapshot. Load returns
// ErrNoSnapshot when the slot is empty.
type BlobStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// Snapshot is the persisted shape.
type Snapshot struct {
	Dashboards []domain.Dashboard `json:"dashboards"`
	ActiveID   string             `json:"activeId"`
	Theme      string             `json:"theme"`
	SavedAt    string             `json:"savedAt"`
}

// rawSnapshot additionally captures the legacy single-dashboard fields so one
// decode pass can tell the formats apart.
type rawSnapshot struct {
	Dashboards []domain.Dashboard `json:"dashboards"`
	ActiveID   string             `json:"activeId"`
	Theme      string             `json:"theme"`
	SavedAt    string             `json:"savedAt"`
	Widgets    []domain.Widget    `json:"widgets"`
}

type Gateway struct {
	store   BlobStore
	backend string
	log     zerolog.Logger
}

func NewGateway(store BlobStore, backend string, log zerolog.Logger) *Gateway {
	return &Gateway{
		store:   store,
		backend: backend,
		log:     log.With().Str("component", "persist").Logger(),
	}
}

// Save serializes the snapshot as one blob. Errors are surfaced to the
// caller; nothing in memory changes on failure.
func (g *Gateway) Save(ctx context.Context, snap Snapshot) error {
	snap.SavedAt = time.Now().UTC().Format(time.RFC3339)
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := g.store.Save(ctx, blob); err != nil {
		metrics.SnapshotOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save snapshot: %w", err)
	}
	metrics.SnapshotOps.WithLabelValues("save", "success").Inc()
	g.log.Info().Int("bytes", len(blob)).Str("backend", g.backend).Msg("snapshot saved")
	return nil
}

// Load reads and decodes the snapshot. A legacy {widgets, theme} blob is
// migrated in-memory into a single-entry registry named "Main Dashboard";
// storage itself is not rewritten until the next explicit save.
func (g *Gateway) Load(ctx context.Context) (Snapshot, error) {
	blob, err := g.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			metrics.SnapshotOps.WithLabelValues("load", "empty").Inc()
			return Snapshot{}, err
		}
		metrics.SnapshotOps.WithLabelValues("load", "error").Inc()
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var raw rawSnapshot
	if err := json.Unmarshal(blob, &raw); err != nil {
		metrics.SnapshotOps.WithLabelValues("load", "error").Inc()
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	if raw.Dashboards == nil {
		g.log.Info().Msg("migrating legacy single-dashboard snapshot")
		migrated := domain.Dashboard{
			ID:        "default",
			Name:      dashboard.DefaultName,
			Widgets:   raw.Widgets,
			CreatedAt: time.Now().UnixMilli(),
		}
		if migrated.Widgets == nil {
			migrated.Widgets = []domain.Widget{}
		}
		metrics.SnapshotOps.WithLabelValues("load", "migrated").Inc()
		return Snapshot{
			Dashboards: []domain.Dashboard{migrated},
			ActiveID:   migrated.ID,
			Theme:      raw.Theme,
		}, nil
	}

	if len(raw.Dashboards) == 0 {
		metrics.SnapshotOps.WithLabelValues("load", "error").Inc()
		return Snapshot{}, fmt.Errorf("decode snapshot: dashboard list is empty")
	}
	if raw.ActiveID == "" {
		raw.ActiveID = raw.Dashboards[0].ID
	}
	metrics.SnapshotOps.WithLabelValues("load", "success").Inc()
	return Snapshot{
		Dashboards: raw.Dashboards,
		ActiveID:   raw.ActiveID,
		Theme:      raw.Theme,
		SavedAt:    raw.SavedAt,
	}, nil
}
