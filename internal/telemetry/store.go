package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iotdash/dashboard-engine/internal/domain"
	"github.com/iotdash/dashboard-engine/internal/metrics"
)

// maxHistory bounds every per-key rolling history. Oldest points are evicted
// first once the cap is reached.
const maxHistory = 100

type series struct {
	value   float64
	history []domain.TelemetryPoint
}

// Store holds the live telemetry state: the merged device collection and one
// bounded series per (device, key). All accessors return copies; callers never
// observe internal slices.
type Store struct {
	mu      sync.RWMutex
	order   []string
	devices map[string]*domain.Device
	series  map[string]map[string]*series
	log     zerolog.Logger
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{
		devices: make(map[string]*domain.Device),
		series:  make(map[string]map[string]*series),
		log:     log.With().Str("component", "telemetry").Logger(),
	}
}

// Apply dispatches one decoded wire message. Unknown discriminators are
// ignored. Every branch is a synchronous in-memory update.
func (s *Store) Apply(env *domain.Envelope) {
	switch env.Type {
	case domain.MsgInitialState:
		s.MergeDevices(env.Devices)
	case domain.MsgTelemetryUpdate:
		s.applyTelemetry(env.DeviceID, env.Telemetry, env.Timestamp)
	case domain.MsgDeviceStatus:
		s.setStatus(env.DeviceID, env.Status)
	default:
		s.log.Debug().Str("type", env.Type).Msg("ignoring unknown message type")
	}
}

// MergeDevices folds a device list into the collection, keyed by device id,
// last writer wins. Series already accumulated for a device are never dropped.
func (s *Store) MergeDevices(devices []domain.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range devices {
		if d.DeviceID == "" {
			continue
		}
		incoming := d.Clone()
		if existing, ok := s.devices[d.DeviceID]; ok {
			if incoming.FirstSeen == "" {
				incoming.FirstSeen = existing.FirstSeen
			}
			if incoming.LastSeen == nil {
				incoming.LastSeen = existing.LastSeen
			}
			if len(incoming.TelemetryKeys) == 0 {
				incoming.TelemetryKeys = existing.TelemetryKeys
			}
			*existing = incoming
			continue
		}
		s.order = append(s.order, d.DeviceID)
		s.devices[d.DeviceID] = &incoming
	}
	s.updateActiveGauge()
}

func (s *Store) applyTelemetry(deviceID string, telemetry map[string]any, ts domain.Timestamp) {
	if deviceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dev := s.registerLocked(deviceID, ts)
	dev.Status = domain.StatusOnline
	last := ts
	dev.LastSeen = &last

	for key, raw := range telemetry {
		if strings.HasPrefix(key, domain.ReservedPrefix) {
			continue
		}
		s.discoverKeyLocked(dev, key)
		value, ok := domain.NumericValue(raw)
		if !ok {
			continue
		}
		byKey, ok := s.series[deviceID]
		if !ok {
			byKey = make(map[string]*series)
			s.series[deviceID] = byKey
		}
		sr, ok := byKey[key]
		if !ok {
			sr = &series{}
			byKey[key] = sr
		}
		sr.value = value
		sr.history = append(sr.history, domain.TelemetryPoint{Timestamp: ts, Value: value})
		if len(sr.history) > maxHistory {
			sr.history = sr.history[1:]
		}
		metrics.SeriesPoints.Inc()
	}
	s.updateActiveGauge()
}

func (s *Store) setStatus(deviceID string, status domain.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dev, ok := s.devices[deviceID]; ok {
		dev.Status = status
	}
	s.updateActiveGauge()
}

// registerLocked auto-registers a device seen only through telemetry.
func (s *Store) registerLocked(deviceID string, ts domain.Timestamp) *domain.Device {
	if dev, ok := s.devices[deviceID]; ok {
		return dev
	}
	dev := &domain.Device{
		DeviceID:      deviceID,
		Status:        domain.StatusOnline,
		FirstSeen:     ts.Time().UTC().Format(time.RFC3339),
		TelemetryKeys: []string{},
	}
	s.order = append(s.order, deviceID)
	s.devices[deviceID] = dev
	s.log.Info().Str("device_id", deviceID).Msg("device discovered via telemetry")
	return dev
}

func (s *Store) discoverKeyLocked(dev *domain.Device, key string) {
	for _, k := range dev.TelemetryKeys {
		if k == key {
			return
		}
	}
	dev.TelemetryKeys = append(dev.TelemetryKeys, key)
}

func (s *Store) updateActiveGauge() {
	online := 0
	for _, d := range s.devices {
		if d.Status == domain.StatusOnline {
			online++
		}
	}
	metrics.ActiveDevices.Set(float64(online))
}

// LatestValue returns the most recent value for (deviceID, key).
func (s *Store) LatestValue(deviceID, key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.series[deviceID][key]; ok {
		return sr.value, true
	}
	return 0, false
}

// History returns a copy of the rolling history for (deviceID, key), oldest
// first, at most 100 points.
func (s *Store) History(deviceID, key string) []domain.TelemetryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr, ok := s.series[deviceID][key]
	if !ok {
		return nil
	}
	out := make([]domain.TelemetryPoint, len(sr.history))
	copy(out, sr.history)
	return out
}

// Latest returns the latest value per key for one device.
func (s *Store) Latest(deviceID string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.series[deviceID]))
	for key, sr := range s.series[deviceID] {
		out[key] = sr.value
	}
	return out
}

// Devices returns the device collection in discovery order.
func (s *Store) Devices() []domain.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Device, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.devices[id].Clone())
	}
	return out
}

// HasDevice reports whether a device id is known.
func (s *Store) HasDevice(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.devices[deviceID]
	return ok
}

// StartSweeper marks devices offline after offlineAfter without telemetry,
// checking every interval, and hands each transition to emit as a
// device_status message. Stops when ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval, offlineAfter time.Duration, emit func(*domain.Envelope)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, env := range s.sweep(offlineAfter) {
					emit(env)
				}
			}
		}
	}()
}

func (s *Store) sweep(offlineAfter time.Duration) []*domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var transitions []*domain.Envelope
	now := time.Now()
	for _, dev := range s.devices {
		if dev.Status != domain.StatusOnline || dev.LastSeen == nil {
			continue
		}
		if now.Sub(dev.LastSeen.Time()) > offlineAfter {
			dev.Status = domain.StatusOffline
			transitions = append(transitions, &domain.Envelope{
				Type:     domain.MsgDeviceStatus,
				DeviceID: dev.DeviceID,
				Status:   domain.StatusOffline,
			})
			s.log.Info().Str("device_id", dev.DeviceID).Msg("device marked offline")
		}
	}
	s.updateActiveGauge()
	return transitions
}
