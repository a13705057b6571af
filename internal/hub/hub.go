// Package hub fans applied wire messages out to browser clients. New clients
// get an initial_state frame on register, then every message in arrival
// order. A client that cannot keep up is dropped, not buffered forever.
package hub

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iotdash/dashboard-engine/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub broadcasts raw frames to every connected client.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan []byte
	initial   func() []byte
	log       zerolog.Logger
}

// New builds a hub. initial produces the frame sent to each client right
// after the upgrade (an initial_state snapshot); nil skips it.
func New(log zerolog.Logger, initial func() []byte) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		initial:   initial,
		log:       log.With().Str("component", "hub").Logger(),
	}
}

// Run drains the broadcast queue until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.clientsMu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			metrics.HubClients.Set(float64(len(h.clients)))
			h.clientsMu.Unlock()
		}
	}
}

// Broadcast queues one frame for all clients. A full queue drops the frame:
// live telemetry is superseded by the next update anyway.
func (h *Hub) Broadcast(raw []byte) {
	select {
	case h.broadcast <- raw:
	default:
		h.log.Warn().Msg("broadcast queue full, dropping frame")
	}
}

// ServeWS upgrades the request and keeps the client registered until its
// read side fails.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The initial frame goes out before registration: once the client is in
	// the map, Run writes broadcasts to the conn, and gorilla forbids
	// concurrent writers.
	if h.initial != nil {
		if frame := h.initial(); frame != nil {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return
			}
		}
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	metrics.HubClients.Set(float64(len(h.clients)))
	h.clientsMu.Unlock()
	h.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		metrics.HubClients.Set(float64(len(h.clients)))
		h.clientsMu.Unlock()
		conn.Close()
		h.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
