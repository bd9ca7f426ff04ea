// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	applog "stemmix/internal/log"

	"github.com/gorilla/websocket"
)

// Hub broadcasts status and meter frames to websocket clients with rate
// limiting to keep a slow dashboard from flooding the network.
//
// Thread Safety:
// - Uses a mutex for client map access and the rate limiter timestamp;
//   Send is called from both the render thread's observers and the
//   control goroutine
// - Handles concurrent connections safely
type Hub struct {
	clients         map[*websocket.Conn]bool
	clientsMutex    sync.Mutex
	upgrader        websocket.Upgrader
	server          *http.Server
	sendRateLimiter time.Time // guarded by clientsMutex
	minSendInterval time.Duration
}

// NewHub creates a websocket hub and starts its HTTP server on the given
// port. Clients connect to /ws; the server runs in its own goroutine.
func NewHub(port string) *Hub {
	h := &Hub{
		clients:         make(map[*websocket.Conn]bool),
		minSendInterval: 33 * time.Millisecond, // ~30Hz cap
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local dashboards connect from file:// origins
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	h.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		applog.Infof("Status hub: websocket server listening on port %s", port)
		if err := h.server.ListenAndServe(); err != http.ErrServerClosed {
			applog.Errorf("Status hub: server error: %v", err)
		}
	}()

	return h
}

// handleWebSocket upgrades HTTP connections and registers the client.
// A reader goroutine watches for disconnects and unregisters.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("Status hub: upgrade error: %v", err)
		return
	}

	h.clientsMutex.Lock()
	h.clients[conn] = true
	h.clientsMutex.Unlock()

	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				h.clientsMutex.Lock()
				delete(h.clients, conn)
				h.clientsMutex.Unlock()
				conn.Close()
				break
			}
		}
	}()
}

// Send broadcasts a JSON-encoded frame to all connected clients, dropping
// frames that exceed the rate limit. Disconnected clients are pruned.
func (h *Hub) Send(data any) error {
	h.clientsMutex.Lock()
	now := time.Now()
	if now.Sub(h.sendRateLimiter) < h.minSendInterval {
		h.clientsMutex.Unlock()
		return nil // Skip this update
	}
	h.sendRateLimiter = now
	h.clientsMutex.Unlock()

	return h.broadcast(data)
}

// SendNow broadcasts a frame immediately, bypassing the rate limit. For
// frames a client explicitly asked for (status queries); the periodic
// meter and spectrum publishers go through Send.
func (h *Hub) SendNow(data any) error {
	return h.broadcast(data)
}

func (h *Hub) broadcast(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
	return nil
}

// Close shuts down the HTTP server and drops all clients.
func (h *Hub) Close() error {
	h.clientsMutex.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.clientsMutex.Unlock()
	return h.server.Close()
}

var _ Transport = (*Hub)(nil)
var _ PrioritySender = (*Hub)(nil)
