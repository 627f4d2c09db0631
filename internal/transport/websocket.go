// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "lfnmon/internal/log"
)

// WebSocketTransport broadcasts analysis updates to connected clients
// with rate limiting to prevent overwhelming clients or the network.
//
// Thread Safety:
// - Uses mutex for client map access
// - Handles concurrent connections safely
type WebSocketTransport struct {
	clients      map[*websocket.Conn]bool // Active client connections
	clientsMutex sync.Mutex               // Protects clients map
	upgrader     websocket.Upgrader       // WebSocket connection upgrader
	server       *http.Server             // HTTP server for WebSocket

	sendMutex       sync.Mutex    // Protects lastSend
	lastSend        time.Time     // Last send timestamp for rate limiting
	minSendInterval time.Duration // Minimum time between sends (prevents flooding)
}

// NewWebSocketTransport creates a WebSocket transport and starts its HTTP
// server. Clients connect to /live on the given port; each broadcast is
// one JSON message. minSendInterval of zero disables rate limiting.
func NewWebSocketTransport(port string, minSendInterval time.Duration) *WebSocketTransport {
	t := &WebSocketTransport{
		clients:         make(map[*websocket.Conn]bool),
		minSendInterval: minSendInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local monitoring tool; accept any origin
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/live", t.handleWebSocket)
	t.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		applog.Infof("live WebSocket server listening on port %s", port)
		if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
			applog.Errorf("WebSocket server error: %v", err)
		}
	}()

	return t
}

// handleWebSocket upgrades HTTP connections, registers the client, and
// watches the connection so disconnected clients are removed.
func (t *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	t.clientsMutex.Lock()
	t.clients[conn] = true
	t.clientsMutex.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				t.clientsMutex.Lock()
				delete(t.clients, conn)
				t.clientsMutex.Unlock()
				conn.Close()
				break
			}
		}
	}()
}

// ClientCount returns how many clients are currently connected.
func (t *WebSocketTransport) ClientCount() int {
	t.clientsMutex.Lock()
	defer t.clientsMutex.Unlock()
	return len(t.clients)
}

// Send broadcasts data as JSON to all connected clients. Updates arriving
// faster than the configured interval are dropped, and clients that fail
// a write are disconnected.
func (t *WebSocketTransport) Send(data any) error {
	t.sendMutex.Lock()
	now := time.Now()
	if now.Sub(t.lastSend) < t.minSendInterval {
		t.sendMutex.Unlock()
		return nil // Skip this update
	}
	t.lastSend = now
	t.sendMutex.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	t.clientsMutex.Lock()
	for client := range t.clients {
		if err := client.WriteMessage(websocket.TextMessage, jsonData); err != nil {
			client.Close()
			delete(t.clients, client)
		}
	}
	t.clientsMutex.Unlock()

	return nil
}

// Close disconnects every client and shuts down the HTTP server.
// Idempotent.
func (t *WebSocketTransport) Close() error {
	t.clientsMutex.Lock()
	for client := range t.clients {
		client.Close()
		delete(t.clients, client)
	}
	t.clientsMutex.Unlock()

	return t.server.Close()
}
