// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	applog "streampump/internal/log"
	"streampump/internal/metrics"

	"github.com/gorilla/websocket"
)

// WebSocketTransport broadcasts every payload as a JSON text message to all
// clients connected on /ws. Sends are queued and dropped when the queue is
// full or when they arrive faster than the minimum interval.
//
// Thread Safety:
//   - Uses mutex for client map access
//   - A single goroutine marshals and writes, so client writes never overlap
type WebSocketTransport struct {
	listener  net.Listener
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	closed    bool           // Guarded by clientsMu.
	handlers  sync.WaitGroup // Connection handlers, added under clientsMu.
	broadcast chan any
	server    *http.Server

	minSendInterval time.Duration
	lastSend        time.Time
	sendMu          sync.Mutex

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport listens on addr (e.g. ":8080") and starts serving.
// minSendInterval of zero disables rate limiting.
func NewWebSocketTransport(addr string, minSendInterval time.Duration) (*WebSocketTransport, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	wst := &WebSocketTransport{
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local visualizers
			},
		},
		clients:         make(map[*websocket.Conn]bool),
		broadcast:       make(chan any, 256),
		minSendInterval: minSendInterval,
	}

	wst.start()
	return wst, nil
}

// Addr returns the address the server is listening on.
func (wst *WebSocketTransport) Addr() net.Addr {
	return wst.listener.Addr()
}

// start begins the WebSocket server
func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)

	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		applog.Infof("WebSocketTransport: Starting WebSocket server on %s", wst.listener.Addr())
		if err := wst.server.Serve(wst.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()

	go func() {
		defer wst.wg.Done()
		wst.handleBroadcasts()
	}()
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	if wst.closed {
		wst.clientsMu.Unlock()
		conn.Close()
		return
	}
	wst.clients[conn] = true
	wst.handlers.Add(1)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	defer wst.handlers.Done()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Block until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	wst.clientsMu.Lock()
	if wst.clients[conn] {
		delete(wst.clients, conn)
		conn.Close()
	}
	total = len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for data := range wst.broadcast {
		jsonData, err := json.Marshal(data)
		if err != nil {
			applog.Errorf("WebSocketTransport: Error marshaling %T: %v", data, err)
			continue
		}

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(time.Second))
			if err := client.WriteMessage(websocket.TextMessage, jsonData); err != nil {
				applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. It never blocks; excess payloads are
// dropped.
func (wst *WebSocketTransport) Send(data any) error {
	if wst.minSendInterval > 0 {
		wst.sendMu.Lock()
		now := time.Now()
		if now.Sub(wst.lastSend) < wst.minSendInterval {
			wst.sendMu.Unlock()
			metrics.TransportSendsTotal.WithLabelValues("websocket", "skipped").Inc()
			return nil
		}
		wst.lastSend = now
		wst.sendMu.Unlock()
	}

	select {
	case wst.broadcast <- data:
		metrics.TransportSendsTotal.WithLabelValues("websocket", "ok").Inc()
	default:
		metrics.TransportSendsTotal.WithLabelValues("websocket", "skipped").Inc()
	}
	return nil
}

// Close shuts down the server, disconnects clients and waits for the
// transport's goroutines. Send must not be called afterwards.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")

		// Close all client connections
		wst.clientsMu.Lock()
		wst.closed = true
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
		close(wst.broadcast)
		wst.wg.Wait()
		wst.handlers.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
