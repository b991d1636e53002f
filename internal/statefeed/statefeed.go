// Package statefeed publishes the viewer's observable state over a
// WebSocket endpoint so a host UI can bind to it, and relays commands sent
// by the UI back to the render loop.
package statefeed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxelstack/meshview/internal/logger"
	"github.com/voxelstack/meshview/internal/viewer"
)

// Command is a request sent by a connected UI. It is delivered to the
// render loop, never executed on the socket goroutine.
type Command struct {
	Cmd     string `json:"cmd"` // load, clear, set_view, reset_view, toggle_projection, set_mode, set_helper
	URL     string `json:"url,omitempty"`
	View    string `json:"view,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Helper  string `json:"helper,omitempty"`
	Visible bool   `json:"visible,omitempty"`
}

// Feed broadcasts status snapshots to all connected clients.
type Feed struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	last    viewer.Status
	hasLast bool

	commands chan Command
	upgrader websocket.Upgrader
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{
		clients:  make(map[*websocket.Conn]bool),
		commands: make(chan Command, 16),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Commands returns the channel of commands received from clients. The
// render loop drains it once per frame.
func (f *Feed) Commands() <-chan Command {
	return f.commands
}

// Publish sends a status snapshot to every connected client. Clients that
// fail to receive are dropped.
func (f *Feed) Publish(s viewer.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = s
	f.hasLast = true

	for conn := range f.clients {
		if err := conn.WriteJSON(s); err != nil {
			logger.Debug("dropping state feed client", zap.Error(err))
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// ServeHTTP upgrades the connection, replays the latest snapshot and reads
// commands until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("state feed upgrade failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	f.clients[conn] = true
	if f.hasLast {
		if err := conn.WriteJSON(f.last); err != nil {
			conn.Close()
			delete(f.clients, conn)
			f.mu.Unlock()
			return
		}
	}
	f.mu.Unlock()

	go f.readLoop(conn)
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			logger.Debug("ignoring malformed feed command", zap.Error(err))
			continue
		}

		select {
		case f.commands <- cmd:
		default:
			logger.Warn("feed command queue full, dropping", zap.String("cmd", cmd.Cmd))
		}
	}
}

// ListenAndServe serves the feed on addr. The websocket lives at /ws; a
// plain GET / returns the latest snapshot as JSON.
func (f *Feed) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", f)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		s, ok := f.last, f.hasLast
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.Write([]byte("{}"))
			return
		}
		json.NewEncoder(w).Encode(s)
	})

	logger.Info("state feed listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}
