package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/opscore/core/internal/eventlog"
)

// eventStreamBufferSize is the per-client send-channel buffer, allowing
// a burst of events to queue before the client is considered slow.
// Mirrors the teacher's WebSocketBufferSize.
const eventStreamBufferSize = 256

// client is one connected WebSocket operator. Modeled on the teacher's
// server.Client.
type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

// hub fans out eventlog.Events to connected operators. Modeled directly
// on the teacher's internal/server/hub.go Hub: the same
// register/unregister/broadcast channel trio and slow-client eviction on
// a full send buffer.
type hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, eventStreamBufferSize),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) broadcastEvent(evt eventlog.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	h.broadcast <- data
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Incoming messages from operators are not processed; this is a
		// read-only stream.
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// allowedOrigins mirrors the teacher's CLIAIMONITOR_ALLOWED_ORIGINS
// pattern, renamed to this service's own env var.
var allowedOrigins = initAllowedOrigins()

func initAllowedOrigins() []string {
	defaults := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if env := os.Getenv("OPSCORE_ALLOWED_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				defaults = append(defaults, origin)
			}
		}
	}
	return defaults
}

func checkEventStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkEventStreamOrigin,
}

// handleEventStream implements the event-stream WebSocket endpoint,
// supplementing spec.md's "transport is pluggable" note with a live view
// for operators who don't want to run a NATS client.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, eventStreamBufferSize)}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}
