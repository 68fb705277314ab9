// Package progress broadcasts per-Run progress events (spec.md §9's
// run_state) to websocket subscribers, grounded on the teacher's
// register/unregister/broadcast hub idiom.
package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// AuthChecker authorizes an incoming upgrade request. Authentication
// itself is an external collaborator (spec.md §1 non-goal); the Hub only
// ever calls out to one.
type AuthChecker interface {
	Allow(r *http.Request) bool
}

// Event is one progress update pushed to subscribers of a runtime.
type Event struct {
	Runtime   string `json:"runtime"`
	JobName   string `json:"job_name,omitempty"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub indexes subscribers by runtime and fans out Events to every client
// watching that runtime.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan Event

	auth   AuthChecker
	logger zerolog.Logger
}

func NewHub(auth AuthChecker, logger zerolog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		auth:       auth,
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.runtime] == nil {
				h.clients[c.runtime] = make(map[*client]bool)
			}
			h.clients[c.runtime][c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.runtime]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
					if len(set) == 0 {
						delete(h.clients, c.runtime)
					}
				}
			}
			h.mu.Unlock()
		case ev := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[ev.Runtime] {
				select {
				case c.send <- ev:
				default:
					// slow consumer: drop rather than block the hub loop.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish pushes an Event to every subscriber of ev.Runtime. Non-blocking
// from the caller's perspective beyond the channel send.
func (h *Hub) Publish(ev Event) {
	h.broadcast <- ev
}

// ServeWS upgrades r into a websocket subscription for the runtime named
// by its "runtime" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.auth != nil && !h.auth.Allow(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	runtime := r.URL.Query().Get("runtime")
	if runtime == "" {
		http.Error(w, "missing runtime query parameter", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("progress: websocket upgrade failed")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan Event, 16), runtime: runtime}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	runtime string
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
