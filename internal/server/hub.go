package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/audiosocket-diarizer/internal/mode"
	"github.com/amanullahtanweer/audiosocket-diarizer/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the websocket envelope in both directions. Clients send
// commands; the hub pushes session events and replies.
type Message struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Speaker   string            `json:"speaker,omitempty"`
	Role      string            `json:"role,omitempty"`
	Index     int               `json:"index,omitempty"`
	Key       string            `json:"key,omitempty"`
	Confirm   bool              `json:"confirm,omitempty"`
	Event     *session.Event    `json:"event,omitempty"`
	Session   *session.Snapshot `json:"session,omitempty"`
	Sessions  []string          `json:"sessions,omitempty"`
	Roles     []string          `json:"roles,omitempty"`
	OK        bool              `json:"ok,omitempty"`
	Data      string            `json:"data,omitempty"`
}

// Hub fans session events out to websocket clients and executes the
// commands they send.
type Hub struct {
	manager *Manager
	roles   []string
	log     zerolog.Logger
	events  chan session.Event
	quit    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub and subscribes it to sessions created by manager.
func NewHub(manager *Manager, roles []string, log zerolog.Logger) *Hub {
	h := &Hub{
		manager: manager,
		roles:   roles,
		log:     log.With().Str("component", "hub").Logger(),
		events:  make(chan session.Event, 256),
		quit:    make(chan struct{}),
		clients: make(map[*websocket.Conn]bool),
	}
	manager.OnEvent(h.Publish)
	return h
}

// Publish queues a session event for broadcast. It never blocks; events
// are dropped when the queue is full.
func (h *Hub) Publish(ev session.Event) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn().Str("session_id", ev.SessionID).Str("type", string(ev.Kind)).Msg("Feed queue full, dropping event")
	}
}

// Run broadcasts queued events until Close.
func (h *Hub) Run() {
	for {
		select {
		case ev := <-h.events:
			h.broadcast(Message{Type: string(ev.Kind), SessionID: ev.SessionID, Event: &ev})
		case <-h.quit:
			return
		}
	}
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.quit) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}
	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			h.log.Debug().Err(err).Msg("Write error, dropping client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// reply writes to one client. Writes share the hub lock with broadcasts.
func (h *Hub) reply(conn *websocket.Conn, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug().Err(err).Msg("Reply failed")
	}
}

// ServeHTTP upgrades the request and serves one client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Msg("Read error")
			}
			return
		}
		h.reply(conn, h.processMessage(msg))
	}
}

func (h *Hub) processMessage(msg Message) Message {
	switch msg.Type {
	case "list_sessions":
		return Message{Type: "sessions_list", Sessions: h.manager.List()}
	case "get_roles":
		return Message{Type: "roles", Roles: h.roles}
	}

	s, err := h.manager.Get(msg.SessionID)
	if err != nil {
		return errorMessage(msg, err)
	}

	switch msg.Type {
	case "get_session":
		snap := s.Snapshot()
		return Message{Type: "session_details", SessionID: s.ID(), Session: &snap}
	case "add_speaker":
		sp := s.AddSpeaker()
		return Message{Type: "speaker_added", SessionID: s.ID(), Speaker: sp.ExternalID, OK: true}
	case "assign_role":
		return result(msg, s.AssignRole(msg.Speaker, msg.Role))
	case "next":
		return result(msg, s.Next())
	case "switch":
		return result(msg, s.SwitchTo(msg.Speaker))
	case "jump":
		return result(msg, s.JumpTo(msg.Index))
	case "key":
		sc, ok := mode.ParseKey(msg.Key)
		if !ok {
			return errorMessage(msg, errors.New("unknown shortcut"))
		}
		return result(msg, s.Shortcut(sc))
	case "clear":
		if err := s.ClearTranscript(msg.Confirm); err != nil {
			return errorMessage(msg, err)
		}
		return result(msg, true)
	default:
		return errorMessage(msg, errors.New("unknown command"))
	}
}

func result(msg Message, ok bool) Message {
	return Message{Type: msg.Type + "_result", SessionID: msg.SessionID, OK: ok}
}

func errorMessage(msg Message, err error) Message {
	return Message{Type: "error", SessionID: msg.SessionID, Data: err.Error()}
}
