package ws

import (
	"sync"

	"realtime-chat-service/internal/observability"
)

// Hub is the connection registry and room multiplexer: the single source of
// truth for which users are reachable and which connections subscribe to
// which conversation. Read-heavy (broadcasts) versus write-light
// (register/join), hence the RWMutex.
type Hub struct {
	mu sync.RWMutex
	// clients indexes live connections by user; a user may hold several
	// concurrent connections (multi-device) and all of them are addressed.
	clients map[string]map[*Client]bool
	// rooms is the lazy room arena keyed by conversation id; an entry exists
	// only while at least one connection is joined.
	rooms map[string]map[*Client]bool
	// memberships tracks the rooms each connection joined, so deregistration
	// leaves no dangling membership behind.
	memberships map[*Client]map[string]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		memberships: make(map[*Client]map[string]bool),
	}
}

// Register records a live connection. Reports whether it is the user's
// first, which is the online presence transition.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[c.UserID]
	if !ok {
		conns = make(map[*Client]bool)
		h.clients[c.UserID] = conns
	}
	conns[c] = true
	h.memberships[c] = make(map[string]bool)
	return len(conns) == 1
}

// Deregister removes the connection from the registry and from every room
// it joined. Reports whether it was the user's last connection, which is
// the offline presence transition.
func (h *Hub) Deregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conversationID := range h.memberships[c] {
		h.removeFromRoom(c, conversationID)
	}
	delete(h.memberships, c)

	conns, ok := h.clients[c.UserID]
	if !ok || !conns[c] {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.UserID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendToUser unicasts an event to all of a user's connections. Returns false
// when the user is offline; callers must treat that as a skipped delivery,
// not an error.
func (h *Hub) SendToUser(userID, event string, payload any) bool {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return false
	}

	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return false
	}
	delivered := false
	for _, c := range conns {
		if c.enqueue(frame) {
			delivered = true
		}
	}
	return delivered
}

// Join subscribes the connection to a conversation room. Idempotent; the
// room is created lazily on first join.
func (h *Hub) Join(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.memberships[c]; !ok {
		// Not registered (already deregistered mid-flight); ignore.
		return
	}

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[conversationID] = room
	}
	room[c] = true
	h.memberships[c][conversationID] = true
	observability.SetWSRooms(len(h.rooms))
}

// Leave unsubscribes the connection from a room. Leaving a room the
// connection is not in is a no-op.
func (h *Hub) Leave(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoom(c, conversationID)
	if members, ok := h.memberships[c]; ok {
		delete(members, conversationID)
	}
}

// removeFromRoom drops the connection from a room and garbage-collects the
// room entry once empty. Caller holds the write lock.
func (h *Hub) removeFromRoom(c *Client, conversationID string) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
	observability.SetWSRooms(len(h.rooms))
}

// InRoom reports current room membership of a connection.
func (h *Hub) InRoom(c *Client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[conversationID][c]
}

// Broadcast delivers an event to every connection joined to the room,
// optionally excluding one. A failed enqueue to a member never aborts
// delivery to the rest.
func (h *Hub) Broadcast(conversationID, event string, payload any, exclude *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != exclude {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return
	}

	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return
	}
	for _, c := range members {
		c.enqueue(frame)
	}
	observability.IncWSBroadcast(event)
}

// BroadcastAll delivers an event to every live connection. Used for
// app-wide presence changes.
func (h *Hub) BroadcastAll(event string, payload any) {
	h.mu.RLock()
	conns := make([]*Client, 0)
	for _, set := range h.clients {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return
	}
	for _, c := range conns {
		c.enqueue(frame)
	}
	observability.IncWSBroadcast(event)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}

// RoomCount returns the number of non-empty rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
