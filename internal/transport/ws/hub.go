package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Conn is one authenticated client connection.
type Conn interface {
	Send(msg Message) error
	SendRaw(data []byte) error
	Close() error
	UserID() int64
}

type connSet map[Conn]struct{}

// Hub is the in-memory membership table: room groups, private per-user groups
// and, per connection, the rooms it was admitted to.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int64]connSet
	users  map[int64]connSet
	joined map[Conn]map[int64]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[int64]connSet),
		users:  make(map[int64]connSet),
		joined: make(map[Conn]map[int64]struct{}),
	}
}

// Register puts c into the private group of its user.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	add(h.users, c.UserID(), c)
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[int64]struct{})
	}
}

// Join admits c to the room group. Joining twice is a no-op; the result
// reports whether c was newly added.
func (h *Hub) Join(roomID int64, c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms, ok := h.joined[c]
	if !ok {
		rooms = make(map[int64]struct{})
		h.joined[c] = rooms
	}
	if _, ok := rooms[roomID]; ok {
		return false
	}
	rooms[roomID] = struct{}{}
	add(h.rooms, roomID, c)
	return true
}

// LeaveAll drops every membership of c.
func (h *Hub) LeaveAll(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.joined[c] {
		remove(h.rooms, roomID, c)
	}
	delete(h.joined, c)
	remove(h.users, c.UserID(), c)
}

// Members returns a snapshot of the room group.
func (h *Hub) Members(roomID int64) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.rooms[roomID])
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.joined)
}

// BroadcastRaw sends an already encoded frame to every member of the room.
// Delivery is best effort; it returns the number of successful sends.
func (h *Hub) BroadcastRaw(roomID int64, data []byte) int {
	return sendAll(h.Members(roomID), data)
}

// SendToUser delivers msg to every connection of userID.
func (h *Hub) SendToUser(userID int64, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("hub: encode user message", slog.String("type", msg.Type), slog.Any("err", err))
		return 0
	}
	h.mu.RLock()
	conns := snapshot(h.users[userID])
	h.mu.RUnlock()
	return sendAll(conns, data)
}

// CloseAll closes every registered connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.joined))
	for c := range h.joined {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func sendAll(conns []Conn, data []byte) int {
	sent := 0
	for _, c := range conns {
		if err := c.SendRaw(data); err != nil {
			slog.Debug("hub: send failed", slog.Int64("user_id", c.UserID()), slog.Any("err", err))
			continue
		}
		sent++
	}
	return sent
}

func add(m map[int64]connSet, key int64, c Conn) {
	set, ok := m[key]
	if !ok {
		set = make(connSet)
		m[key] = set
	}
	set[c] = struct{}{}
}

func remove(m map[int64]connSet, key int64, c Conn) {
	if set, ok := m[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func snapshot(set connSet) []Conn {
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
