// Package realtime carries room events between the router and WebSocket
// clients.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/ashureev/pairroom/internal/protocol"
)

// DefaultSendBuffer is the per-connection outbound queue length.
const DefaultSendBuffer = 64

// Client is one registered connection. send is never closed; done signals the
// write pump to stop.
type Client struct {
	id    string
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	rooms map[string]struct{} // guarded by Hub.mu
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.id
}

// Outbound yields encoded frames queued for the connection.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the hub has dropped the connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks live connections and their room subscriptions. Delivery never
// blocks: a connection whose queue is full is dropped.
type Hub struct {
	bufferSize int

	mu    sync.RWMutex
	conns map[string]*Client
	rooms map[string]map[string]*Client
}

// NewHub creates an empty hub.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Hub{
		bufferSize: bufferSize,
		conns:      make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
	}
}

// Register adds a connection. A previous registration under the same ID is
// closed and replaced.
func (h *Hub) Register(connID string) *Client {
	c := &Client{
		id:    connID,
		send:  make(chan []byte, h.bufferSize),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}

	h.mu.Lock()
	if existing, ok := h.conns[connID]; ok {
		h.removeLocked(existing)
		existing.close()
	}
	h.conns[connID] = c
	h.mu.Unlock()

	slog.Debug("Connection registered", "conn_id", connID)
	return c
}

// Unregister removes c and all of its subscriptions.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if current, ok := h.conns[c.id]; ok && current == c {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	c.close()
	slog.Debug("Connection unregistered", "conn_id", c.id)
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.conns, c.id)
	for code := range c.rooms {
		if subs, ok := h.rooms[code]; ok {
			delete(subs, c.id)
			if len(subs) == 0 {
				delete(h.rooms, code)
			}
		}
	}
	c.rooms = make(map[string]struct{})
}

// Subscribe adds connID to roomCode's audience. Unknown connections are ignored.
func (h *Hub) Subscribe(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	subs, ok := h.rooms[roomCode]
	if !ok {
		subs = make(map[string]*Client)
		h.rooms[roomCode] = subs
	}
	subs[connID] = c
	c.rooms[roomCode] = struct{}{}
}

// Unsubscribe removes connID from roomCode's audience.
func (h *Hub) Unsubscribe(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomCode]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, roomCode)
		}
	}
	if c, ok := h.conns[connID]; ok {
		delete(c.rooms, roomCode)
	}
}

// CloseRoom drops every subscription of roomCode. Connections stay open.
func (h *Hub) CloseRoom(roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.rooms[roomCode] {
		delete(c.rooms, roomCode)
	}
	delete(h.rooms, roomCode)
}

// Publish delivers event to every subscriber of roomCode except excludeConnID.
func (h *Hub) Publish(roomCode, event string, payload interface{}, excludeConnID string) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		slog.Error("Failed to encode event", "room_code", roomCode, "event", event, "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for id, c := range h.rooms[roomCode] {
		if id == excludeConnID {
			continue
		}
		if !c.offer(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow, roomCode, event)
}

// Send delivers event to a single connection.
func (h *Hub) Send(connID, event string, payload interface{}) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		slog.Error("Failed to encode event", "conn_id", connID, "event", event, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if !c.offer(data) {
		h.dropSlow([]*Client{c}, "", event)
	}
}

// offer queues data without blocking. It reports false when the queue is full.
func (c *Client) offer(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) dropSlow(slow []*Client, roomCode, event string) {
	for _, c := range slow {
		slog.Warn("Dropping slow connection",
			"conn_id", c.id,
			"room_code", roomCode,
			"event", event)
		h.Unregister(c)
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Subscribers returns the connection IDs subscribed to roomCode.
func (h *Hub) Subscribers(roomCode string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[roomCode]))
	for id := range h.rooms[roomCode] {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
