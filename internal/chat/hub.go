package chat

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait drive the heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RoomKind distinguishes the two room families. A connection holds at most one
// room of each kind; joining another evicts the previous one.
type RoomKind int

const (
	RoomDirect RoomKind = iota
	RoomForum
)

// RedisPublisher publishes room events for cross-instance broadcast.
type RedisPublisher interface {
	PublishRoomEvent(roomID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a room channel and invokes handler per event.
type RedisSubscriber interface {
	SubscribeRoom(roomID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains room -> set of connections and broadcasts messages. With a
// Redis bridge attached, chat events are published only and the subscription
// callback performs the single local broadcast, so clients never see
// duplicates across instances.
type Hub struct {
	rooms  map[string]map[string]*Client
	subs   map[string]func()
	mu     sync.RWMutex
	logger *zap.Logger
	pub    RedisPublisher
	sub    RedisSubscriber
}

// NewHub creates a websocket hub. pub/sub may be nil for single-instance
// deployments.
func NewHub(logger *zap.Logger, pub RedisPublisher, sub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Join places the client in a room, leaving any other room of the same kind it
// currently holds. First member triggers the Redis subscription for the room.
func (h *Hub) Join(c *Client, kind RoomKind, roomID string) {
	current := c.room(kind)
	if current == roomID {
		return
	}
	if current != "" {
		h.leave(c, current)
	}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeRoom(roomID, func(event string, payload []byte) {
				h.Broadcast(roomID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[roomID] = cancel
			} else {
				h.logger.Warn("room subscribe failed", zap.Error(err), zap.String("room", roomID))
			}
		}
	}
	h.rooms[roomID][c.ID] = c
	h.mu.Unlock()

	c.setRoom(kind, roomID)
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room", roomID))
}

// Unregister removes the client from every room it holds.
func (h *Hub) Unregister(c *Client) {
	for _, kind := range []RoomKind{RoomDirect, RoomForum} {
		if room := c.room(kind); room != "" {
			h.leave(c, room)
			c.setRoom(kind, "")
		}
	}
}

func (h *Hub) leave(c *Client, roomID string) {
	h.mu.Lock()
	if m, ok := h.rooms[roomID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, roomID)
			if cancel, ok := h.subs[roomID]; ok {
				cancel()
				delete(h.subs, roomID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room", roomID))
}

// Broadcast sends an event to every local connection in a room, the sender
// included when it is a member.
func (h *Hub) Broadcast(roomID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	// snapshot the membership under the lock; joins and leaves mutate the
	// room map concurrently
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish routes a room event through Redis so every instance (this one
// included) broadcasts it exactly once via its subscription callback. Without
// a bridge it falls back to a local broadcast.
func (h *Hub) Publish(roomID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishRoomEvent(roomID, event, data); err == nil {
			return
		}
		h.logger.Warn("room publish failed, broadcasting locally", zap.String("room", roomID))
	}
	h.Broadcast(roomID, event, json.RawMessage(data))
}

// RoomCount returns the number of local connections in a room.
func (h *Hub) RoomCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
