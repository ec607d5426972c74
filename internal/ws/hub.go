// Package ws carries the durable client connections and the two addressing
// spaces built on them: per-user channels for guaranteed cross-device
// delivery and per-conversation rooms for session-scoped signals.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/carousell/ct-go/pkg/logger"

	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/presence"
)

type Hub struct {
	mu sync.RWMutex

	// users: every connection of a user, joined automatically on attach.
	// rooms: explicit, membership-gated joins; an optimization layer only,
	// never relied on for delivery.
	users map[string]map[*Client]struct{}
	rooms map[string]map[*Client]struct{}

	registry *presence.Registry
	log      *logger.Logger

	// onOffline fires when an eviction takes a user's last connection away,
	// so the falling edge is broadcast even when no disconnect callback will
	// ever see it. Set once before the hub serves traffic.
	onOffline func(userID string)
}

func NewHub(registry *presence.Registry) *Hub {
	return &Hub{
		users:    make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		registry: registry,
		log:      logger.MustNamed("ws"),
	}
}

// Attach wires a new authenticated connection into the per-user space and the
// presence registry. Reports the user's rising edge.
func (h *Hub) Attach(c *Client) (cameOnline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.userID] = set
	}
	set[c] = struct{}{}
	return h.registry.Register(c.userID, c.id)
}

// Detach undoes Attach and every room join as one atomic cleanup, no matter
// where in a command the connection died. Reports the user's falling edge.
func (h *Hub) Detach(c *Client) (wentOffline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detachLocked(c)
}

// OnOffline registers the eviction falling-edge callback.
func (h *Hub) OnOffline(fn func(userID string)) {
	h.onOffline = fn
}

func (h *Hub) detachLocked(c *Client) (wentOffline bool) {
	if set, ok := h.users[c.userID]; ok {
		if _, attached := set[c]; attached {
			delete(set, c)
			close(c.done)
			if len(set) == 0 {
				delete(h.users, c.userID)
			}
		}
	}
	for room := range c.joined {
		h.leaveRoomLocked(c, room)
	}
	return h.registry.Unregister(c.userID, c.id)
}

func (h *Hub) JoinRoom(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[conversationID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[conversationID] = set
	}
	set[c] = struct{}{}
	c.joined[conversationID] = struct{}{}
}

func (h *Hub) LeaveRoom(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(c, conversationID)
}

func (h *Hub) leaveRoomLocked(c *Client, conversationID string) {
	delete(c.joined, conversationID)
	set, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, conversationID)
	}
}

func (h *Hub) InRoom(c *Client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.joined[conversationID]
	return ok
}

// RoomViewers returns the distinct users with a connection joined to the
// conversation room. Feeds the instant-seen heuristic; best-effort only.
func (h *Hub) RoomViewers(conversationID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	var viewers []string
	for c := range h.rooms[conversationID] {
		if _, ok := seen[c.userID]; ok {
			continue
		}
		seen[c.userID] = struct{}{}
		viewers = append(viewers, c.userID)
	}
	return viewers
}

func (h *Hub) SendToUser(userID, event string, data any) {
	h.SendToUsers([]string{userID}, event, data)
}

// SendToUsers delivers one frame to every connection of every listed user.
func (h *Hub) SendToUsers(userIDs []string, event string, data any) {
	payload, err := encodeFrame("", event, data)
	if err != nil {
		h.log.Errorw("failed to encode frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	var stale []*Client
	for _, userID := range userIDs {
		for c := range h.users[userID] {
			if !c.enqueue(payload) {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	h.evict(stale, event)
}

// SendToRoom delivers to connections joined to the conversation room,
// skipping the excluded users' connections.
func (h *Hub) SendToRoom(conversationID, event string, data any, exclude ...string) {
	payload, err := encodeFrame("", event, data)
	if err != nil {
		h.log.Errorw("failed to encode frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	var stale []*Client
	for c := range h.rooms[conversationID] {
		if contains(exclude, c.userID) {
			continue
		}
		if !c.enqueue(payload) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	h.evict(stale, event)
}

// SendToAll broadcasts to every connected client, used for presence deltas.
func (h *Hub) SendToAll(event string, data any) {
	payload, err := encodeFrame("", event, data)
	if err != nil {
		h.log.Errorw("failed to encode frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	var stale []*Client
	for _, set := range h.users {
		for c := range set {
			if !c.enqueue(payload) {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	h.evict(stale, event)
}

// evict drops connections whose send buffer stayed full. A slow consumer must
// never block fanout for everyone else; its client reconnects and resyncs
// from the snapshot handshake.
func (h *Hub) evict(stale []*Client, event string) {
	for _, c := range stale {
		h.log.Warnw("dropping slow consumer", "user_id", c.userID, "conn_id", c.id, "event", event)
		wentOffline := h.Detach(c)
		if c.conn != nil {
			c.conn.Close()
		}
		if wentOffline && h.onOffline != nil {
			h.onOffline(c.userID)
		}
	}
}

func encodeFrame(id, event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(models.Frame{ID: id, Event: event, Data: raw})
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
