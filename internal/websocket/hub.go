package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
)

// envelope is what travels over the room's events channel. An empty To
// addresses every socket in the room.
type envelope struct {
	To      string          `json:"to,omitempty"`
	Message json.RawMessage `json:"message"`
}

// Hub delivers room events to the sockets this process holds. Events are
// published to Redis first so every process serving a room sees them in the
// same order.
type Hub struct {
	store *storage.Store

	mu    sync.RWMutex
	rooms map[string]map[string]*Client // room id -> connection id -> client

	ready     chan struct{}
	readyOnce sync.Once

	log zerolog.Logger
}

func NewHub(store *storage.Store, log zerolog.Logger) *Hub {
	return &Hub{
		store: store,
		rooms: make(map[string]map[string]*Client),
		ready: make(chan struct{}),
		log:   log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Broadcast(ctx context.Context, roomID string, msg internal.Message[any]) error {
	return h.publish(ctx, roomID, "", msg)
}

func (h *Hub) Send(ctx context.Context, roomID, connectionID string, msg internal.Message[any]) error {
	return h.publish(ctx, roomID, connectionID, msg)
}

func (h *Hub) publish(ctx context.Context, roomID, to string, msg internal.Message[any]) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	payload, err := json.Marshal(envelope{To: to, Message: body})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := h.store.Publish(ctx, roomID, payload); err != nil {
		return fmt.Errorf("publish %s to room %s: %w", msg.Type, roomID, err)
	}
	return nil
}

// Ready is closed once Run holds an active subscription.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run relays published events to local sockets until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ps := h.store.SubscribeEvents(ctx)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to room events: %w", err)
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.log.Info().Msg("relaying room events")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll("server_shutdown")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			roomID, ok := storage.RoomIDFromChannel(msg.Channel)
			if !ok {
				continue
			}
			h.deliver(roomID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) deliver(roomID string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("dropping malformed event")
		return
	}

	targets := h.clients(roomID, env.To)
	for _, c := range targets {
		c.enqueue(env.Message)
	}
	h.afterDeliver(roomID, env, targets)
}

// afterDeliver closes sockets whose event ends their stay in the room.
func (h *Hub) afterDeliver(roomID string, env envelope, targets []*Client) {
	var head internal.Message[json.RawMessage]
	if err := json.Unmarshal(env.Message, &head); err != nil {
		return
	}

	switch head.Type {
	case internal.EventPlayerKicked:
		var kicked internal.PlayerKickedData
		if err := json.Unmarshal(head.Data, &kicked); err != nil {
			return
		}
		if c := h.client(roomID, kicked.ConnectionId); c != nil {
			c.Close("kicked")
		}
	case internal.EventError:
		var data internal.ErrorData
		if err := json.Unmarshal(head.Data, &data); err != nil || env.To == "" {
			return
		}
		if data.Code == internal.ReasonCode(internal.ErrRoomNotFound) {
			for _, c := range targets {
				c.Close(data.Code)
			}
		}
	}
}

func (h *Hub) clients(roomID, to string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[roomID]
	if to != "" {
		if c, ok := room[to]; ok {
			return []*Client{c}
		}
		return nil
	}
	out := make([]*Client, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

func (h *Hub) client(roomID, connectionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][connectionID]
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.roomID] = room
	}
	room[c.connectionID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.roomID]
	if room[c.connectionID] != c {
		return
	}
	delete(room, c.connectionID)
	if len(room) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// Connections reports how many sockets this process holds for the room.
func (h *Hub) Connections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) closeAll(reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range h.rooms {
		for _, c := range room {
			c.Close(reason)
		}
	}
}
