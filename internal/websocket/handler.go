package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/game"
)

var (
	errUnknownMessage = errors.New("unknown message type")
	errBadPayload     = errors.New("malformed message data")
	errRateLimited    = errors.New("too many messages")
)

const cleanupTimeout = 5 * time.Second

// Game is the set of room operations a socket can trigger.
type Game interface {
	Join(ctx context.Context, req game.JoinRequest) (game.JoinResult, error)
	Disconnect(ctx context.Context, roomID, connectionID string) error
	Leave(ctx context.Context, roomID, connectionID string) error
	Start(ctx context.Context, roomID, connectionID string) error
	Restart(ctx context.Context, roomID, connectionID string) error
	Kick(ctx context.Context, roomID, hostConnectionID, targetConnectionID string) error
	UpdateSettings(ctx context.Context, roomID, connectionID string, settings internal.Settings) error
	SubmitRoundResult(ctx context.Context, roomID, connectionID string, data internal.SubmitRoundResultData) error
	SubmitLiveScore(ctx context.Context, roomID, connectionID string, score float64) error
}

type Handler struct {
	game     Game
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler serves /ws/{roomId}. An origin list containing "*" accepts any
// origin.
func NewHandler(g Game, hub *Hub, allowedOrigins []string, log zerolog.Logger) *Handler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	return &Handler{
		game: g,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		log: log.With().Str("component", "websocket").Logger(),
	}
}

// ServeHTTP upgrades the request and joins the room named in the path.
// Query parameters: name (display name) and identity (stable identity used
// to reclaim a seat after a dropped connection).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("upgrade failed")
		return
	}

	c := newClient(conn, roomID, uuid.NewString(), identity)
	log := h.log.With().Str("room", roomID).Str("conn", c.connectionID).Logger()
	go c.writePump()

	// Registered before joining so the snapshot sent during Join is routed here.
	h.hub.register(c)
	ctx := context.WithoutCancel(r.Context())

	res, err := h.game.Join(ctx, game.JoinRequest{
		RoomID:         roomID,
		ConnectionID:   c.connectionID,
		StableIdentity: identity,
		DisplayName:    name,
	})
	if err != nil {
		log.Info().Err(err).Msg("join rejected")
		h.replyError(c, err)
		h.hub.unregister(c)
		c.Close(internal.ReasonCode(err))
		return
	}
	log.Info().Bool("reconnected", res.Reconnected).Int("waitlist_position", res.Position).Msg("socket joined")

	left := h.readLoop(ctx, c, log)

	h.hub.unregister(c)
	c.Close("")
	if left {
		return
	}

	cleanup, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()
	if err := h.game.Disconnect(cleanup, roomID, c.connectionID); err != nil && !errors.Is(err, internal.ErrRoomNotFound) {
		log.Warn().Err(err).Msg("disconnect")
	}
}

// readLoop dispatches inbound messages until the socket fails or the client
// leaves. It reports whether the client left explicitly.
func (h *Handler) readLoop(ctx context.Context, c *Client, log zerolog.Logger) bool {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("read failed")
			}
			return false
		}

		if !c.limiter.Allow() {
			h.replyError(c, errRateLimited)
			continue
		}

		var msg internal.Message[json.RawMessage]
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.replyError(c, errBadPayload)
			continue
		}

		if msg.Type == internal.MsgLeave {
			if err := h.game.Leave(ctx, c.roomID, c.connectionID); err != nil {
				log.Warn().Err(err).Msg("leave")
			}
			return true
		}

		if err := h.dispatch(ctx, c, msg); err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("message rejected")
			h.replyError(c, err)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Client, msg internal.Message[json.RawMessage]) error {
	switch msg.Type {
	case internal.MsgStartGame:
		return h.game.Start(ctx, c.roomID, c.connectionID)
	case internal.MsgRestartGame:
		return h.game.Restart(ctx, c.roomID, c.connectionID)
	case internal.MsgKickPlayer:
		var data internal.KickPlayerData
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		return h.game.Kick(ctx, c.roomID, c.connectionID, data.ConnectionId)
	case internal.MsgUpdateSettings:
		var data internal.Settings
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		return h.game.UpdateSettings(ctx, c.roomID, c.connectionID, data)
	case internal.MsgSubmitRoundResult:
		var data internal.SubmitRoundResultData
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		return h.game.SubmitRoundResult(ctx, c.roomID, c.connectionID, data)
	case internal.MsgSubmitLiveScore:
		var data internal.SubmitLiveScoreData
		if err := decode(msg.Data, &data); err != nil {
			return err
		}
		return h.game.SubmitLiveScore(ctx, c.roomID, c.connectionID, data.Score)
	default:
		return errUnknownMessage
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadPayload
	}
	return nil
}

// replyError writes an error event straight to the socket, bypassing the
// relay.
func (h *Handler) replyError(c *Client, err error) {
	data, mErr := json.Marshal(internal.Message[internal.ErrorData]{
		Type: internal.EventError,
		Data: internal.ErrorData{Code: errorCode(err), Message: err.Error()},
	})
	if mErr != nil {
		return
	}
	c.enqueue(data)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errUnknownMessage):
		return "unknown_message"
	case errors.Is(err, errBadPayload):
		return "bad_payload"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	}
	return internal.ReasonCode(err)
}
