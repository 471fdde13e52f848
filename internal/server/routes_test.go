package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRooms struct {
	mock.Mock
}

func (m *mockRooms) CreateRoom(ctx context.Context, settings internal.Settings) (string, error) {
	args := m.Called(ctx, settings)
	return args.String(0), args.Error(1)
}

func (m *mockRooms) Snapshot(ctx context.Context, roomID, identity string) (internal.GameStateData, error) {
	args := m.Called(ctx, roomID, identity)
	return args.Get(0).(internal.GameStateData), args.Error(1)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(rooms Rooms, health Pinger, origins ...string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return New(rooms, health, ws, origins, zerolog.Nop()).RegisterRoutes()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, internal.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp internal.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestCreateRoom(t *testing.T) {
	rooms := &mockRooms{}
	settings := internal.Settings{DrawingTimeSeconds: 20, TotalRounds: 2, MaxPlayers: 4}
	rooms.On("CreateRoom", mock.Anything, settings).Return("abc123", nil)
	rooms.On("CreateRoom", mock.Anything, internal.Settings{}).Return("dflt01", nil)
	h := newTestServer(rooms, pinger{})

	rec, resp := do(t, h, http.MethodPost, "/rooms", `{"drawing_time_seconds":20,"total_rounds":2,"max_players":4}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"room_id": "abc123"}, resp.Data)
	assert.GreaterOrEqual(t, resp.RespEndTime, resp.RespStartTime)

	rec, resp = do(t, h, http.MethodPost, "/rooms", "")
	assert.Equal(t, http.StatusCreated, rec.Code, "an empty body means default settings")
	assert.Equal(t, map[string]any{"room_id": "dflt01"}, resp.Data)
}

func TestCreateRoomErrors(t *testing.T) {
	rooms := &mockRooms{}
	rooms.On("CreateRoom", mock.Anything, internal.Settings{TotalRounds: 50}).
		Return("", fmt.Errorf("%w: too many rounds", internal.ErrInvalidSettings))
	rooms.On("CreateRoom", mock.Anything, internal.Settings{TotalRounds: 2}).
		Return("", errors.New("redis down"))
	h := newTestServer(rooms, pinger{})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "malformed json", body: `{"total_rounds":`, wantCode: http.StatusBadRequest, wantErr: "bad_payload"},
		{name: "invalid settings", body: `{"total_rounds":50}`, wantCode: http.StatusBadRequest, wantErr: "invalid_settings"},
		{name: "store failure", body: `{"total_rounds":2}`, wantCode: http.StatusInternalServerError, wantErr: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, h, http.MethodPost, "/rooms", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantErr, data["code"])
		})
	}
}

func TestGetRoom(t *testing.T) {
	rooms := &mockRooms{}
	state := internal.GameStateData{
		Room:          internal.Room{Id: "abc123", Phase: internal.PhaseDrawing, CurrentRound: 1},
		Players:       []*internal.Player{{ConnectionId: "c1", DisplayName: "ann", IsHost: true}},
		WaitlistSize:  2,
		TimeRemaining: 17,
		Prompt:        &internal.Prompt{ID: "p1", Name: "square"},
	}
	rooms.On("Snapshot", mock.Anything, "abc123", "").Return(state, nil)
	rooms.On("Snapshot", mock.Anything, "nope", "").Return(internal.GameStateData{}, internal.ErrRoomNotFound)
	h := newTestServer(rooms, pinger{})

	rec, _ := do(t, h, http.MethodGet, "/rooms/abc123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Room         internal.Room      `json:"room"`
			Players      []*internal.Player `json:"players"`
			WaitlistSize int                `json:"waitlist_size"`
			SecondsLeft  int                `json:"seconds_left"`
			Prompt       any                `json:"prompt"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, internal.PhaseDrawing, body.Data.Room.Phase)
	assert.Len(t, body.Data.Players, 1)
	assert.Equal(t, 2, body.Data.WaitlistSize)
	assert.Equal(t, 17, body.Data.SecondsLeft)
	assert.Nil(t, body.Data.Prompt, "phase payloads stay on the socket")

	rec, resp := do(t, h, http.MethodGet, "/rooms/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "room_not_found", resp.Data.(map[string]any)["code"])
}

func TestHealth(t *testing.T) {
	rec, resp := do(t, newTestServer(&mockRooms{}, pinger{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Data)

	rec, _ = do(t, newTestServer(&mockRooms{}, pinger{err: errors.New("dial tcp: refused")}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(&mockRooms{}, pinger{}, "https://sketch.example")

	req := httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "https://sketch.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://sketch.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/rooms", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSocketRouteIsMounted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/abc123", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	newTestServer(&mockRooms{}, pinger{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
