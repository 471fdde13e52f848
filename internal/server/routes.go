package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/scythe504/sketchrooms-backend/internal"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// Apply CORS middleware
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/rooms", s.CreateRoomHandler).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/rooms/{roomId}", s.GetRoomHandler).Methods(http.MethodGet, http.MethodOptions)

	r.Handle("/ws/{roomId}", s.ws)

	return r
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	anyOrigin := slices.Contains(s.allowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case anyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// The socket handler checks origins itself.
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type createRoomResponse struct {
	RoomId string `json:"room_id"`
}

// roomView is the public summary of a room. Phase payloads are only sent over
// the socket.
type roomView struct {
	Room         internal.Room      `json:"room"`
	Players      []*internal.Player `json:"players"`
	WaitlistSize int                `json:"waitlist_size"`
	SecondsLeft  int                `json:"seconds_left"`
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	if err := s.health.Ping(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("health check failed")
		s.writeResponse(w, start, http.StatusServiceUnavailable, "redis unavailable")
		return
	}
	s.writeResponse(w, start, http.StatusOK, "ok")
}

// CreateRoomHandler accepts optional settings; missing fields take defaults.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()

	var settings internal.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		s.writeResponse(w, start, http.StatusBadRequest, internal.ErrorData{Code: "bad_payload", Message: "settings must be a JSON object"})
		return
	}

	roomID, err := s.rooms.CreateRoom(r.Context(), settings)
	if err != nil {
		s.writeError(w, start, err)
		return
	}
	s.log.Info().Str("room", roomID).Interface("settings", settings).Msg("room created")
	s.writeResponse(w, start, http.StatusCreated, createRoomResponse{RoomId: roomID})
}

func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()

	state, err := s.rooms.Snapshot(r.Context(), mux.Vars(r)["roomId"], "")
	if err != nil {
		s.writeError(w, start, err)
		return
	}
	s.writeResponse(w, start, http.StatusOK, roomView{
		Room:         state.Room,
		Players:      state.Players,
		WaitlistSize: state.WaitlistSize,
		SecondsLeft:  state.TimeRemaining,
	})
}

func (s *Server) writeError(w http.ResponseWriter, start int64, err error) {
	status := http.StatusInternalServerError
	switch internal.KindOf(err) {
	case internal.KindValidation:
		status = http.StatusBadRequest
	case internal.KindAuthorization:
		status = http.StatusForbidden
	case internal.KindNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeResponse(w, start, status, internal.ErrorData{Code: internal.ReasonCode(err), Message: err.Error()})
}

// writeResponse sends data in the standard envelope with timing fields.
func (s *Server) writeResponse(w http.ResponseWriter, start int64, status int, data any) {
	end := time.Now().UnixMilli()
	resp := internal.Response{
		StatusCode:    status,
		RespStartTime: start,
		RespEndTime:   end,
		NetRespTime:   end - start,
		Data:          data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}
