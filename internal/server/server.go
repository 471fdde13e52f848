package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/config"
)

// Rooms is what the HTTP routes need from the orchestrator.
type Rooms interface {
	CreateRoom(ctx context.Context, settings internal.Settings) (string, error)
	Snapshot(ctx context.Context, roomID, identity string) (internal.GameStateData, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	rooms          Rooms
	health         Pinger
	ws             http.Handler
	allowedOrigins []string
	log            zerolog.Logger
}

func New(rooms Rooms, health Pinger, ws http.Handler, allowedOrigins []string, log zerolog.Logger) *Server {
	return &Server{
		rooms:          rooms,
		health:         health,
		ws:             ws,
		allowedOrigins: allowedOrigins,
		log:            log.With().Str("component", "http").Logger(),
	}
}

// NewHTTPServer wraps s in an http.Server listening on cfg.Port.
func NewHTTPServer(cfg config.Config, s *Server) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
