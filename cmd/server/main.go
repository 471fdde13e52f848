package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal/admission"
	"github.com/scythe504/sketchrooms-backend/internal/config"
	"github.com/scythe504/sketchrooms-backend/internal/content"
	"github.com/scythe504/sketchrooms-backend/internal/countdown"
	"github.com/scythe504/sketchrooms-backend/internal/game"
	"github.com/scythe504/sketchrooms-backend/internal/grace"
	"github.com/scythe504/sketchrooms-backend/internal/logger"
	"github.com/scythe504/sketchrooms-backend/internal/phase"
	"github.com/scythe504/sketchrooms-backend/internal/repository"
	"github.com/scythe504/sketchrooms-backend/internal/server"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
	"github.com/scythe504/sketchrooms-backend/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, log, err := setup(os.Stdout)
	if err != nil {
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// setup loads the config and builds the process logger on w. A config error
// is reported through a default logger before it is returned.
func setup(w io.Writer) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.NewWithWriter(w, "info", false)
		boot.Error().Err(err).Msg("load config")
		return config.Config{}, boot, err
	}
	return cfg, logger.NewWithWriter(w, cfg.LogLevel, cfg.LogPretty), nil
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	store := storage.New(rdb, cfg.RoomTTL)
	if err := store.Ping(ctx); err != nil {
		return err
	}

	catalog, closeCatalog, err := content.Open(ctx, cfg.DatabaseURL, cfg.PromptsFile, log)
	if err != nil {
		return err
	}
	defer closeCatalog()

	rooms := repository.New(store, log)
	sched := countdown.New(store, countdown.Options{
		Interval: cfg.TickInterval,
		Lease:    cfg.LeaderLease,
		Owner:    uuid.NewString(),
	}, log)
	engine := phase.NewEngine(rooms, content.RoomPrompts{Catalog: catalog, Sequence: rooms}, phase.Durations{
		PromptReveal:  time.Duration(cfg.PromptRevealSeconds) * time.Second,
		RoundReplay:   time.Duration(cfg.RoundReplaySeconds) * time.Second,
		RoundStanding: time.Duration(cfg.RoundStandingSeconds) * time.Second,
		GameEnd:       time.Duration(cfg.GameEndSeconds) * time.Second,
	}, log)

	hub := websocket.NewHub(store, log)
	orch := game.New(game.Deps{
		Rooms:     rooms,
		Admission: admission.New(store, log),
		Grace:     grace.New(store, cfg.GracePeriod, log),
		Countdown: sched,
		Engine:    engine,
		Catalog:   catalog,
		Notifier:  hub,
	}, game.Options{SettleDelay: cfg.DrawingSettleDelay}, log)
	defer orch.Close()

	srv := server.New(orch, store, websocket.NewHandler(orch, hub, cfg.AllowedOrigins, log), cfg.AllowedOrigins, log)
	httpServer := server.NewHTTPServer(cfg, srv)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx); err != nil {
			errs <- err
		}
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-orch.Fatal():
				var terr *game.TransitionError
				if errors.As(err, &terr) {
					log.Error().Str("room", terr.RoomID).Str("phase", string(terr.From)).Err(terr.Err).Msg("room stuck after fatal transition")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errs:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	return runErr
}
