package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/admission"
	"github.com/scythe504/sketchrooms-backend/internal/content"
	"github.com/scythe504/sketchrooms-backend/internal/countdown"
	"github.com/scythe504/sketchrooms-backend/internal/grace"
	"github.com/scythe504/sketchrooms-backend/internal/phase"
	"github.com/scythe504/sketchrooms-backend/internal/repository"
)

// Notifier delivers events to connected clients.
type Notifier interface {
	Broadcast(ctx context.Context, roomID string, msg internal.Message[any]) error
	Send(ctx context.Context, roomID, connectionID string, msg internal.Message[any]) error
}

// TransitionError is raised when a phase transition could not produce the
// data its next phase needs. The room stays in From.
type TransitionError struct {
	RoomID string
	From   internal.GamePhase
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("room %s: transition from %s aborted: %v", e.RoomID, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Deps struct {
	Rooms     *repository.Repository
	Admission *admission.Controller
	Grace     *grace.Registry
	Countdown *countdown.Scheduler
	Engine    *phase.Engine
	Catalog   content.Catalog
	Notifier  Notifier
}

type Options struct {
	// SettleDelay is how long DRAWING stays open after its countdown hits
	// zero so strokes sent at the buzzer still land.
	SettleDelay time.Duration
	AfterFunc   AfterFunc
}

// Orchestrator is the single entry point for everything that changes a room.
// Calls for the same room are serialised in-process; the store's atomic
// scripts take care of other processes.
type Orchestrator struct {
	rooms     *repository.Repository
	admission *admission.Controller
	grace     *grace.Registry
	countdown *countdown.Scheduler
	engine    *phase.Engine
	catalog   content.Catalog
	notifier  Notifier

	settle    time.Duration
	afterFunc AfterFunc

	locks  sync.Map // room id -> *sync.Mutex
	timers timerSet
	fatal  chan error

	// bg is the context timer-driven work runs under.
	bg     context.Context
	cancel context.CancelFunc

	log zerolog.Logger
}

func New(deps Deps, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	bg, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		rooms:     deps.Rooms,
		admission: deps.Admission,
		grace:     deps.Grace,
		countdown: deps.Countdown,
		engine:    deps.Engine,
		catalog:   deps.Catalog,
		notifier:  deps.Notifier,
		settle:    opts.SettleDelay,
		afterFunc: opts.AfterFunc,
		timers:    timerSet{stops: make(map[string]func() bool)},
		fatal:     make(chan error, 16),
		bg:        bg,
		cancel:    cancel,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
	deps.Countdown.SetCallbacks(o.OnTick, o.OnCountdownEnd)
	return o
}

// Fatal carries *TransitionError values for operators. Errors are dropped
// when nobody drains the channel.
func (o *Orchestrator) Fatal() <-chan error {
	return o.fatal
}

// Close stops every pending grace and settle timer.
func (o *Orchestrator) Close() {
	o.timers.stopAll("")
	o.cancel()
}

func (o *Orchestrator) raise(err *TransitionError) {
	o.log.Error().Err(err.Err).Str("room", err.RoomID).Str("from", string(err.From)).Msg("fatal transition error")
	select {
	case o.fatal <- err:
	default:
		o.log.Warn().Str("room", err.RoomID).Msg("fatal channel full, dropping error")
	}
}

// lockRoom serialises work on one room inside this process.
func (o *Orchestrator) lockRoom(roomID string) func() {
	v, _ := o.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// =============================================================================
// BROADCAST HELPERS
// =============================================================================

func (o *Orchestrator) broadcast(ctx context.Context, roomID, eventType string, data any) {
	msg := internal.Message[any]{Type: eventType, Data: data}
	if err := o.notifier.Broadcast(ctx, roomID, msg); err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Str("event", eventType).Msg("broadcast failed")
	}
}

func (o *Orchestrator) send(ctx context.Context, roomID, connectionID, eventType string, data any) {
	msg := internal.Message[any]{Type: eventType, Data: data}
	if err := o.notifier.Send(ctx, roomID, connectionID, msg); err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Str("conn", connectionID).Str("event", eventType).Msg("send failed")
	}
}

func (o *Orchestrator) sendError(ctx context.Context, roomID, connectionID string, err error) {
	o.send(ctx, roomID, connectionID, internal.EventError, internal.ErrorData{
		Code:    internal.ReasonCode(err),
		Message: err.Error(),
	})
}

// broadcastMetadata sends the room's current shape to everyone in it.
func (o *Orchestrator) broadcastMetadata(ctx context.Context, roomID string) {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil || room == nil {
		return
	}
	players, err := o.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Msg("list players for metadata")
		return
	}
	waiting, err := o.rooms.WaitlistSize(ctx, roomID)
	if err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Msg("waitlist size for metadata")
		return
	}
	o.broadcast(ctx, roomID, internal.EventRoomMetadataChanged, internal.RoomMetadataData{
		Room:         *room,
		Players:      internal.PublicPlayers(players),
		WaitlistSize: waiting,
	})
}

// =============================================================================
// HOST CHECKS
// =============================================================================

// requireHost loads the room and checks that connectionID holds the host role.
func (o *Orchestrator) requireHost(ctx context.Context, roomID, connectionID string) (*internal.Room, []*internal.Player, error) {
	room, err := o.rooms.MustGet(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	players, err := o.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	caller, _ := internal.FindByConnection(players, connectionID)
	if caller == nil {
		return nil, nil, fmt.Errorf("connection %s: %w", connectionID, internal.ErrPlayerNotFound)
	}
	if !caller.IsHost {
		return nil, nil, internal.ErrNotHost
	}
	return room, players, nil
}

// =============================================================================
// TIMERS
// =============================================================================

// timerSet tracks pending local timers by key so they can be replaced or
// cancelled.
type timerSet struct {
	mu    sync.Mutex
	stops map[string]func() bool
}

func (t *timerSet) set(key string, stop func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.stops[key]; ok {
		prev()
	}
	t.stops[key] = stop
}

// clear forgets key without stopping it; used by the timer's own callback.
func (t *timerSet) clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stops, key)
}

func (t *timerSet) stop(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stop, ok := t.stops[key]; ok {
		stop()
		delete(t.stops, key)
	}
}

// stopAll stops every timer whose key starts with prefix.
func (t *timerSet) stopAll(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, stop := range t.stops {
		if strings.HasPrefix(key, prefix) {
			stop()
			delete(t.stops, key)
		}
	}
}

func graceTimerKey(roomID, identity string) string { return roomID + "/grace/" + identity }
func settleTimerKey(roomID string) string          { return roomID + "/settle" }
func roomTimerPrefix(roomID string) string         { return roomID + "/" }

// schedule runs f under the orchestrator's background context after d.
func (o *Orchestrator) schedule(key string, d time.Duration, f func(ctx context.Context)) {
	o.timers.set(key, o.afterFunc(d, func() {
		o.timers.clear(key)
		if o.bg.Err() != nil {
			return
		}
		f(o.bg)
	}))
}
