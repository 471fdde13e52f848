package countdown

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
)

// TickFunc receives the post-decrement value of a running countdown.
type TickFunc func(ctx context.Context, roomID string, secondsLeft int)

// EndFunc runs once per countdown, after the tick that reached zero. phase is
// the one passed to Start.
type EndFunc func(ctx context.Context, roomID string, phase internal.GamePhase)

type Options struct {
	Interval time.Duration
	// Lease is how long leadership survives without a refresh. It must be
	// longer than Interval.
	Lease time.Duration
	Owner string
}

// Scheduler is the single loop that drives every room's countdown. Each
// process runs one, but only the holder of the Redis lease ticks.
type Scheduler struct {
	store   *storage.Store
	opts    Options
	onTick  TickFunc
	onEnd   EndFunc
	ticking atomic.Bool
	leader  atomic.Bool
	ends    sync.WaitGroup
	log     zerolog.Logger
}

func New(store *storage.Store, opts Options, log zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Lease <= opts.Interval {
		opts.Lease = 3 * opts.Interval
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}
	return &Scheduler{
		store:  store,
		opts:   opts,
		onTick: func(context.Context, string, int) {},
		onEnd:  func(context.Context, string, internal.GamePhase) {},
		log:    log.With().Str("component", "countdown").Str("owner", opts.Owner).Logger(),
	}
}

// SetCallbacks must be called before Run.
func (s *Scheduler) SetCallbacks(onTick TickFunc, onEnd EndFunc) {
	if onTick != nil {
		s.onTick = onTick
	}
	if onEnd != nil {
		s.onEnd = onEnd
	}
}

// Start creates or overwrites the room's countdown for the given phase.
func (s *Scheduler) Start(ctx context.Context, roomID string, seconds int, phase internal.GamePhase) error {
	if seconds < 1 {
		return fmt.Errorf("room %s: countdown must be at least one second, got %d", roomID, seconds)
	}
	if err := s.store.StartCountdown(ctx, roomID, seconds, phase); err != nil {
		return fmt.Errorf("room %s: start countdown: %w", roomID, err)
	}
	s.log.Debug().Str("room", roomID).Int("seconds", seconds).Str("phase", string(phase)).Msg("countdown started")
	return nil
}

// Cancel stops the room's countdown. Cancelling a stopped countdown is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, roomID string) error {
	if err := s.store.CancelCountdown(ctx, roomID); err != nil {
		return fmt.Errorf("room %s: cancel countdown: %w", roomID, err)
	}
	return nil
}

// SecondsLeft returns 0 when no countdown is running.
func (s *Scheduler) SecondsLeft(ctx context.Context, roomID string) (int, error) {
	n, _, err := s.store.SecondsLeft(ctx, roomID)
	return n, err
}

// Run ticks every Interval until ctx is done, then waits for in-flight end
// callbacks. Ticks run on the loop goroutine; a slow pass delays the next
// one rather than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.opts.Interval).Msg("countdown loop started")

	for {
		select {
		case <-ctx.Done():
			s.ends.Wait()
			s.log.Info().Msg("countdown loop stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// Tick runs one pass over every room with a live countdown. A pass that
// starts while the previous one is still running is skipped.
func (s *Scheduler) Tick(ctx context.Context) error {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warn().Msg("previous tick still running, skipping")
		return nil
	}
	defer s.ticking.Store(false)

	leader, err := s.store.AcquireLease(ctx, s.opts.Owner, s.opts.Lease)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if s.leader.Swap(leader) != leader {
		s.log.Info().Bool("leader", leader).Msg("countdown leadership changed")
	}
	if !leader {
		return nil
	}

	rooms, err := s.store.CountdownRooms(ctx)
	if err != nil {
		return fmt.Errorf("list countdowns: %w", err)
	}
	for _, roomID := range rooms {
		n, phase, err := s.store.TickCountdown(ctx, roomID)
		if err != nil {
			s.log.Error().Err(err).Str("room", roomID).Msg("tick countdown")
			continue
		}
		if n < 0 {
			continue
		}
		s.onTick(ctx, roomID, n)
		if n == 0 {
			s.log.Debug().Str("room", roomID).Str("phase", string(phase)).Msg("countdown ended")
			s.ends.Add(1)
			go func(roomID string, phase internal.GamePhase) {
				defer s.ends.Done()
				s.onEnd(ctx, roomID, phase)
			}(roomID, phase)
		}
	}
	return nil
}

// Wait blocks until every end callback started so far has returned.
func (s *Scheduler) Wait() {
	s.ends.Wait()
}

// Leader reports whether the last tick held the lease.
func (s *Scheduler) Leader() bool {
	return s.leader.Load()
}
