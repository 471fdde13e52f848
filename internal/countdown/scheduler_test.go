package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	ticks  map[string][]int
	ends   map[string]int
	phases map[string]internal.GamePhase
}

func newRecorder() *recorder {
	return &recorder{ticks: map[string][]int{}, ends: map[string]int{}, phases: map[string]internal.GamePhase{}}
}

func (r *recorder) tick(_ context.Context, roomID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[roomID] = append(r.ticks[roomID], n)
}

func (r *recorder) end(_ context.Context, roomID string, phase internal.GamePhase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends[roomID]++
	r.phases[roomID] = phase
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return storage.New(rdb, time.Hour)
}

func newScheduler(store *storage.Store, owner string, rec *recorder) *Scheduler {
	s := New(store, Options{Interval: 10 * time.Millisecond, Lease: time.Minute, Owner: owner}, zerolog.Nop())
	s.SetCallbacks(rec.tick, rec.end)
	return s
}

func TestCountdownDecrementsToZeroAndEndsOnce(t *testing.T) {
	store := newStore(t)
	rec := newRecorder()
	s := newScheduler(store, "a", rec)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "r1", 3, internal.PhasePrompt))
	require.NoError(t, s.Start(ctx, "r2", 1, internal.PhaseGameEnd))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tick(ctx))
	}
	s.Wait()

	assert.Equal(t, []int{2, 1, 0}, rec.ticks["r1"])
	assert.Equal(t, []int{0}, rec.ticks["r2"])
	assert.Equal(t, 1, rec.ends["r1"])
	assert.Equal(t, 1, rec.ends["r2"])
	assert.Equal(t, internal.PhasePrompt, rec.phases["r1"])
	assert.Equal(t, internal.PhaseGameEnd, rec.phases["r2"])

	left, err := s.SecondsLeft(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestStartRejectsZero(t *testing.T) {
	s := newScheduler(newStore(t), "a", newRecorder())
	assert.Error(t, s.Start(context.Background(), "r1", 0, internal.PhasePrompt))
}

func TestStartOverwrites(t *testing.T) {
	store := newStore(t)
	rec := newRecorder()
	s := newScheduler(store, "a", rec)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "r1", 5, internal.PhaseGameEnd))
	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Start(ctx, "r1", 2, internal.PhasePrompt))

	left, err := s.SecondsLeft(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Tick(ctx))
	s.Wait()
	assert.Equal(t, 1, rec.ends["r1"])
	assert.Equal(t, internal.PhasePrompt, rec.phases["r1"], "the end reports the phase of the latest start")
}

func TestCancelIsIdempotent(t *testing.T) {
	store := newStore(t)
	rec := newRecorder()
	s := newScheduler(store, "a", rec)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "r1", 2, internal.PhaseDrawing))
	require.NoError(t, s.Cancel(ctx, "r1"))
	require.NoError(t, s.Cancel(ctx, "r1"))
	require.NoError(t, s.Tick(ctx))
	s.Wait()

	assert.Empty(t, rec.ticks["r1"])
	assert.Zero(t, rec.ends["r1"])
}

func TestConcurrentTicksFireEndOnce(t *testing.T) {
	store := newStore(t)
	rec := newRecorder()
	// Two schedulers on the same owner behave like a re-entrant loop.
	a := newScheduler(store, "same", rec)
	b := newScheduler(store, "same", rec)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, "r1", 2, internal.PhaseDrawing))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			assert.NoError(t, s.Tick(ctx))
		}([]*Scheduler{a, b}[i%2])
	}
	wg.Wait()
	a.Wait()
	b.Wait()

	// Each post-decrement value is handed out once and never goes negative.
	seen := map[int]bool{}
	for _, n := range rec.ticks["r1"] {
		assert.False(t, seen[n], "value %d delivered twice", n)
		seen[n] = true
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 2)
	}
	if seen[0] {
		assert.Equal(t, 1, rec.ends["r1"])
	}
	assert.LessOrEqual(t, rec.ends["r1"], 1)
}

func TestOnlyLeaseHolderTicks(t *testing.T) {
	store := newStore(t)
	recA, recB := newRecorder(), newRecorder()
	a := newScheduler(store, "a", recA)
	b := newScheduler(store, "b", recB)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, "r1", 3, internal.PhaseDrawing))

	require.NoError(t, a.Tick(ctx))
	require.NoError(t, b.Tick(ctx))
	require.NoError(t, a.Tick(ctx))

	assert.True(t, a.Leader())
	assert.False(t, b.Leader())
	assert.Equal(t, []int{2, 1}, recA.ticks["r1"])
	assert.Empty(t, recB.ticks["r1"])
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newStore(t)
	rec := newRecorder()
	s := newScheduler(store, "a", rec)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, "r1", 1, internal.PhaseRoundReplay))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.ends["r1"] == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWaitsForEndCallbacks(t *testing.T) {
	store := newStore(t)
	s := New(store, Options{Interval: 5 * time.Millisecond, Lease: time.Minute, Owner: "a"}, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s.SetCallbacks(nil, func(context.Context, string, internal.GamePhase) {
		close(started)
		<-release
		finished.Store(true)
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, "r1", 1, internal.PhaseGameEnd))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("end callback never ran")
	}
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while an end callback was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the end callback finished")
	}
	assert.True(t, finished.Load())
}
