package admission

import (
	"context"
	"fmt"
	"sync"
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

func setup(t *testing.T, maxPlayers int) (*Controller, *storage.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := storage.New(rdb, time.Hour)
	ok, err := store.CreateRoom(context.Background(), internal.Room{
		Id:       "r1",
		Phase:    internal.PhaseWaiting,
		Settings: internal.Settings{MaxPlayers: maxPlayers, TotalRounds: 1, DrawingTimeSeconds: 5},
	})
	require.NoError(t, err)
	require.True(t, ok)
	return New(store, zerolog.Nop()), store
}

func entry(n int) internal.WaitlistEntry {
	return internal.WaitlistEntry{
		ConnectionId:   fmt.Sprintf("c%d", n),
		StableIdentity: fmt.Sprintf("id%d", n),
		DisplayName:    fmt.Sprintf("p%d", n),
	}
}

func TestDrainAdmitsInOrderUpToCapacity(t *testing.T) {
	c, store := setup(t, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		pos, err := c.Enqueue(ctx, "r1", entry(i))
		require.NoError(t, err)
		assert.Equal(t, i, pos)
	}
	_, err := c.Enqueue(ctx, "r1", entry(4))
	assert.ErrorIs(t, err, internal.ErrRoomFull)

	admitted, err := c.Drain(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, admitted, 3)
	for i, p := range admitted {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), p.ConnectionId)
		assert.Equal(t, i == 0, p.IsHost)
	}

	admitted, err = c.Drain(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, admitted)

	players, err := store.Players(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, players, 3)
}

func TestAdmissionIsPhaseGated(t *testing.T) {
	c, store := setup(t, 4)
	ctx := context.Background()

	for i, phase := range []internal.GamePhase{internal.PhasePrompt, internal.PhaseDrawing} {
		require.NoError(t, store.Redis().HSet(ctx, storage.MetaKey("r1"), "phase", string(phase)).Err())
		_, err := c.Enqueue(ctx, "r1", entry(i+1))
		require.NoError(t, err)
		admitted, err := c.Drain(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, admitted, phase)
	}

	require.NoError(t, store.Redis().HSet(ctx, storage.MetaKey("r1"), "phase", string(internal.PhaseRoundStanding)).Err())
	admitted, err := c.Drain(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, admitted, 2)
}

func TestConcurrentDrainNeverExceedsCapacity(t *testing.T) {
	c, store := setup(t, 4)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		_, err := c.Enqueue(ctx, "r1", entry(i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := c.Drain(ctx, "r1")
			assert.NoError(t, err)
			mu.Lock()
			total += len(admitted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total)
	players, err := store.Players(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, players, 4)
	hosts := 0
	for _, p := range players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestWithdraw(t *testing.T) {
	c, _ := setup(t, 4)
	ctx := context.Background()
	_, err := c.Enqueue(ctx, "r1", entry(1))
	require.NoError(t, err)

	e, err := c.Withdraw(ctx, "r1", "c1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "id1", e.StableIdentity)

	e, err = c.Withdraw(ctx, "r1", "c1")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestAdmitMissingRoom(t *testing.T) {
	c, _ := setup(t, 4)
	_, err := c.AdmitIfPossible(context.Background(), "nope")
	assert.ErrorIs(t, err, internal.ErrRoomNotFound)
}
