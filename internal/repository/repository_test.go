package repository

import (
	"context"
	"fmt"
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

var settings = internal.Settings{MaxPlayers: 4, TotalRounds: 2, DrawingTimeSeconds: 5}

func newTestRepo(t *testing.T) (*Repository, *storage.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := storage.New(rdb, time.Hour)
	return New(store, zerolog.Nop()), store, mr
}

// seedPlayers creates a room with n admitted players conn-1..conn-n; conn-1 is host.
func seedPlayers(t *testing.T, repo *Repository, store *storage.Store, n int) string {
	t.Helper()
	ctx := context.Background()
	id, err := repo.Create(ctx, settings)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err := store.Enqueue(ctx, id, internal.WaitlistEntry{
			ConnectionId:   fmt.Sprintf("conn-%d", i),
			StableIdentity: fmt.Sprintf("ident-%d", i),
			DisplayName:    fmt.Sprintf("p%d", i),
		})
		require.NoError(t, err)
		p, err := store.Admit(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
	return id
}

func TestCreateRetriesOnCollision(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ids := []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	repo.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	ctx := context.Background()

	first, err := repo.Create(ctx, settings)
	require.NoError(t, err)
	second, err := repo.Create(ctx, settings)
	require.NoError(t, err)

	assert.Equal(t, "aaaaaa", first)
	assert.Equal(t, "bbbbbb", second)
}

func TestCreateGivesUp(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	repo.newID = func() string { return "same" }
	ctx := context.Background()

	_, err := repo.Create(ctx, settings)
	require.NoError(t, err)
	_, err = repo.Create(ctx, settings)
	assert.Error(t, err)
}

func TestMustGetMissing(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	_, err := repo.MustGet(context.Background(), "ghost")
	assert.ErrorIs(t, err, internal.ErrRoomNotFound)
}

func TestRemovePlayerHandsOffHost(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, store, 3)

	dep, err := repo.RemovePlayer(ctx, id, "conn-1")
	require.NoError(t, err)
	require.NotNil(t, dep.Removed)
	require.NotNil(t, dep.NewHost)
	assert.Equal(t, "conn-2", dep.NewHost.ConnectionId)
	assert.Equal(t, 2, dep.Remaining)

	players, err := repo.ListPlayers(ctx, id)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.True(t, players[0].IsHost)
	assert.False(t, players[1].IsHost)

	dep, err = repo.RemovePlayer(ctx, id, "conn-1")
	require.NoError(t, err)
	assert.Nil(t, dep.Removed)
}

func TestExpireDeparture(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, store, 2)

	rec := internal.GracePeriodRecord{RoomId: id, StableIdentity: "ident-1", PriorConnectionId: "conn-1"}
	require.NoError(t, store.PutGraceRecord(ctx, rec, time.Minute))

	dep, err := repo.ExpireDeparture(ctx, id, "ident-1", "conn-1")
	require.NoError(t, err)
	require.NotNil(t, dep.Removed)
	assert.Equal(t, "conn-2", dep.NewHost.ConnectionId)
	assert.Equal(t, 1, dep.Remaining)

	left, err := store.GraceRecord(ctx, id, "ident-1")
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestExpireDepartureAfterReconnectIsNoop(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, store, 2)

	rec := internal.GracePeriodRecord{RoomId: id, StableIdentity: "ident-1", PriorConnectionId: "conn-1"}
	require.NoError(t, store.PutGraceRecord(ctx, rec, time.Minute))
	p, _, err := store.Reconnect(ctx, id, "ident-1", "conn-9")
	require.NoError(t, err)
	require.NotNil(t, p)

	dep, err := repo.ExpireDeparture(ctx, id, "ident-1", "conn-1")
	require.NoError(t, err)
	assert.Nil(t, dep.Removed)
	assert.Equal(t, 2, dep.Remaining)

	players, err := repo.ListPlayers(ctx, id)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "conn-9", players[0].ConnectionId)
	assert.True(t, players[0].IsHost)
}

func TestExpireDepartureLastPlayer(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, store, 1)
	require.NoError(t, store.PutGraceRecord(ctx, internal.GracePeriodRecord{
		RoomId: id, StableIdentity: "ident-1", PriorConnectionId: "conn-1",
	}, time.Minute))

	dep, err := repo.ExpireDeparture(ctx, id, "ident-1", "conn-1")
	require.NoError(t, err)
	require.NotNil(t, dep.Removed)
	assert.Nil(t, dep.NewHost)
	assert.Equal(t, 0, dep.Remaining)
}

func TestReplacePlayerAt(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, store, 2)

	players, err := repo.ListPlayers(ctx, id)
	require.NoError(t, err)
	renamed := players[1].Clone()
	renamed.DisplayName = "renamed"
	require.NoError(t, repo.ReplacePlayerAt(ctx, id, 1, renamed))

	players, err = repo.ListPlayers(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", players[1].DisplayName)
}

func TestTeardown(t *testing.T) {
	repo, store, mr := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, store, 2)
	require.NoError(t, repo.SetPromptSequence(ctx, id, []string{"p1", "p2"}))

	require.NoError(t, repo.DeleteRoomAndAllDerivedKeys(ctx, id))
	assert.Empty(t, mr.Keys())

	room, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, room)
}

func TestStuckMarkerMatchesPhase(t *testing.T) {
	repo, _, mr := newTestRepo(t)
	ctx := context.Background()
	id := seedPlayers(t, repo, nil, 0)

	stuck, err := repo.IsStuck(ctx, id, internal.PhaseRoundStanding)
	require.NoError(t, err)
	assert.False(t, stuck)

	require.NoError(t, repo.MarkStuck(ctx, id, internal.PhaseRoundStanding))
	stuck, err = repo.IsStuck(ctx, id, internal.PhaseRoundStanding)
	require.NoError(t, err)
	assert.True(t, stuck)
	stuck, err = repo.IsStuck(ctx, id, internal.PhaseWaiting)
	require.NoError(t, err)
	assert.False(t, stuck, "a marker from another phase does not count")
	assert.True(t, mr.Exists(storage.StuckKey(id)))

	require.NoError(t, repo.ClearStuck(ctx, id))
	stuck, err = repo.IsStuck(ctx, id, internal.PhaseRoundStanding)
	require.NoError(t, err)
	assert.False(t, stuck)
}
