package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
	"github.com/scythe504/sketchrooms-backend/internal/utils"
)

const (
	roomIDLength      = 6
	maxCreateAttempts = 5
)

// Departure describes a permanent removal from the active player list.
type Departure struct {
	Removed   *internal.Player
	NewHost   *internal.Player
	Remaining int
}

// Repository is the room-level view over the shared store.
type Repository struct {
	store *storage.Store
	newID func() string
	now   func() time.Time
	log   zerolog.Logger
}

func New(store *storage.Store, log zerolog.Logger) *Repository {
	return &Repository{
		store: store,
		newID: func() string { return utils.GenerateID(roomIDLength) },
		now:   time.Now,
		log:   log.With().Str("component", "repository").Logger(),
	}
}

// =============================================================================
// ROOM METADATA
// =============================================================================

// Create allocates a fresh room id, retrying on collision.
func (r *Repository) Create(ctx context.Context, settings internal.Settings) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := r.newID()
		ok, err := r.store.CreateRoom(ctx, internal.Room{
			Id:        id,
			Phase:     internal.PhaseWaiting,
			Settings:  settings,
			CreatedAt: r.now().UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		if ok {
			r.log.Info().Str("room", id).Interface("settings", settings).Msg("room created")
			return id, nil
		}
		r.log.Warn().Str("room", id).Int("attempt", attempt+1).Msg("room id collision")
	}
	return "", fmt.Errorf("create room: no free id after %d attempts", maxCreateAttempts)
}

// Get returns nil without error when the room does not exist.
func (r *Repository) Get(ctx context.Context, roomID string) (*internal.Room, error) {
	return r.store.LoadRoom(ctx, roomID)
}

// MustGet is Get with a missing room reported as internal.ErrRoomNotFound.
func (r *Repository) MustGet(ctx context.Context, roomID string) (*internal.Room, error) {
	room, err := r.store.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, internal.ErrRoomNotFound)
	}
	return room, nil
}

func (r *Repository) SaveSettings(ctx context.Context, roomID string, settings internal.Settings) error {
	return r.store.SaveSettings(ctx, roomID, settings)
}

// SavePhase commits a phase change only if the room is still in from.
func (r *Repository) SavePhase(ctx context.Context, roomID string, from, to internal.GamePhase, round int) (bool, error) {
	return r.store.CompareAndSetPhase(ctx, roomID, from, to, round)
}

// MarkStuck flags the room as halted in phase after an aborted transition.
func (r *Repository) MarkStuck(ctx context.Context, roomID string, phase internal.GamePhase) error {
	return r.store.MarkStuck(ctx, roomID, phase)
}

// IsStuck reports whether the room is still halted in phase.
func (r *Repository) IsStuck(ctx context.Context, roomID string, phase internal.GamePhase) (bool, error) {
	stuck, ok, err := r.store.StuckPhase(ctx, roomID)
	if err != nil {
		return false, err
	}
	return ok && stuck == phase, nil
}

func (r *Repository) ClearStuck(ctx context.Context, roomID string) error {
	return r.store.ClearStuck(ctx, roomID)
}

// =============================================================================
// PLAYERS & WAITLIST
// =============================================================================

func (r *Repository) ListPlayers(ctx context.Context, roomID string) ([]*internal.Player, error) {
	return r.store.Players(ctx, roomID)
}

func (r *Repository) AppendPlayer(ctx context.Context, roomID string, player *internal.Player) error {
	return r.store.AppendPlayer(ctx, roomID, player)
}

func (r *Repository) ReplacePlayerAt(ctx context.Context, roomID string, index int, player *internal.Player) error {
	return r.store.ReplacePlayerAt(ctx, roomID, index, player)
}

func (r *Repository) Waitlist(ctx context.Context, roomID string) ([]internal.WaitlistEntry, error) {
	return r.store.Waitlist(ctx, roomID)
}

func (r *Repository) WaitlistSize(ctx context.Context, roomID string) (int, error) {
	return r.store.WaitlistSize(ctx, roomID)
}

func (r *Repository) RemoveWaitlisted(ctx context.Context, roomID, connectionID string) (*internal.WaitlistEntry, error) {
	return r.store.RemoveWaitlisted(ctx, roomID, connectionID)
}

// RemovePlayer permanently removes the player holding connectionID and hands
// the host role to the next player in list order when needed. Any pending
// grace record for that player is dropped in the same transaction.
func (r *Repository) RemovePlayer(ctx context.Context, roomID, connectionID string) (Departure, error) {
	var dep Departure
	err := r.store.UpdatePlayers(ctx, roomID, func(tx *redis.Tx, players []*internal.Player) (storage.PlayersUpdate, error) {
		remaining, removed, newHost := internal.HandOffHost(players, connectionID)
		dep = Departure{Removed: removed, NewHost: newHost, Remaining: len(remaining)}
		if removed == nil {
			return storage.PlayersUpdate{}, nil
		}
		return storage.PlayersUpdate{
			Players: remaining,
			Write:   true,
			Also: func(pipe redis.Pipeliner) {
				pipe.Del(ctx, storage.GraceKey(roomID, removed.StableIdentity))
			},
		}, nil
	})
	if err != nil {
		return Departure{}, fmt.Errorf("room %s: remove player %s: %w", roomID, connectionID, err)
	}
	return dep, nil
}

// ExpireDeparture turns a pending grace period into a permanent departure.
// It only acts while the grace record still exists and still names the prior
// connection; a reconnect that consumed the record wins and this is a no-op.
func (r *Repository) ExpireDeparture(ctx context.Context, roomID, identity, priorConnectionID string) (Departure, error) {
	graceKey := storage.GraceKey(roomID, identity)
	var dep Departure
	err := r.store.UpdatePlayers(ctx, roomID, func(tx *redis.Tx, players []*internal.Player) (storage.PlayersUpdate, error) {
		dep = Departure{Remaining: len(players)}
		raw, err := tx.Get(ctx, graceKey).Result()
		if errors.Is(err, redis.Nil) {
			return storage.PlayersUpdate{}, nil
		}
		if err != nil {
			return storage.PlayersUpdate{}, err
		}
		rec, err := storage.DecodeGraceRecord(raw)
		if err != nil {
			return storage.PlayersUpdate{}, err
		}
		if rec.PriorConnectionId != priorConnectionID {
			// A newer disconnect owns the record now.
			return storage.PlayersUpdate{}, nil
		}

		remaining, removed, newHost := internal.HandOffHost(players, priorConnectionID)
		dep = Departure{Removed: removed, NewHost: newHost, Remaining: len(remaining)}
		return storage.PlayersUpdate{
			Players: remaining,
			Write:   removed != nil,
			Also: func(pipe redis.Pipeliner) {
				pipe.Del(ctx, graceKey)
			},
		}, nil
	}, graceKey)
	if err != nil {
		return Departure{}, fmt.Errorf("room %s: expire departure of %s: %w", roomID, identity, err)
	}
	return dep, nil
}

// =============================================================================
// GAME DATA
// =============================================================================

func (r *Repository) Submissions(ctx context.Context, roomID string, round int) ([]internal.RoundSubmission, error) {
	return r.store.Submissions(ctx, roomID, round)
}

func (r *Repository) Submission(ctx context.Context, roomID string, round int, identity string) (*internal.RoundSubmission, error) {
	return r.store.Submission(ctx, roomID, round, identity)
}

func (r *Repository) SubmitRound(ctx context.Context, roomID string, sub internal.RoundSubmission) (storage.SubmitOutcome, error) {
	return r.store.SubmitRound(ctx, roomID, sub)
}

func (r *Repository) Standings(ctx context.Context, roomID string) ([]internal.Standing, error) {
	return r.store.Standings(ctx, roomID)
}

func (r *Repository) Leaderboard(ctx context.Context, roomID string) ([]internal.Standing, error) {
	return r.store.Leaderboard(ctx, roomID)
}

func (r *Repository) SetLiveScore(ctx context.Context, roomID, identity string, score float64) error {
	return r.store.SetLiveScore(ctx, roomID, identity, score)
}

func (r *Repository) ClearLeaderboard(ctx context.Context, roomID string) error {
	return r.store.ClearLeaderboard(ctx, roomID)
}

func (r *Repository) SetPromptSequence(ctx context.Context, roomID string, ids []string) error {
	return r.store.SetPromptSequence(ctx, roomID, ids)
}

func (r *Repository) PromptID(ctx context.Context, roomID string, round int) (string, bool, error) {
	return r.store.PromptID(ctx, roomID, round)
}

// ResetGameData drops submissions, leaderboard and standings.
func (r *Repository) ResetGameData(ctx context.Context, roomID string) error {
	return r.store.ResetGameData(ctx, roomID)
}

// DeleteRoomAndAllDerivedKeys tears the room down completely.
func (r *Repository) DeleteRoomAndAllDerivedKeys(ctx context.Context, roomID string) error {
	n, err := r.store.DeleteRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("room %s: teardown: %w", roomID, err)
	}
	r.log.Info().Str("room", roomID).Int("keys", n).Msg("room torn down")
	return nil
}
