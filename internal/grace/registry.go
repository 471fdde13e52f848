package grace

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
)

// Status is where a player sits in the disconnect lifecycle.
type Status int

const (
	Connected Status = iota
	PendingDeparture
	Departed
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case PendingDeparture:
		return "pending-departure"
	case Departed:
		return "departed"
	}
	return "unknown"
}

// The record outlives the local timer by this much so a reconnect that races
// the expiry still finds it. The timer, not the TTL, decides the departure.
const backstop = time.Second

// Registry keeps the short-lived "recently disconnected" records.
type Registry struct {
	store  *storage.Store
	period time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func New(store *storage.Store, period time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		period: period,
		now:    time.Now,
		log:    log.With().Str("component", "grace").Logger(),
	}
}

// Period is how long a disconnected player may take to come back.
func (g *Registry) Period() time.Duration {
	return g.period
}

// Begin records that player dropped its connection. The player stays in the
// active list; an existing record for the same identity is replaced.
func (g *Registry) Begin(ctx context.Context, roomID string, player *internal.Player) (internal.GracePeriodRecord, error) {
	rec := internal.GracePeriodRecord{
		RoomId:                roomID,
		StableIdentity:        player.StableIdentity,
		PriorConnectionId:     player.ConnectionId,
		DisconnectedAtEpochMs: g.now().UnixMilli(),
	}
	if err := g.store.PutGraceRecord(ctx, rec, g.period+backstop); err != nil {
		return rec, fmt.Errorf("room %s: begin grace for %s: %w", roomID, player.StableIdentity, err)
	}
	g.log.Info().
		Str("room", roomID).
		Str("identity", player.StableIdentity).
		Str("conn", player.ConnectionId).
		Dur("period", g.period).
		Msg("grace period started")
	return rec, nil
}

// Recover consumes the identity's record and moves the player onto
// connectionID. It returns a nil player when there is nothing to recover.
func (g *Registry) Recover(ctx context.Context, roomID, identity, connectionID string) (*internal.Player, *internal.GracePeriodRecord, error) {
	player, rec, err := g.store.Reconnect(ctx, roomID, identity, connectionID)
	if err != nil {
		return nil, nil, fmt.Errorf("room %s: recover %s: %w", roomID, identity, err)
	}
	if player != nil {
		g.log.Info().
			Str("room", roomID).
			Str("identity", identity).
			Str("prior_conn", rec.PriorConnectionId).
			Str("conn", connectionID).
			Msg("player reconnected")
	}
	return player, rec, nil
}

// Pending returns the live record for identity, or nil.
func (g *Registry) Pending(ctx context.Context, roomID, identity string) (*internal.GracePeriodRecord, error) {
	return g.store.GraceRecord(ctx, roomID, identity)
}

// ExpiresAt is when the record's departure becomes permanent.
func (g *Registry) ExpiresAt(rec internal.GracePeriodRecord) time.Time {
	return time.UnixMilli(rec.DisconnectedAtEpochMs).Add(g.period)
}

// Status classifies identity against the room's current player list.
func (g *Registry) Status(ctx context.Context, roomID, identity string, players []*internal.Player) (Status, error) {
	if p, _ := internal.FindByIdentity(players, identity); p == nil {
		return Departed, nil
	}
	rec, err := g.Pending(ctx, roomID, identity)
	if err != nil {
		return Connected, err
	}
	if rec != nil {
		return PendingDeparture, nil
	}
	return Connected, nil
}
