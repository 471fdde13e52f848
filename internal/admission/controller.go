package admission

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
)

// Controller moves participants from a room's waitlist into its player list.
// Every join goes through the waitlist; the store-side admit script is the
// only place a player is ever added.
type Controller struct {
	store *storage.Store
	log   zerolog.Logger
}

func New(store *storage.Store, log zerolog.Logger) *Controller {
	return &Controller{store: store, log: log.With().Str("component", "admission").Logger()}
}

// Enqueue appends entry to the waitlist and returns its 1-based position.
func (c *Controller) Enqueue(ctx context.Context, roomID string, entry internal.WaitlistEntry) (int, error) {
	pos, err := c.store.Enqueue(ctx, roomID, entry)
	if err != nil {
		return 0, fmt.Errorf("room %s: enqueue %s: %w", roomID, entry.StableIdentity, err)
	}
	c.log.Debug().Str("room", roomID).Str("identity", entry.StableIdentity).Int("position", pos).Msg("waitlisted")
	return pos, nil
}

// AdmitIfPossible promotes the head of the waitlist when the phase and the
// room's capacity allow it. A nil player means none was admitted.
func (c *Controller) AdmitIfPossible(ctx context.Context, roomID string) (*internal.Player, error) {
	p, err := c.store.Admit(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: admit: %w", roomID, err)
	}
	if p != nil {
		c.log.Info().
			Str("room", roomID).
			Str("conn", p.ConnectionId).
			Str("name", p.DisplayName).
			Bool("host", p.IsHost).
			Msg("player admitted")
	}
	return p, nil
}

// Drain admits until the waitlist is empty, the room is full or the phase
// closes admission. Players are returned in admission order.
func (c *Controller) Drain(ctx context.Context, roomID string) ([]*internal.Player, error) {
	var admitted []*internal.Player
	for {
		p, err := c.AdmitIfPossible(ctx, roomID)
		if err != nil {
			return admitted, err
		}
		if p == nil {
			return admitted, nil
		}
		admitted = append(admitted, p)
	}
}

// Withdraw drops a still-queued participant. Nil when it was not queued.
func (c *Controller) Withdraw(ctx context.Context, roomID, connectionID string) (*internal.WaitlistEntry, error) {
	e, err := c.store.RemoveWaitlisted(ctx, roomID, connectionID)
	if err != nil {
		return nil, fmt.Errorf("room %s: withdraw %s: %w", roomID, connectionID, err)
	}
	return e, nil
}
