package content

import (
	"context"
	"fmt"

	"github.com/scythe504/sketchrooms-backend/internal"
)

// Sequence resolves a room's stored prompt id for a 1-based round.
type Sequence interface {
	PromptID(ctx context.Context, roomID string, round int) (string, bool, error)
}

// RoomPrompts answers "which prompt does this room draw in round N" by
// combining the room's prompt sequence with the catalog.
type RoomPrompts struct {
	Catalog  Catalog
	Sequence Sequence
}

func (r RoomPrompts) PromptForRound(ctx context.Context, roomID string, round int) (internal.Prompt, error) {
	id, ok, err := r.Sequence.PromptID(ctx, roomID, round)
	if err != nil {
		return internal.Prompt{}, err
	}
	if !ok {
		return internal.Prompt{}, fmt.Errorf("room %s round %d: %w", roomID, round, internal.ErrPromptNotFound)
	}
	return r.Catalog.Get(ctx, id)
}

func (r RoomPrompts) Count(ctx context.Context) (int, error) {
	return r.Catalog.Count(ctx)
}

func (r RoomPrompts) SampleIDs(ctx context.Context, n int) ([]string, error) {
	return r.Catalog.SampleIDs(ctx, n)
}
