package game

import (
	"context"

	"github.com/scythe504/sketchrooms-backend/internal"
)

// =============================================================================
// TIMER MANAGEMENT
// =============================================================================

// OnTick is the scheduler's tick callback; it forwards the remaining time.
func (o *Orchestrator) OnTick(ctx context.Context, roomID string, secondsLeft int) {
	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Msg("load room for tick")
		return
	}
	if room == nil {
		return
	}
	o.log.Debug().Str("room", roomID).Int("seconds_left", secondsLeft).Str("phase", string(room.Phase)).Msg("tick")
	o.broadcast(ctx, roomID, internal.EventCountdownTick, internal.TimerUpdateData{
		RoomId:      roomID,
		SecondsLeft: secondsLeft,
		Phase:       room.Phase,
	})
}

// SecondsLeft reports the room's remaining countdown, zero when none runs.
func (o *Orchestrator) SecondsLeft(ctx context.Context, roomID string) (int, error) {
	return o.countdown.SecondsLeft(ctx, roomID)
}
