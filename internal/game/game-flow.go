package game

import (
	"context"
	"fmt"

	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/phase"
)

// =============================================================================
// GAME FLOW
// =============================================================================

// advance runs one phase transition for room and commits it. The commit is a
// compare-and-set on the phase, so a transition another caller already made
// is dropped instead of applied twice. Callers hold the room lock.
func (o *Orchestrator) advance(ctx context.Context, room *internal.Room) error {
	res, err := o.engine.Transition(ctx, *room)
	if err != nil {
		if internal.KindOf(err) == internal.KindFatal {
			if merr := o.rooms.MarkStuck(ctx, room.Id, room.Phase); merr != nil {
				o.log.Warn().Err(merr).Str("room", room.Id).Msg("mark room stuck")
			}
			o.raise(&TransitionError{RoomID: room.Id, From: room.Phase, Err: err})
		}
		return err
	}
	_, err = o.commit(ctx, room.Id, res)
	return err
}

// commit saves res with a compare-and-set on its From phase and, only if that
// wins, applies its writes, arms the next countdown and tells the room. It
// reports whether the change was made.
func (o *Orchestrator) commit(ctx context.Context, roomID string, res phase.Result) (bool, error) {
	ok, err := o.rooms.SavePhase(ctx, roomID, res.From, res.Next, res.Round)
	if err != nil {
		return false, err
	}
	if !ok {
		o.log.Warn().Str("room", roomID).Str("from", string(res.From)).Msg("phase moved underneath transition, skipping")
		return false, nil
	}
	if err := res.Apply(ctx); err != nil {
		return true, fmt.Errorf("room %s: apply %s: %w", roomID, res.Next, err)
	}
	if res.Next == internal.PhaseWaiting {
		if err := o.rooms.ClearStuck(ctx, roomID); err != nil {
			return true, err
		}
	}

	if res.Seconds > 0 {
		if err := o.countdown.Start(ctx, roomID, res.Seconds, res.Next); err != nil {
			return true, err
		}
	} else if err := o.countdown.Cancel(ctx, roomID); err != nil {
		return true, err
	}

	o.log.Info().
		Str("room", roomID).
		Str("from", string(res.From)).
		Str("to", string(res.Next)).
		Int("round", res.Round).
		Msg("phase changed")

	for _, ev := range res.Events {
		o.broadcast(ctx, roomID, ev.Type, ev.Data)
	}

	// Leaving DRAWING reopens admission for anyone who queued mid-round.
	if res.Next.AdmissionOpen() {
		if admitted := o.drain(ctx, roomID); len(admitted) > 0 {
			return true, nil
		}
	}
	o.broadcastMetadata(ctx, roomID)
	return true, nil
}

// advanceFrom transitions the room only if it is still in expected.
func (o *Orchestrator) advanceFrom(ctx context.Context, roomID string, expected internal.GamePhase) {
	unlock := o.lockRoom(roomID)
	defer unlock()

	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		o.log.Error().Err(err).Str("room", roomID).Msg("load room for transition")
		return
	}
	if room == nil {
		o.log.Warn().Str("room", roomID).Msg("countdown ended for missing room")
		return
	}
	if room.Phase != expected {
		o.log.Debug().Str("room", roomID).Str("phase", string(room.Phase)).Str("expected", string(expected)).Msg("stale countdown end")
		return
	}
	if err := o.advance(ctx, room); err != nil {
		// Fatal errors were already raised. Anything else waits for a
		// manual restart rather than being retried here.
		if internal.KindOf(err) != internal.KindFatal {
			o.log.Warn().Err(err).Str("room", roomID).Str("phase", string(expected)).Msg("scheduled transition failed")
		}
	}
}

// OnCountdownEnd is the scheduler's end callback. phase is the one the
// countdown was started for; a room that has since moved on is left alone.
// DRAWING is held open for a short settle delay before its results are
// tallied.
func (o *Orchestrator) OnCountdownEnd(ctx context.Context, roomID string, phase internal.GamePhase) {
	if phase == "" || phase == internal.PhaseWaiting {
		o.log.Debug().Str("room", roomID).Str("phase", string(phase)).Msg("ignoring countdown end")
		return
	}
	if phase == internal.PhaseDrawing && o.settle > 0 {
		o.schedule(settleTimerKey(roomID), o.settle, func(ctx context.Context) {
			o.advanceFrom(ctx, roomID, internal.PhaseDrawing)
		})
		return
	}
	o.advanceFrom(ctx, roomID, phase)
}
