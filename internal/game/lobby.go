package game

import (
	"context"
	"fmt"

	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/utils"
)

// =============================================================================
// HOST ACTIONS
// =============================================================================

// Start moves a waiting room into its first round.
func (o *Orchestrator) Start(ctx context.Context, roomID, connectionID string) error {
	unlock := o.lockRoom(roomID)
	defer unlock()

	room, _, err := o.requireHost(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	if room.Phase != internal.PhaseWaiting {
		return fmt.Errorf("start in %s: %w", room.Phase, internal.ErrWrongPhase)
	}
	return o.advance(ctx, room)
}

// Restart cuts the end screen short and returns the room to WAITING. It also
// recovers a room halted by an aborted transition, from whatever phase it
// was left in.
func (o *Orchestrator) Restart(ctx context.Context, roomID, connectionID string) error {
	unlock := o.lockRoom(roomID)
	defer unlock()

	room, _, err := o.requireHost(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	if room.Phase == internal.PhaseGameEnd {
		if err := o.countdown.Cancel(ctx, roomID); err != nil {
			return err
		}
		return o.advance(ctx, room)
	}

	stuck, err := o.rooms.IsStuck(ctx, roomID, room.Phase)
	if err != nil {
		return err
	}
	if !stuck {
		return fmt.Errorf("restart in %s: %w", room.Phase, internal.ErrWrongPhase)
	}
	if err := o.countdown.Cancel(ctx, roomID); err != nil {
		return err
	}
	o.timers.stop(settleTimerKey(roomID))
	res, err := o.engine.Reset(ctx, *room)
	if err != nil {
		return err
	}
	ok, err := o.commit(ctx, roomID, res)
	if ok {
		o.log.Info().Str("room", roomID).Str("from", string(room.Phase)).Msg("stuck room reset")
	}
	return err
}

// Kick removes another player. Only the host may kick, and only while waiting.
func (o *Orchestrator) Kick(ctx context.Context, roomID, hostConnectionID, targetConnectionID string) error {
	unlock := o.lockRoom(roomID)
	defer unlock()

	room, players, err := o.requireHost(ctx, roomID, hostConnectionID)
	if err != nil {
		return err
	}
	if room.Phase != internal.PhaseWaiting {
		return fmt.Errorf("kick in %s: %w", room.Phase, internal.ErrWrongPhase)
	}
	if hostConnectionID == targetConnectionID {
		return internal.ErrKickSelf
	}
	if target, _ := internal.FindByConnection(players, targetConnectionID); target == nil {
		return fmt.Errorf("kick %s: %w", targetConnectionID, internal.ErrPlayerNotFound)
	}

	dep, err := o.rooms.RemovePlayer(ctx, roomID, targetConnectionID)
	if err != nil {
		return err
	}
	if dep.Removed == nil {
		return fmt.Errorf("kick %s: %w", targetConnectionID, internal.ErrPlayerNotFound)
	}
	o.timers.stop(graceTimerKey(roomID, dep.Removed.StableIdentity))
	o.log.Info().Str("room", roomID).Str("conn", targetConnectionID).Str("name", dep.Removed.DisplayName).Msg("player kicked")

	o.broadcast(ctx, roomID, internal.EventPlayerKicked, internal.PlayerKickedData{
		RoomId:       roomID,
		ConnectionId: targetConnectionID,
		DisplayName:  dep.Removed.DisplayName,
	})
	o.afterDeparture(ctx, roomID, dep)
	return nil
}

// UpdateSettings changes the room settings while waiting. Capacity can
// never drop below the current headcount.
func (o *Orchestrator) UpdateSettings(ctx context.Context, roomID, connectionID string, settings internal.Settings) error {
	unlock := o.lockRoom(roomID)
	defer unlock()

	room, _, err := o.requireHost(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	if room.Phase != internal.PhaseWaiting {
		return fmt.Errorf("settings in %s: %w", room.Phase, internal.ErrWrongPhase)
	}
	pool, err := o.catalog.Count(ctx)
	if err != nil {
		return fmt.Errorf("count prompts: %w", err)
	}
	if err := utils.ValidateSettings(settings, pool); err != nil {
		return err
	}
	if err := o.rooms.SaveSettings(ctx, roomID, settings); err != nil {
		return err
	}
	if settings.TotalRounds != room.Settings.TotalRounds {
		if err := o.engine.ShufflePrompts(ctx, roomID, settings.TotalRounds); err != nil {
			return err
		}
	}
	o.log.Info().Str("room", roomID).Interface("settings", settings).Msg("settings updated")

	// A larger room may take people off the waitlist.
	if admitted := o.drain(ctx, roomID); len(admitted) == 0 {
		o.broadcastMetadata(ctx, roomID)
	}
	return nil
}
