package game

import (
	"context"

	"github.com/scythe504/sketchrooms-backend/internal"
)

// Snapshot is the full room view for identity: metadata, the phase payload,
// the remaining countdown and the caller's own submission this round. Players
// appear by public id.
func (o *Orchestrator) Snapshot(ctx context.Context, roomID, identity string) (internal.GameStateData, error) {
	room, err := o.rooms.MustGet(ctx, roomID)
	if err != nil {
		return internal.GameStateData{}, err
	}
	players, err := o.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		return internal.GameStateData{}, err
	}
	waiting, err := o.rooms.WaitlistSize(ctx, roomID)
	if err != nil {
		return internal.GameStateData{}, err
	}
	left, err := o.countdown.SecondsLeft(ctx, roomID)
	if err != nil {
		return internal.GameStateData{}, err
	}
	payload, err := o.engine.Payload(ctx, *room)
	if err != nil {
		return internal.GameStateData{}, err
	}

	state := internal.GameStateData{
		Room:          *room,
		Players:       internal.PublicPlayers(players),
		WaitlistSize:  waiting,
		TimeRemaining: left,
		Prompt:        payload.Prompt,
		Replay:        payload.Replay,
		Standings:     payload.Standings,
		FinalResults:  payload.FinalResults,
	}
	if len(payload.Leaderboard) > 0 {
		if state.Leaderboard, err = o.leaderboard(ctx, roomID, players); err != nil {
			return internal.GameStateData{}, err
		}
	}
	if identity != "" && room.CurrentRound > 0 {
		own, err := o.rooms.Submission(ctx, roomID, room.CurrentRound, identity)
		if err != nil {
			return internal.GameStateData{}, err
		}
		if own != nil {
			pub := own.Public()
			state.OwnSubmission = &pub
		}
	}
	return state, nil
}

// sendSnapshot brings one player's client up to date.
func (o *Orchestrator) sendSnapshot(ctx context.Context, roomID string, player *internal.Player) {
	state, err := o.Snapshot(ctx, roomID, player.StableIdentity)
	if err != nil {
		o.log.Warn().Err(err).Str("room", roomID).Str("conn", player.ConnectionId).Msg("build snapshot")
		o.sendError(ctx, roomID, player.ConnectionId, err)
		return
	}
	o.send(ctx, roomID, player.ConnectionId, internal.EventSnapshot, state)
}
