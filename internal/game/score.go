package game

import (
	"context"
	"fmt"
	"time"

	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/storage"
)

// =============================================================================
// SCORING
// =============================================================================

func validScore(score float64) bool {
	return score >= 0 && score <= 100
}

// drawingPlayer resolves the caller and checks the room is drawing.
func (o *Orchestrator) drawingPlayer(ctx context.Context, roomID, connectionID string) (*internal.Room, *internal.Player, []*internal.Player, error) {
	room, err := o.rooms.MustGet(ctx, roomID)
	if err != nil {
		return nil, nil, nil, err
	}
	players, err := o.rooms.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, nil, nil, err
	}
	player, _ := internal.FindByConnection(players, connectionID)
	if player == nil {
		return nil, nil, nil, fmt.Errorf("connection %s: %w", connectionID, internal.ErrPlayerNotFound)
	}
	if room.Phase != internal.PhaseDrawing {
		return nil, nil, nil, fmt.Errorf("submit in %s: %w", room.Phase, internal.ErrWrongPhase)
	}
	return room, player, players, nil
}

// SubmitRoundResult stores the caller's drawing for the current round. The
// first submission counts; later ones are accepted and ignored.
func (o *Orchestrator) SubmitRoundResult(ctx context.Context, roomID, connectionID string, data internal.SubmitRoundResultData) error {
	if !validScore(data.SimilarityScore) {
		return internal.ErrInvalidScore
	}
	strokes, err := internal.NormalizeStrokes(data.Strokes)
	if err != nil {
		return err
	}

	unlock := o.lockRoom(roomID)
	defer unlock()

	room, player, _, err := o.drawingPlayer(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	out, err := o.rooms.SubmitRound(ctx, roomID, internal.RoundSubmission{
		StableIdentity:  player.StableIdentity,
		DisplayName:     player.DisplayName,
		Round:           room.CurrentRound,
		Strokes:         strokes,
		SimilarityScore: data.SimilarityScore,
		SubmittedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	switch out {
	case storage.SubmitRejected:
		return fmt.Errorf("round %d closed: %w", room.CurrentRound, internal.ErrWrongPhase)
	case storage.SubmitDuplicate:
		o.log.Debug().Str("room", roomID).Str("identity", player.StableIdentity).Int("round", room.CurrentRound).Msg("duplicate submission ignored")
	default:
		o.log.Info().Str("room", roomID).Str("identity", player.StableIdentity).Int("round", room.CurrentRound).Float64("score", data.SimilarityScore).Msg("round submitted")
	}
	return nil
}

// SubmitLiveScore updates the caller's in-round score and pushes the live
// leaderboard to the room.
func (o *Orchestrator) SubmitLiveScore(ctx context.Context, roomID, connectionID string, score float64) error {
	if !validScore(score) {
		return internal.ErrInvalidScore
	}

	unlock := o.lockRoom(roomID)
	defer unlock()

	_, player, players, err := o.drawingPlayer(ctx, roomID, connectionID)
	if err != nil {
		return err
	}
	if err := o.rooms.SetLiveScore(ctx, roomID, player.StableIdentity, score); err != nil {
		return err
	}
	board, err := o.leaderboard(ctx, roomID, players)
	if err != nil {
		return err
	}
	o.broadcast(ctx, roomID, internal.EventLeaderboardUpdated, board)
	return nil
}

func (o *Orchestrator) leaderboard(ctx context.Context, roomID string, players []*internal.Player) ([]internal.Standing, error) {
	board, err := o.rooms.Leaderboard(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i := range board {
		if p, _ := internal.FindByIdentity(players, board[i].StableIdentity); p != nil {
			board[i].DisplayName = p.DisplayName
		}
	}
	return internal.PublicStandings(board), nil
}
