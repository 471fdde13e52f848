package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
)

// Rooms is the slice of the room repository the engine reads and resets.
type Rooms interface {
	ListPlayers(ctx context.Context, roomID string) ([]*internal.Player, error)
	Submissions(ctx context.Context, roomID string, round int) ([]internal.RoundSubmission, error)
	Submission(ctx context.Context, roomID string, round int, identity string) (*internal.RoundSubmission, error)
	Standings(ctx context.Context, roomID string) ([]internal.Standing, error)
	Leaderboard(ctx context.Context, roomID string) ([]internal.Standing, error)
	ClearLeaderboard(ctx context.Context, roomID string) error
	ResetGameData(ctx context.Context, roomID string) error
	SetPromptSequence(ctx context.Context, roomID string, ids []string) error
}

// Content supplies round prompts.
type Content interface {
	PromptForRound(ctx context.Context, roomID string, round int) (internal.Prompt, error)
	SampleIDs(ctx context.Context, n int) ([]string, error)
}

// Durations of the fixed-length phases. DRAWING uses the room's setting.
type Durations struct {
	PromptReveal  time.Duration
	RoundReplay   time.Duration
	RoundStanding time.Duration
	GameEnd       time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		PromptReveal:  internal.PromptRevealDuration,
		RoundReplay:   internal.RoundReplayDuration,
		RoundStanding: internal.RoundStandingDuration,
		GameEnd:       internal.GameEndDuration,
	}
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// Result is what a transition produced. Computing it only reads; the caller
// saves Next and Round and, once that save has won, calls Apply for the
// writes that belong to the new phase. Seconds is zero when the next phase
// has no countdown.
type Result struct {
	From    internal.GamePhase
	Next    internal.GamePhase
	Round   int
	Seconds int
	Events  []internal.Message[any]

	apply func(ctx context.Context) error
}

// Apply runs the transition's deferred writes. It must only be called after
// the phase change was committed.
func (r Result) Apply(ctx context.Context) error {
	if r.apply == nil {
		return nil
	}
	return r.apply(ctx)
}

// Engine computes phase transitions.
type Engine struct {
	rooms     Rooms
	content   Content
	durations Durations
	log       zerolog.Logger
}

func NewEngine(rooms Rooms, content Content, durations Durations, log zerolog.Logger) *Engine {
	return &Engine{
		rooms:     rooms,
		content:   content,
		durations: durations,
		log:       log.With().Str("component", "phase").Logger(),
	}
}

// Transition computes the step out of room's current phase. Failing to
// produce the data the next phase needs aborts the step; the room must then
// stay where it is.
func (e *Engine) Transition(ctx context.Context, room internal.Room) (Result, error) {
	var (
		res Result
		err error
	)
	switch room.Phase {
	case internal.PhaseWaiting:
		res, err = e.startRound(ctx, room)
	case internal.PhasePrompt:
		res = Result{Next: internal.PhaseDrawing, Round: room.CurrentRound, Seconds: room.Settings.DrawingTimeSeconds}
	case internal.PhaseDrawing:
		res, err = e.replay(ctx, room)
	case internal.PhaseRoundReplay:
		res, err = e.standings(ctx, room)
	case internal.PhaseRoundStanding:
		if room.IsLastRound() {
			res, err = e.finish(ctx, room)
		} else {
			res, err = e.nextPrompt(ctx, room, room.CurrentRound+1)
		}
	case internal.PhaseGameEnd:
		res, err = e.reset(ctx, room)
	default:
		err = fmt.Errorf("unknown phase %q", room.Phase)
	}
	if err != nil {
		return Result{}, fmt.Errorf("room %s: %s transition: %w", room.Id, room.Phase, err)
	}
	res.From = room.Phase

	e.log.Info().
		Str("room", room.Id).
		Str("from", string(res.From)).
		Str("to", string(res.Next)).
		Int("round", res.Round).
		Int("seconds", res.Seconds).
		Msg("transition computed")
	return res, nil
}

// WAITING -> PROMPT
func (e *Engine) startRound(ctx context.Context, room internal.Room) (Result, error) {
	players, err := e.rooms.ListPlayers(ctx, room.Id)
	if err != nil {
		return Result{}, err
	}
	if !room.CanStartGame(len(players)) {
		return Result{}, fmt.Errorf("%d players: %w", len(players), internal.ErrNotEnoughPlayers)
	}
	return e.nextPrompt(ctx, room, 1)
}

// -> PROMPT for round
func (e *Engine) nextPrompt(ctx context.Context, room internal.Room, round int) (Result, error) {
	prompt, err := e.content.PromptForRound(ctx, room.Id, round)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Next:    internal.PhasePrompt,
		Round:   round,
		Seconds: seconds(e.durations.PromptReveal),
		Events: []internal.Message[any]{{
			Type: internal.EventPromptRevealed,
			Data: internal.PromptRevealData{Round: round, TotalRounds: room.Settings.TotalRounds, Prompt: prompt},
		}},
		apply: func(ctx context.Context) error {
			return e.rooms.ClearLeaderboard(ctx, room.Id)
		},
	}, nil
}

// DRAWING -> ROUND_REPLAY
func (e *Engine) replay(ctx context.Context, room internal.Room) (Result, error) {
	data, err := e.replayData(ctx, room)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Next:    internal.PhaseRoundReplay,
		Round:   room.CurrentRound,
		Seconds: seconds(e.durations.RoundReplay),
		Events:  []internal.Message[any]{{Type: internal.EventRoundReplayReady, Data: data}},
	}, nil
}

func (e *Engine) replayData(ctx context.Context, room internal.Room) (internal.RoundReplayData, error) {
	prompt, err := e.content.PromptForRound(ctx, room.Id, room.CurrentRound)
	if err != nil {
		return internal.RoundReplayData{}, err
	}
	subs, err := e.rooms.Submissions(ctx, room.Id, room.CurrentRound)
	if err != nil {
		return internal.RoundReplayData{}, err
	}
	return internal.RoundReplayData{Round: room.CurrentRound, Prompt: prompt, Submissions: internal.PublicSubmissions(subs)}, nil
}

// ROUND_REPLAY -> ROUND_STANDING
func (e *Engine) standings(ctx context.Context, room internal.Room) (Result, error) {
	data, err := e.standingsData(ctx, room)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Next:    internal.PhaseRoundStanding,
		Round:   room.CurrentRound,
		Seconds: seconds(e.durations.RoundStanding),
		Events:  []internal.Message[any]{{Type: internal.EventStandingsReady, Data: data}},
	}, nil
}

func (e *Engine) standingsData(ctx context.Context, room internal.Room) (internal.StandingsData, error) {
	standings, err := e.rankedStandings(ctx, room)
	if err != nil {
		return internal.StandingsData{}, err
	}
	return internal.StandingsData{
		Round:       room.CurrentRound,
		TotalRounds: room.Settings.TotalRounds,
		Standings:   internal.PublicStandings(standings),
	}, nil
}

// rankedStandings attaches display names to the cumulative standings. Names
// come from the player list, then from submissions for players who left.
func (e *Engine) rankedStandings(ctx context.Context, room internal.Room) ([]internal.Standing, error) {
	standings, err := e.rooms.Standings(ctx, room.Id)
	if err != nil {
		return nil, err
	}
	players, err := e.rooms.ListPlayers(ctx, room.Id)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.StableIdentity] = p.DisplayName
	}
	for i := range standings {
		id := standings[i].StableIdentity
		if name, ok := names[id]; ok {
			standings[i].DisplayName = name
			continue
		}
		for round := room.CurrentRound; round >= 1; round-- {
			sub, err := e.rooms.Submission(ctx, room.Id, round, id)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				standings[i].DisplayName = sub.DisplayName
				break
			}
		}
	}
	return standings, nil
}

// ROUND_STANDING -> GAME_END
func (e *Engine) finish(ctx context.Context, room internal.Room) (Result, error) {
	results, err := e.finalResults(ctx, room)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Next:    internal.PhaseGameEnd,
		Round:   room.CurrentRound,
		Seconds: seconds(e.durations.GameEnd),
		Events:  []internal.Message[any]{{Type: internal.EventGameEnded, Data: results}},
	}, nil
}

func (e *Engine) finalResults(ctx context.Context, room internal.Room) (internal.FinalResults, error) {
	rankings, err := e.rankedStandings(ctx, room)
	if err != nil {
		return internal.FinalResults{}, err
	}
	if len(rankings) == 0 {
		return internal.FinalResults{}, internal.ErrEmptyStandings
	}
	players, err := e.rooms.ListPlayers(ctx, room.Id)
	if err != nil {
		return internal.FinalResults{}, err
	}

	// The highlight is the winner's best single drawing; earlier rounds win ties.
	var highlight *internal.RoundSubmission
	winner := rankings[0].StableIdentity
	for round := 1; round <= room.CurrentRound; round++ {
		sub, err := e.rooms.Submission(ctx, room.Id, round, winner)
		if err != nil {
			return internal.FinalResults{}, err
		}
		if sub != nil && (highlight == nil || sub.SimilarityScore > highlight.SimilarityScore) {
			highlight = sub
		}
	}

	if highlight != nil {
		pub := highlight.Public()
		highlight = &pub
	}
	return internal.FinalResults{
		FinalRankings: internal.PublicStandings(rankings),
		Highlight:     highlight,
		RoundsPlayed:  room.CurrentRound,
		TotalPlayers:  len(players),
	}, nil
}

// GAME_END -> WAITING
func (e *Engine) reset(ctx context.Context, room internal.Room) (Result, error) {
	ids, err := e.content.SampleIDs(ctx, room.Settings.TotalRounds)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Next:  internal.PhaseWaiting,
		Round: 0,
		apply: func(ctx context.Context) error {
			if err := e.rooms.ResetGameData(ctx, room.Id); err != nil {
				return err
			}
			return e.rooms.SetPromptSequence(ctx, room.Id, ids)
		},
	}, nil
}

// Reset computes a return to WAITING from whatever phase the room is in.
// It is how a room left behind by an aborted transition is recovered.
func (e *Engine) Reset(ctx context.Context, room internal.Room) (Result, error) {
	res, err := e.reset(ctx, room)
	if err != nil {
		return Result{}, fmt.Errorf("room %s: reset from %s: %w", room.Id, room.Phase, err)
	}
	res.From = room.Phase
	e.log.Info().Str("room", room.Id).Str("from", string(res.From)).Msg("reset computed")
	return res, nil
}

// ShufflePrompts stores a fresh prompt sequence of length rounds.
func (e *Engine) ShufflePrompts(ctx context.Context, roomID string, rounds int) error {
	ids, err := e.content.SampleIDs(ctx, rounds)
	if err != nil {
		return err
	}
	return e.rooms.SetPromptSequence(ctx, roomID, ids)
}

// Payload is the phase-specific view a (re)joining client needs to catch up.
// Like every event the engine builds, it carries public ids only.
type Payload struct {
	Prompt       *internal.Prompt
	Replay       *internal.RoundReplayData
	Standings    *internal.StandingsData
	FinalResults *internal.FinalResults
	Leaderboard  []internal.Standing
}

// Payload rebuilds what the room's current phase has shown so far.
func (e *Engine) Payload(ctx context.Context, room internal.Room) (Payload, error) {
	var out Payload
	switch room.Phase {
	case internal.PhasePrompt, internal.PhaseDrawing:
		prompt, err := e.content.PromptForRound(ctx, room.Id, room.CurrentRound)
		if err != nil {
			return out, err
		}
		out.Prompt = &prompt
		if room.Phase == internal.PhaseDrawing {
			lb, err := e.rooms.Leaderboard(ctx, room.Id)
			if err != nil {
				return out, err
			}
			out.Leaderboard = internal.PublicStandings(lb)
		}
	case internal.PhaseRoundReplay:
		data, err := e.replayData(ctx, room)
		if err != nil {
			return out, err
		}
		out.Replay = &data
		out.Prompt = &data.Prompt
	case internal.PhaseRoundStanding:
		data, err := e.standingsData(ctx, room)
		if err != nil {
			return out, err
		}
		out.Standings = &data
	case internal.PhaseGameEnd:
		results, err := e.finalResults(ctx, room)
		if err != nil {
			return out, err
		}
		out.FinalResults = &results
	}
	return out, nil
}
