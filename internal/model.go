package internal

import (
	"time"
)

const (
	PromptRevealDuration  = 3 * time.Second
	RoundReplayDuration   = 8 * time.Second
	RoundStandingDuration = 5 * time.Second
	GameEndDuration       = 10 * time.Second
	DrawingSettleDelay    = 750 * time.Millisecond
	GracePeriodDuration   = 2 * time.Second
	MinPlayersToStart     = 2
	MaxDisplayNameLength  = 24
	MaxStrokePoints       = 2000
)

// Settings bounds. TotalRounds is further limited by the size of the prompt pool.
const (
	MinMaxPlayers   = 2
	MaxMaxPlayers   = 10
	MinTotalRounds  = 1
	MaxTotalRounds  = 10
	MinDrawingTime  = 5
	MaxDrawingTime  = 120
	DefaultDrawTime = 30
)

type GamePhase string

const (
	PhaseWaiting       GamePhase = "WAITING"
	PhasePrompt        GamePhase = "PROMPT"
	PhaseDrawing       GamePhase = "DRAWING"
	PhaseRoundReplay   GamePhase = "ROUND_REPLAY"
	PhaseRoundStanding GamePhase = "ROUND_STANDING"
	PhaseGameEnd       GamePhase = "GAME_END"
)

// Valid reports whether p is one of the known phases.
func (p GamePhase) Valid() bool {
	switch p {
	case PhaseWaiting, PhasePrompt, PhaseDrawing, PhaseRoundReplay, PhaseRoundStanding, PhaseGameEnd:
		return true
	}
	return false
}

// AdmissionOpen reports whether waitlisted participants may be promoted while
// the room is in phase p. Headcount is frozen while a round is being played.
func (p GamePhase) AdmissionOpen() bool {
	return p != PhasePrompt && p != PhaseDrawing
}

type Settings struct {
	DrawingTimeSeconds int `json:"drawing_time_seconds"`
	TotalRounds        int `json:"total_rounds"`
	MaxPlayers         int `json:"max_players"`
}

type Room struct {
	Id           string    `json:"room_id"`
	Phase        GamePhase `json:"phase"`
	CurrentRound int       `json:"current_round"`
	Settings     Settings  `json:"settings"`
	CreatedAt    time.Time `json:"created_at"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
}

type Prompt struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Difficulty string  `json:"difficulty"`
	Outline    []Point `json:"outline"`
}

type CountdownEntry struct {
	RoomId      string `json:"room_id"`
	SecondsLeft int    `json:"seconds_left"`
}

type GracePeriodRecord struct {
	RoomId                string `json:"room_id"`
	StableIdentity        string `json:"stable_identity"`
	PriorConnectionId     string `json:"prior_connection_id"`
	DisconnectedAtEpochMs int64  `json:"disconnected_at_ms"`
}

type RoundSubmission struct {
	StableIdentity  string    `json:"stable_identity,omitempty"`
	PublicId        string    `json:"public_id,omitempty"`
	DisplayName     string    `json:"display_name"`
	Round           int       `json:"round"`
	Strokes         []Stroke  `json:"strokes"`
	SimilarityScore float64   `json:"similarity_score"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

type Standing struct {
	StableIdentity string  `json:"stable_identity,omitempty"`
	PublicId       string  `json:"public_id,omitempty"`
	DisplayName    string  `json:"display_name,omitempty"`
	Score          float64 `json:"score"`
	Position       int     `json:"position"`
}

// Public strips the stable identity in favour of its PublicID.
func (s RoundSubmission) Public() RoundSubmission {
	s.PublicId = PublicID(s.StableIdentity)
	s.StableIdentity = ""
	return s
}

func PublicSubmissions(subs []RoundSubmission) []RoundSubmission {
	out := make([]RoundSubmission, len(subs))
	for i, s := range subs {
		out[i] = s.Public()
	}
	return out
}

func (s Standing) Public() Standing {
	s.PublicId = PublicID(s.StableIdentity)
	s.StableIdentity = ""
	return s
}

func PublicStandings(standings []Standing) []Standing {
	if standings == nil {
		return nil
	}
	out := make([]Standing, len(standings))
	for i, s := range standings {
		out[i] = s.Public()
	}
	return out
}

type RoundReplayData struct {
	Round       int               `json:"round"`
	Prompt      Prompt            `json:"prompt"`
	Submissions []RoundSubmission `json:"submissions"`
}

type StandingsData struct {
	Round       int        `json:"round"`
	TotalRounds int        `json:"total_rounds"`
	Standings   []Standing `json:"standings"`
}

type FinalResults struct {
	FinalRankings []Standing       `json:"final_rankings"`
	Highlight     *RoundSubmission `json:"highlight,omitempty"`
	RoundsPlayed  int              `json:"rounds_played"`
	TotalPlayers  int              `json:"total_players"`
}

type PromptRevealData struct {
	Round       int    `json:"round"`
	TotalRounds int    `json:"total_rounds"`
	Prompt      Prompt `json:"prompt"`
}

// GameStateData is the full view handed to a client that (re)joins mid-game.
type GameStateData struct {
	Room          Room             `json:"room"`
	Players       []*Player        `json:"players"`
	WaitlistSize  int              `json:"waitlist_size"`
	TimeRemaining int              `json:"time_remaining"`
	Prompt        *Prompt          `json:"prompt,omitempty"`
	Replay        *RoundReplayData `json:"replay,omitempty"`
	Standings     *StandingsData   `json:"standings,omitempty"`
	FinalResults  *FinalResults    `json:"final_results,omitempty"`
	Leaderboard   []Standing       `json:"leaderboard,omitempty"`
	OwnSubmission *RoundSubmission `json:"own_submission,omitempty"`
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}
