package internal

type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

// Outbound event names.
const (
	EventSnapshot            = "snapshot"
	EventWaitlisted          = "waitlisted"
	EventPlayerJoined        = "player_joined"
	EventPlayerLeft          = "player_left"
	EventPromptRevealed      = "prompt_revealed"
	EventCountdownTick       = "countdown_tick"
	EventRoundReplayReady    = "round_replay_ready"
	EventStandingsReady      = "standings_ready"
	EventGameEnded           = "game_ended"
	EventRoomMetadataChanged = "room_metadata_changed"
	EventPlayerKicked        = "player_kicked"
	EventLeaderboardUpdated  = "leaderboard_updated"
	EventError               = "error"
)

// Inbound message names.
const (
	MsgStartGame         = "start_game"
	MsgRestartGame       = "restart_game"
	MsgKickPlayer        = "kick_player"
	MsgUpdateSettings    = "update_settings"
	MsgSubmitRoundResult = "submit_round_result"
	MsgSubmitLiveScore   = "submit_live_score"
	MsgLeave             = "leave"
)

type TimerUpdateData struct {
	RoomId      string    `json:"room_id"`
	SecondsLeft int       `json:"seconds_left"`
	Phase       GamePhase `json:"phase"`
}

type RoomMetadataData struct {
	Room         Room      `json:"room"`
	Players      []*Player `json:"players"`
	WaitlistSize int       `json:"waitlist_size"`
}

type PlayerJoinedData struct {
	Player      *Player `json:"player"`
	PlayerCount int     `json:"player_count"`
	CanStart    bool    `json:"can_start"`
}

type PlayerLeftData struct {
	Player      *Player `json:"player"`
	PlayerCount int     `json:"player_count"`
	NewHost     *Player `json:"new_host,omitempty"`
}

type PlayerKickedData struct {
	RoomId       string `json:"room_id"`
	ConnectionId string `json:"connection_id"`
	DisplayName  string `json:"display_name"`
}

type WaitlistedData struct {
	RoomId   string `json:"room_id"`
	Position int    `json:"position"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type KickPlayerData struct {
	ConnectionId string `json:"connection_id"`
}

type SubmitRoundResultData struct {
	Strokes         []Stroke `json:"strokes"`
	SimilarityScore float64  `json:"similarity_score"`
}

type SubmitLiveScoreData struct {
	Score float64 `json:"score"`
}
