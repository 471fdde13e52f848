package internal

import "errors"

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindFatal         ErrorKind = "fatal"
	KindInternal      ErrorKind = "internal"
)

var (
	ErrInvalidSettings  = errors.New("invalid room settings")
	ErrInvalidName      = errors.New("display name is required")
	ErrNameTooLong      = errors.New("display name too long")
	ErrInvalidScore     = errors.New("score out of range")
	ErrTooManyPoints    = errors.New("too many stroke points")
	ErrRoomFull         = errors.New("room full")
	ErrAlreadyJoined    = errors.New("identity already present in room")
	ErrNotEnoughPlayers = errors.New("not enough players to start")

	ErrNotHost    = errors.New("only the host can do that")
	ErrWrongPhase = errors.New("action not allowed in current phase")
	ErrKickSelf   = errors.New("host cannot kick themselves")

	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found")

	ErrPromptNotFound = errors.New("prompt not found")
	ErrEmptyStandings = errors.New("standings are empty")
)

var errorCodes = []struct {
	err  error
	code string
	kind ErrorKind
}{
	{ErrInvalidSettings, "invalid_settings", KindValidation},
	{ErrInvalidName, "invalid_name", KindValidation},
	{ErrNameTooLong, "name_too_long", KindValidation},
	{ErrInvalidScore, "invalid_score", KindValidation},
	{ErrTooManyPoints, "too_many_points", KindValidation},
	{ErrRoomFull, "room_full", KindValidation},
	{ErrAlreadyJoined, "already_joined", KindValidation},
	{ErrNotEnoughPlayers, "not_enough_players", KindValidation},
	{ErrNotHost, "not_host", KindAuthorization},
	{ErrWrongPhase, "wrong_phase", KindAuthorization},
	{ErrKickSelf, "kick_self", KindAuthorization},
	{ErrRoomNotFound, "room_not_found", KindNotFound},
	{ErrPlayerNotFound, "player_not_found", KindNotFound},
	{ErrPromptNotFound, "prompt_not_found", KindFatal},
	{ErrEmptyStandings, "empty_standings", KindFatal},
}

// ReasonCode maps err onto the stable code sent to clients.
func ReasonCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}

func KindOf(err error) ErrorKind {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindInternal
}
