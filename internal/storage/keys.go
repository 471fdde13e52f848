package storage

import "fmt"

// Every room-scoped key shares the "room:{id}:" prefix. The braces make the id
// a cluster hash tag so a room's keys live in one slot and can be touched by
// one script.

func roomPrefix(roomID string) string {
	return fmt.Sprintf("room:{%s}:", roomID)
}

func MetaKey(roomID string) string        { return roomPrefix(roomID) + "meta" }
func PlayersKey(roomID string) string     { return roomPrefix(roomID) + "players" }
func WaitlistKey(roomID string) string    { return roomPrefix(roomID) + "waitlist" }
func CountdownKey(roomID string) string   { return roomPrefix(roomID) + "countdown" }
func PromptsKey(roomID string) string     { return roomPrefix(roomID) + "prompts" }
func LeaderboardKey(roomID string) string { return roomPrefix(roomID) + "leaderboard" }
func StandingsKey(roomID string) string   { return roomPrefix(roomID) + "standings" }
func StuckKey(roomID string) string       { return roomPrefix(roomID) + "stuck" }

func SubmissionsKey(roomID string, round int) string {
	return fmt.Sprintf("%sround:%d:submissions", roomPrefix(roomID), round)
}

func GraceKey(roomID, identity string) string {
	return roomPrefix(roomID) + "grace:" + identity
}

// RoomPattern matches every key belonging to the room.
func RoomPattern(roomID string) string {
	return roomPrefix(roomID) + "*"
}

// SubmissionsPattern matches every per-round submission hash of the room.
func SubmissionsPattern(roomID string) string {
	return roomPrefix(roomID) + "round:*:submissions"
}

const (
	// CountdownIndexKey is the process-wide set of room ids with a running countdown.
	CountdownIndexKey = "countdowns"
	LeaderKey         = "scheduler:leader"
	EventsPattern     = "events:room:*"
	eventsPrefix      = "events:room:"
)

func EventsChannel(roomID string) string {
	return eventsPrefix + roomID
}

// RoomIDFromChannel extracts the room id from an events channel name.
func RoomIDFromChannel(channel string) (string, bool) {
	if len(channel) <= len(eventsPrefix) || channel[:len(eventsPrefix)] != eventsPrefix {
		return "", false
	}
	return channel[len(eventsPrefix):], true
}
