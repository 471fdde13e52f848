package internal

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Player is stored with its stable identity. Anything sent to other clients
// goes through ToPublicPlayer, which swaps the identity for its PublicID.
type Player struct {
	ConnectionId   string `json:"connection_id"`
	DisplayName    string `json:"display_name"`
	StableIdentity string `json:"stable_identity,omitempty"`
	PublicId       string `json:"public_id,omitempty"`
	IsHost         bool   `json:"is_host"`
	JoinedAt       string `json:"joined_at"`
}

// WaitlistEntry is a participant queued for admission. It carries no host flag;
// the flag is stamped at admission time.
type WaitlistEntry struct {
	ConnectionId   string `json:"connection_id"`
	DisplayName    string `json:"display_name"`
	StableIdentity string `json:"stable_identity"`
	JoinedAt       string `json:"joined_at"`
}

func (w WaitlistEntry) ToPlayer(isHost bool) *Player {
	return &Player{
		ConnectionId:   w.ConnectionId,
		DisplayName:    w.DisplayName,
		StableIdentity: w.StableIdentity,
		IsHost:         isHost,
		JoinedAt:       w.JoinedAt,
	}
}

var publicIDSpace = uuid.MustParse("6f1c7a52-3b0e-4d8e-9a57-2f64c1d0b3e9")

// PublicID is the name other clients know a stable identity by. It is a
// name-based UUID, so it is the same on every server and cannot be used to
// reclaim the identity's seat.
func PublicID(identity string) string {
	if identity == "" {
		return ""
	}
	return uuid.NewSHA1(publicIDSpace, []byte(identity)).String()
}

func (p *Player) Clone() *Player {
	c := *p
	return &c
}

// ToPublicPlayer is the copy of p that is safe to show other clients.
func (p *Player) ToPublicPlayer() *Player {
	if p == nil {
		return nil
	}
	return &Player{
		ConnectionId: p.ConnectionId,
		DisplayName:  p.DisplayName,
		PublicId:     PublicID(p.StableIdentity),
		IsHost:       p.IsHost,
		JoinedAt:     p.JoinedAt,
	}
}

func PublicPlayers(players []*Player) []*Player {
	out := make([]*Player, len(players))
	for i, p := range players {
		out[i] = p.ToPublicPlayer()
	}
	return out
}

func (p *Player) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodePlayer(raw string) (*Player, error) {
	var p Player
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (w WaitlistEntry) Encode() (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeWaitlistEntry(raw string) (WaitlistEntry, error) {
	var w WaitlistEntry
	err := json.Unmarshal([]byte(raw), &w)
	return w, err
}

// CleanDisplayName trims the name and enforces the length limit.
func CleanDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}
