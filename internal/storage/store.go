package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scythe504/sketchrooms-backend/internal"
)

// Store is the thin client over the shared Redis instance. It knows the key
// layout and owns the server-side scripts; it has no game rules of its own.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func New(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Redis() redis.UniversalClient {
	return s.rdb
}

// TTL is the coarse leak-prevention expiry refreshed on every write.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) ttlSeconds() int64 {
	secs := int64(s.ttl / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Eval runs one of the registered scripts and maps its error replies.
func (s *Store) eval(ctx context.Context, script *redis.Script, keys []string, args ...any) *redis.Cmd {
	cmd := script.Run(ctx, s.rdb, keys, args...)
	if err := scriptError(cmd.Err()); err != cmd.Err() {
		cmd.SetErr(err)
	}
	return cmd
}

func scriptError(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, replyRoomNotFound):
		return internal.ErrRoomNotFound
	case strings.Contains(msg, replyAlreadyJoined):
		return internal.ErrAlreadyJoined
	case strings.Contains(msg, replyRoomFull):
		return internal.ErrRoomFull
	case strings.Contains(msg, replyWrongPhase):
		return internal.ErrWrongPhase
	case strings.Contains(msg, replyBadSettings):
		return fmt.Errorf("%w: max players below current headcount", internal.ErrInvalidSettings)
	}
	return err
}

// =============================================================================
// ROOM METADATA
// =============================================================================

// CreateRoom writes the metadata hash unless the id is already taken.
func (s *Store) CreateRoom(ctx context.Context, room internal.Room) (bool, error) {
	n, err := s.eval(ctx, createRoomScript, []string{MetaKey(room.Id)},
		s.ttlSeconds(),
		string(room.Phase),
		room.CurrentRound,
		room.Settings.DrawingTimeSeconds,
		room.Settings.TotalRounds,
		room.Settings.MaxPlayers,
		room.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) LoadRoom(ctx context.Context, roomID string) (*internal.Room, error) {
	fields, err := s.rdb.HGetAll(ctx, MetaKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRoom(roomID, fields)
}

func decodeRoom(roomID string, fields map[string]string) (*internal.Room, error) {
	atoi := func(name string) (int, error) {
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			return 0, fmt.Errorf("room %s: field %s: %w", roomID, name, err)
		}
		return v, nil
	}

	room := &internal.Room{Id: roomID, Phase: internal.GamePhase(fields["phase"])}
	if !room.Phase.Valid() {
		return nil, fmt.Errorf("room %s: unknown phase %q", roomID, fields["phase"])
	}
	var err error
	if room.CurrentRound, err = atoi("current_round"); err != nil {
		return nil, err
	}
	if room.Settings.DrawingTimeSeconds, err = atoi("drawing_time"); err != nil {
		return nil, err
	}
	if room.Settings.TotalRounds, err = atoi("total_rounds"); err != nil {
		return nil, err
	}
	if room.Settings.MaxPlayers, err = atoi("max_players"); err != nil {
		return nil, err
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		room.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return room, nil
}

// CompareAndSetPhase moves the room from expected to next, stamping round.
func (s *Store) CompareAndSetPhase(ctx context.Context, roomID string, expected, next internal.GamePhase, round int) (bool, error) {
	n, err := s.eval(ctx, compareAndSetPhaseScript, []string{MetaKey(roomID)},
		string(expected), string(next), round, s.ttlSeconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) SaveSettings(ctx context.Context, roomID string, settings internal.Settings) error {
	return s.eval(ctx, saveSettingsScript, []string{MetaKey(roomID), PlayersKey(roomID)},
		settings.DrawingTimeSeconds, settings.TotalRounds, settings.MaxPlayers, s.ttlSeconds()).Err()
}

// =============================================================================
// PLAYERS & WAITLIST
// =============================================================================

// Enqueue appends to the waitlist and returns the 1-based position.
func (s *Store) Enqueue(ctx context.Context, roomID string, entry internal.WaitlistEntry) (int, error) {
	raw, err := entry.Encode()
	if err != nil {
		return 0, err
	}
	return s.eval(ctx, enqueueScript,
		[]string{MetaKey(roomID), PlayersKey(roomID), WaitlistKey(roomID)},
		entry.StableIdentity, raw, s.ttlSeconds()).Int()
}

// Admit promotes at most one waitlisted participant. A nil player means
// nobody could be admitted.
func (s *Store) Admit(ctx context.Context, roomID string) (*internal.Player, error) {
	raw, err := s.eval(ctx, admitScript,
		[]string{MetaKey(roomID), PlayersKey(roomID), WaitlistKey(roomID)},
		s.ttlSeconds()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return internal.DecodePlayer(raw)
}

func (s *Store) RemoveWaitlisted(ctx context.Context, roomID, connectionID string) (*internal.WaitlistEntry, error) {
	raw, err := s.eval(ctx, removeWaitlistedScript, []string{WaitlistKey(roomID)}, connectionID).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry, err := internal.DecodeWaitlistEntry(raw)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) Players(ctx context.Context, roomID string) ([]*internal.Player, error) {
	raws, err := s.rdb.LRange(ctx, PlayersKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	players := make([]*internal.Player, 0, len(raws))
	for _, raw := range raws {
		p, err := internal.DecodePlayer(raw)
		if err != nil {
			return nil, fmt.Errorf("room %s: decode player: %w", roomID, err)
		}
		players = append(players, p)
	}
	return players, nil
}

func (s *Store) Waitlist(ctx context.Context, roomID string) ([]internal.WaitlistEntry, error) {
	raws, err := s.rdb.LRange(ctx, WaitlistKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]internal.WaitlistEntry, 0, len(raws))
	for _, raw := range raws {
		e, err := internal.DecodeWaitlistEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("room %s: decode waitlist entry: %w", roomID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) WaitlistSize(ctx context.Context, roomID string) (int, error) {
	n, err := s.rdb.LLen(ctx, WaitlistKey(roomID)).Result()
	return int(n), err
}

func (s *Store) AppendPlayer(ctx context.Context, roomID string, player *internal.Player) error {
	raw, err := player.Encode()
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, PlayersKey(roomID), raw)
		pipe.Expire(ctx, PlayersKey(roomID), s.ttl)
		return nil
	})
	return err
}

// ErrConflict is returned when an optimistic transaction lost its race too
// many times in a row.
var ErrConflict = errors.New("storage: concurrent modification")

const maxTxRetries = 8

// PlayersUpdate is the outcome of an UpdatePlayers callback. Players is
// written back only when Write is set; Also queues extra commands into the
// same MULTI block.
type PlayersUpdate struct {
	Players []*internal.Player
	Write   bool
	Also    func(pipe redis.Pipeliner)
}

// UpdatePlayers applies fn to the ordered player list inside a WATCH/MULTI
// transaction and retries when a watched key changes underneath it. Extra
// watched keys can be read by fn through the passed transaction.
func (s *Store) UpdatePlayers(ctx context.Context, roomID string, fn func(tx *redis.Tx, players []*internal.Player) (PlayersUpdate, error), watch ...string) error {
	key := PlayersKey(roomID)
	keys := append([]string{key}, watch...)

	txf := func(tx *redis.Tx) error {
		raws, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		players := make([]*internal.Player, 0, len(raws))
		for _, raw := range raws {
			p, err := internal.DecodePlayer(raw)
			if err != nil {
				return err
			}
			players = append(players, p)
		}

		update, err := fn(tx, players)
		if err != nil {
			return err
		}
		if !update.Write && update.Also == nil {
			return nil
		}

		encoded := make([]any, 0, len(update.Players))
		for _, p := range update.Players {
			raw, err := p.Encode()
			if err != nil {
				return err
			}
			encoded = append(encoded, raw)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if update.Write {
				pipe.Del(ctx, key)
				if len(encoded) > 0 {
					pipe.RPush(ctx, key, encoded...)
					pipe.Expire(ctx, key, s.ttl)
				}
			}
			if update.Also != nil {
				update.Also(pipe)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// ReplacePlayerAt overwrites the player stored at index.
func (s *Store) ReplacePlayerAt(ctx context.Context, roomID string, index int, player *internal.Player) error {
	raw, err := player.Encode()
	if err != nil {
		return err
	}
	return s.rdb.LSet(ctx, PlayersKey(roomID), int64(index), raw).Err()
}

// Reconnect consumes the identity's grace record and rewrites the player's
// connection id. It returns nil when there was no record to consume.
func (s *Store) Reconnect(ctx context.Context, roomID, identity, connectionID string) (*internal.Player, *internal.GracePeriodRecord, error) {
	vals, err := s.eval(ctx, reconnectScript,
		[]string{PlayersKey(roomID), GraceKey(roomID, identity)},
		identity, connectionID, s.ttlSeconds()).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if len(vals) != 2 {
		return nil, nil, fmt.Errorf("reconnect: unexpected reply length %d", len(vals))
	}
	player, err := internal.DecodePlayer(vals[0])
	if err != nil {
		return nil, nil, err
	}
	rec, err := DecodeGraceRecord(vals[1])
	if err != nil {
		return nil, nil, err
	}
	return player, rec, nil
}
