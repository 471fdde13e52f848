package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scythe504/sketchrooms-backend/internal"
)

const (
	countdownSecondsField = "seconds"
	countdownPhaseField   = "phase"
)

// StartCountdown creates or overwrites the room's countdown entry. The entry
// remembers the phase it was started for so its end can be matched against
// the room's phase at that time.
func (s *Store) StartCountdown(ctx context.Context, roomID string, seconds int, phase internal.GamePhase) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, CountdownKey(roomID))
		pipe.HSet(ctx, CountdownKey(roomID), countdownSecondsField, seconds, countdownPhaseField, string(phase))
		pipe.Expire(ctx, CountdownKey(roomID), s.ttl)
		pipe.SAdd(ctx, CountdownIndexKey, roomID)
		return nil
	})
	return err
}

// CancelCountdown removes the entry. Cancelling twice is a no-op.
func (s *Store) CancelCountdown(ctx context.Context, roomID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, CountdownKey(roomID))
		pipe.SRem(ctx, CountdownIndexKey, roomID)
		return nil
	})
	return err
}

// TickCountdown decrements by one and returns the post-decrement value with
// the phase the countdown was started for. See tickCountdownScript for the
// negative sentinels.
func (s *Store) TickCountdown(ctx context.Context, roomID string) (int, internal.GamePhase, error) {
	res, err := s.eval(ctx, tickCountdownScript,
		[]string{CountdownKey(roomID), CountdownIndexKey}, roomID).Slice()
	if err != nil {
		return 0, "", err
	}
	if len(res) != 2 {
		return 0, "", fmt.Errorf("tick countdown: unexpected reply %v", res)
	}
	n, ok := res[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("tick countdown: unexpected value %v", res[0])
	}
	phase, _ := res[1].(string)
	return int(n), internal.GamePhase(phase), nil
}

func (s *Store) CountdownRooms(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, CountdownIndexKey).Result()
}

// SecondsLeft reports the remaining seconds and whether a countdown is running.
func (s *Store) SecondsLeft(ctx context.Context, roomID string) (int, bool, error) {
	v, err := s.rdb.HGet(ctx, CountdownKey(roomID), countdownSecondsField).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// MarkStuck records that the room's transition out of phase was aborted.
func (s *Store) MarkStuck(ctx context.Context, roomID string, phase internal.GamePhase) error {
	return s.rdb.Set(ctx, StuckKey(roomID), string(phase), s.ttl).Err()
}

// StuckPhase returns the phase a room was halted in, if any.
func (s *Store) StuckPhase(ctx context.Context, roomID string) (internal.GamePhase, bool, error) {
	v, err := s.rdb.Get(ctx, StuckKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return internal.GamePhase(v), true, nil
}

func (s *Store) ClearStuck(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, StuckKey(roomID)).Err()
}

// AcquireLease takes or refreshes the scheduler leadership lease for owner.
func (s *Store) AcquireLease(ctx context.Context, owner string, lease time.Duration) (bool, error) {
	n, err := s.eval(ctx, acquireLeaseScript, []string{LeaderKey}, owner, lease.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
