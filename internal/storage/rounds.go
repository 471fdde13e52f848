package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/scythe504/sketchrooms-backend/internal"
)

type SubmitOutcome int

const (
	SubmitRejected  SubmitOutcome = -1
	SubmitDuplicate SubmitOutcome = 0
	SubmitStored    SubmitOutcome = 1
)

// SubmitRound stores the submission if the room is drawing that round and no
// submission exists yet for the identity.
func (s *Store) SubmitRound(ctx context.Context, roomID string, sub internal.RoundSubmission) (SubmitOutcome, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return SubmitRejected, err
	}
	n, err := s.eval(ctx, submitRoundScript,
		[]string{MetaKey(roomID), SubmissionsKey(roomID, sub.Round), StandingsKey(roomID)},
		sub.Round, sub.StableIdentity, string(payload), sub.SimilarityScore, s.ttlSeconds()).Int()
	if err != nil {
		return SubmitRejected, err
	}
	return SubmitOutcome(n), nil
}

// Submissions returns the round's submissions ordered by similarity, best first.
func (s *Store) Submissions(ctx context.Context, roomID string, round int) ([]internal.RoundSubmission, error) {
	fields, err := s.rdb.HGetAll(ctx, SubmissionsKey(roomID, round)).Result()
	if err != nil {
		return nil, err
	}
	subs := make([]internal.RoundSubmission, 0, len(fields))
	for identity, raw := range fields {
		var sub internal.RoundSubmission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("room %s round %d: decode submission of %s: %w", roomID, round, identity, err)
		}
		subs = append(subs, sub)
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].SimilarityScore != subs[j].SimilarityScore {
			return subs[i].SimilarityScore > subs[j].SimilarityScore
		}
		return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
	})
	return subs, nil
}

func (s *Store) Submission(ctx context.Context, roomID string, round int, identity string) (*internal.RoundSubmission, error) {
	raw, err := s.rdb.HGet(ctx, SubmissionsKey(roomID, round), identity).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sub internal.RoundSubmission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Standings returns cumulative scores, highest first.
func (s *Store) Standings(ctx context.Context, roomID string) ([]internal.Standing, error) {
	return s.ranked(ctx, StandingsKey(roomID))
}

func (s *Store) Leaderboard(ctx context.Context, roomID string) ([]internal.Standing, error) {
	return s.ranked(ctx, LeaderboardKey(roomID))
}

func (s *Store) ranked(ctx context.Context, key string) ([]internal.Standing, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]internal.Standing, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, internal.Standing{StableIdentity: member, Score: z.Score, Position: i + 1})
	}
	return out, nil
}

// SetLiveScore records the latest live score; last write wins.
func (s *Store) SetLiveScore(ctx context.Context, roomID, identity string, score float64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, LeaderboardKey(roomID), redis.Z{Score: score, Member: identity})
		pipe.Expire(ctx, LeaderboardKey(roomID), s.ttl)
		return nil
	})
	return err
}

func (s *Store) ClearLeaderboard(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, LeaderboardKey(roomID)).Err()
}

// =============================================================================
// PROMPT SEQUENCE
// =============================================================================

func (s *Store) SetPromptSequence(ctx context.Context, roomID string, ids []string) error {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, PromptsKey(roomID))
		if len(values) > 0 {
			pipe.RPush(ctx, PromptsKey(roomID), values...)
			pipe.Expire(ctx, PromptsKey(roomID), s.ttl)
		}
		return nil
	})
	return err
}

// PromptID returns the prompt id scheduled for a 1-based round.
func (s *Store) PromptID(ctx context.Context, roomID string, round int) (string, bool, error) {
	if round < 1 {
		return "", false, nil
	}
	id, err := s.rdb.LIndex(ctx, PromptsKey(roomID), int64(round-1)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// =============================================================================
// TEARDOWN
// =============================================================================

// ResetGameData drops submissions, leaderboard and standings, keeping the
// room, its players and its settings.
func (s *Store) ResetGameData(ctx context.Context, roomID string) error {
	keys, err := s.scan(ctx, SubmissionsPattern(roomID))
	if err != nil {
		return err
	}
	keys = append(keys, LeaderboardKey(roomID), StandingsKey(roomID))
	return s.rdb.Del(ctx, keys...).Err()
}

// DeleteRoom removes every key under the room prefix and its countdown index entry.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) (int, error) {
	keys, err := s.scan(ctx, RoomPattern(roomID))
	if err != nil {
		return 0, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		const batch = 256
		for start := 0; start < len(keys); start += batch {
			end := min(start+batch, len(keys))
			pipe.Unlink(ctx, keys[start:end]...)
		}
		pipe.SRem(ctx, CountdownIndexKey, roomID)
		return nil
	})
	return len(keys), err
}

func (s *Store) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
