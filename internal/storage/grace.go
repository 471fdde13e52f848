package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scythe504/sketchrooms-backend/internal"
)

func DecodeGraceRecord(raw string) (*internal.GracePeriodRecord, error) {
	var rec internal.GracePeriodRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutGraceRecord writes (or replaces) the single record for the identity.
func (s *Store) PutGraceRecord(ctx context.Context, rec internal.GracePeriodRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, GraceKey(rec.RoomId, rec.StableIdentity), raw, ttl).Err()
}

func (s *Store) GraceRecord(ctx context.Context, roomID, identity string) (*internal.GracePeriodRecord, error) {
	raw, err := s.rdb.Get(ctx, GraceKey(roomID, identity)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeGraceRecord(raw)
}

func (s *Store) DeleteGraceRecord(ctx context.Context, roomID, identity string) error {
	return s.rdb.Del(ctx, GraceKey(roomID, identity)).Err()
}
