package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publish fans a serialized event out to every process serving the room.
func (s *Store) Publish(ctx context.Context, roomID string, payload []byte) error {
	return s.rdb.Publish(ctx, EventsChannel(roomID), payload).Err()
}

// SubscribeEvents subscribes to the events of every room.
func (s *Store) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.rdb.PSubscribe(ctx, EventsPattern)
}
