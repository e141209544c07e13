package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists snapshots as JSON values with a TTL equal to the
// staleness window. The TTL lets Redis reclaim abandoned records on its own;
// the staleness check on Load is still applied from LastPersistedAt so a
// record that outlived its window through TTL drift is never resumed.
type RedisStore struct {
	rdb *redis.Client
	clk clock.Clock
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(rdb *redis.Client, clk clock.Clock) *RedisStore {
	return &RedisStore{rdb: rdb, clk: clk}
}

func (s *RedisStore) Save(ctx context.Context, key string, sess *model.AttemptSession) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, key, b, model.StalenessWindow).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*model.AttemptSession, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var sess model.AttemptSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		// A corrupt record is unrecoverable; drop it and report absent so a
		// fresh attempt starts.
		_ = s.rdb.Del(ctx, key).Err()
		return nil, nil
	}

	if sess.Stale(s.clk.Now()) {
		_ = s.rdb.Del(ctx, key).Err()
		return nil, nil
	}

	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
