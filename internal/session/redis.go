package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "voicerelay:session:"

// RedisStore keeps each session as a Redis list of JSON messages. The TTL is
// refreshed on every append; MaxSessions is not enforced here since Redis
// eviction policy owns memory pressure.
type RedisStore struct {
	client    *redis.Client
	retention Retention
	prefix    string
}

func NewRedisStore(client *redis.Client, r Retention) *RedisStore {
	return &RedisStore{client: client, retention: r, prefix: defaultPrefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	raw, err := s.client.LRange(ctx, s.key(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session get %s: %w", id, err)
	}
	return decode(raw)
}

func (s *RedisStore) Append(ctx context.Context, id string, msgs ...Message) ([]Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, data)
	}

	key := s.key(id)
	pipe := s.client.TxPipeline()
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
	}
	if max := s.retention.MaxMessages; max > 0 {
		pipe.LTrim(ctx, key, int64(-max), -1)
	}
	if s.retention.TTL > 0 {
		pipe.Expire(ctx, key, s.retention.TTL)
	}
	lr := pipe.LRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("session append %s: %w", id, err)
	}
	return decode(lr.Val())
}

func (s *RedisStore) Evict(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session evict %s: %w", id, err)
	}
	return nil
}

func decode(raw []string) ([]Message, error) {
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
