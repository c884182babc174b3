package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "mailbox:session:"

// KV is the subset of the redis service used by RedisStore.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}

// RedisStore shares sessions between server instances. Every Save renews
// the idle timeout.
type RedisStore struct {
	kv     KV
	prefix string
	idle   time.Duration
}

func NewRedisStore(kv KV, idle time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{kv: kv, prefix: prefix, idle: idle}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Context, error) {
	data, err := r.kv.GetBytes(ctx, r.key(id))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

func (r *RedisStore) Save(ctx context.Context, id string, c *Context) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.key(id), data, r.idle)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.kv.Del(ctx, r.key(id))
}
