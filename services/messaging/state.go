package messaging

import (
	"context"
	"errors"
	"time"

	"fitcoach-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StateStore keeps the last known connection state per session.
type StateStore interface {
	// Get returns "" when nothing is stored.
	Get(ctx context.Context, session string) (ConnectionState, error)
	Set(ctx context.Context, session string, state ConnectionState, ttl time.Duration) error
}

type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func (s *RedisStateStore) Get(ctx context.Context, session string) (ConnectionState, error) {
	v, err := s.rdb.Get(ctx, rediskey.BuildMessagingStateKey(session)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ConnectionState(v), nil
}

func (s *RedisStateStore) Set(ctx context.Context, session string, state ConnectionState, ttl time.Duration) error {
	return s.rdb.Set(ctx, rediskey.BuildMessagingStateKey(session), string(state), ttl).Err()
}

// StateCache reads the connection state through the store and falls back to
// asking the gateway. Concurrent misses share one gateway call.
type StateCache struct {
	store   StateStore
	gateway Gateway
	session string
	ttl     time.Duration
	group   singleflight.Group
}

func NewStateCache(store StateStore, gateway Gateway, session string, ttl time.Duration) *StateCache {
	return &StateCache{store: store, gateway: gateway, session: session, ttl: ttl}
}

func (c *StateCache) Current(ctx context.Context) (ConnectionState, error) {
	state, err := c.store.Get(ctx, c.session)
	if err != nil {
		zap.L().Warn("messaging state cache unavailable", zap.Error(err))
	}
	if state != "" {
		return state, nil
	}

	v, err, _ := c.group.Do(c.session, func() (interface{}, error) {
		state, err := c.gateway.Status(ctx)
		if err != nil {
			return StateUnknown, err
		}
		if err := c.store.Set(ctx, c.session, state, c.ttl); err != nil {
			zap.L().Warn("failed to cache messaging state", zap.Error(err))
		}
		return state, nil
	})
	if err != nil {
		return StateUnknown, err
	}
	return v.(ConnectionState), nil
}

func (c *StateCache) Update(ctx context.Context, state ConnectionState) error {
	return c.store.Set(ctx, c.session, state, c.ttl)
}
