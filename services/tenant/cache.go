package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fitcoach-controlplane/pkg/rediskey"
	"fitcoach-controlplane/services/renderer"

	"github.com/redis/go-redis/v9"
)

const brandingTTL = 15 * time.Minute

// BrandingCache holds resolved tenant branding.
type BrandingCache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, tenantID string) (renderer.Branding, bool, error)
	Set(ctx context.Context, tenantID string, b renderer.Branding) error
	Delete(ctx context.Context, tenantID string) error
}

type RedisBrandingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisBrandingCache(rdb *redis.Client) BrandingCache {
	return &RedisBrandingCache{rdb: rdb, ttl: brandingTTL}
}

func (c *RedisBrandingCache) Get(ctx context.Context, tenantID string) (renderer.Branding, bool, error) {
	raw, err := c.rdb.Get(ctx, rediskey.BuildTenantIDKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return renderer.Branding{}, false, nil
	}
	if err != nil {
		return renderer.Branding{}, false, err
	}

	var b renderer.Branding
	if err := json.Unmarshal(raw, &b); err != nil {
		return renderer.Branding{}, false, nil
	}
	return b, true, nil
}

func (c *RedisBrandingCache) Set(ctx context.Context, tenantID string, b renderer.Branding) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, rediskey.BuildTenantIDKey(tenantID), raw, c.ttl).Err()
}

func (c *RedisBrandingCache) Delete(ctx context.Context, tenantID string) error {
	return c.rdb.Del(ctx, rediskey.BuildTenantIDKey(tenantID)).Err()
}
