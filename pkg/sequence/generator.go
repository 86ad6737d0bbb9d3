package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"fitcoach-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

type Generator interface {
	NextTenantCode(ctx context.Context) (string, error)
	NextClientCode(ctx context.Context, tenantID string) (string, error)
	NextArtifactCode(ctx context.Context, tenantID string) (string, error)
}

// Counter is the subset of redis used for sequences.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type RedisGenerator struct {
	rdb Counter
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return NewGenerator(p.Redis)
}

func NewGenerator(rdb Counter) *RedisGenerator {
	return &RedisGenerator{rdb: rdb, now: time.Now}
}

func (g *RedisGenerator) NextTenantCode(ctx context.Context) (string, error) {
	key := rediskey.NamespaceKey(rediskey.SequencePrefix, "tenant")
	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("T%03d", seq), nil
}

func (g *RedisGenerator) NextClientCode(ctx context.Context, tenantID string) (string, error) {
	return g.nextDailyCode(ctx, "CL", tenantID)
}

func (g *RedisGenerator) NextArtifactCode(ctx context.Context, tenantID string) (string, error) {
	return g.nextDailyCode(ctx, "PDF", tenantID)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix, tenantID string) (string, error) {
	now := g.now().UTC()
	today := now.Format("060102")
	key := fmt.Sprintf("%s:%s:%s:%s", rediskey.SequencePrefix, prefix, tenantID, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := now.Truncate(24 * time.Hour).Add(24 * time.Hour).Sub(now)
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	// base36, padded to 3 chars, plus 2 random chars so codes are not guessable
	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))
	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
