package sequence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	values  map[string]int64
	expires map[string]time.Duration
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.values[key]++
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(f.values[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.expires[key] = d
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestNextArtifactCode(t *testing.T) {
	counter := newFakeCounter()
	g := NewGenerator(counter)
	g.now = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }

	code, err := g.NextArtifactCode(context.Background(), "t1")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^PDF-250304-001[A-Z2-9]{2}$`), code)

	code, err = g.NextArtifactCode(context.Background(), "t1")
	require.NoError(t, err)
	require.Contains(t, code, "-002")

	require.Equal(t, 14*time.Hour, counter.expires["seq:PDF:t1:250304"])
}

func TestNextTenantCode(t *testing.T) {
	g := NewGenerator(newFakeCounter())

	code, err := g.NextTenantCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T001", code)
}
