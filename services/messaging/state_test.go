package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStateStore struct {
	mu     sync.Mutex
	states map[string]ConnectionState
	getErr error
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: map[string]ConnectionState{}}
}

func (m *memStateStore) Get(_ context.Context, session string) (ConnectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.states[session], nil
}

func (m *memStateStore) Set(_ context.Context, session string, state ConnectionState, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[session] = state
	return nil
}

// slowGateway answers Status after a delay and counts calls.
type slowGateway struct {
	calls atomic.Int32
	state ConnectionState
	err   error
	delay time.Duration
}

func (g *slowGateway) SendText(context.Context, string, string) (*Ack, error) { return nil, nil }
func (g *slowGateway) SendFile(context.Context, string, FileRef, string, string) (*Ack, error) {
	return nil, nil
}
func (g *slowGateway) Status(context.Context) (ConnectionState, error) {
	g.calls.Add(1)
	time.Sleep(g.delay)
	return g.state, g.err
}

func TestStateCacheReadsThroughAndCaches(t *testing.T) {
	store := newMemStateStore()
	gw := &slowGateway{state: StateConnected}
	cache := NewStateCache(store, gw, "coach", time.Minute)

	state, err := cache.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateConnected, state)

	state, err = cache.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateConnected, state)
	require.EqualValues(t, 1, gw.calls.Load())
}

func TestStateCacheCollapsesConcurrentMisses(t *testing.T) {
	gw := &slowGateway{state: StateDisconnected, delay: 50 * time.Millisecond}
	cache := NewStateCache(newMemStateStore(), gw, "coach", time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := cache.Current(context.Background())
			require.NoError(t, err)
			require.Equal(t, StateDisconnected, state)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, gw.calls.Load(), int32(2))
}

func TestStateCacheUpdateWins(t *testing.T) {
	store := newMemStateStore()
	gw := &slowGateway{state: StateConnected}
	cache := NewStateCache(store, gw, "coach", time.Minute)

	require.NoError(t, cache.Update(context.Background(), StateUnpaired))

	state, err := cache.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateUnpaired, state)
	require.EqualValues(t, 0, gw.calls.Load())
}

func TestStateCacheFallsBackWhenStoreFails(t *testing.T) {
	store := newMemStateStore()
	store.getErr = errors.New("redis down")
	gw := &slowGateway{state: StateConnected}
	cache := NewStateCache(store, gw, "coach", time.Minute)

	state, err := cache.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateConnected, state)
}

func TestStateCacheGatewayError(t *testing.T) {
	gw := &slowGateway{err: &GatewayError{Op: "status", Transient: true, Err: errors.New("timeout")}}
	cache := NewStateCache(newMemStateStore(), gw, "coach", time.Minute)

	state, err := cache.Current(context.Background())
	require.Error(t, err)
	require.Equal(t, StateUnknown, state)
}
