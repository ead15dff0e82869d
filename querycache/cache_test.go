package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)
}

func TestCache_ServesFreshEntryWithoutReload(t *testing.T) {
	clock := newFakeClock()
	c := New(WithStaleTime(30*time.Second), withClock(clock.Now))

	var loads int32
	loader := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return "value", nil
	}

	v, err := c.Get(context.Background(), "k", loader)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	clock.Advance(10 * time.Second)
	v, err = c.Get(context.Background(), "k", loader)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestCache_RefetchesOnceStale(t *testing.T) {
	clock := newFakeClock()
	c := New(WithStaleTime(30*time.Second), withClock(clock.Now))

	var loads int32
	loader := func(ctx context.Context) (interface{}, error) {
		return atomic.AddInt32(&loads, 1), nil
	}

	v, _ := c.Get(context.Background(), "k", loader)
	assert.Equal(t, int32(1), v)

	clock.Advance(31 * time.Second)
	v, _ = c.Get(context.Background(), "k", loader)
	assert.Equal(t, int32(2), v)
}

func TestCache_InvalidateForcesReload(t *testing.T) {
	c := New()

	var loads int32
	loader := func(ctx context.Context) (interface{}, error) {
		return atomic.AddInt32(&loads, 1), nil
	}

	_, _ = c.Get(context.Background(), "k", loader)
	c.Invalidate("k")
	v, _ := c.Get(context.Background(), "k", loader)
	assert.Equal(t, int32(2), v)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New()

	loader := func(ctx context.Context) (interface{}, error) { return 1, nil }
	_, _ = c.Get(context.Background(), "course:1", loader)
	_, _ = c.Get(context.Background(), "course:2", loader)
	_, _ = c.Get(context.Background(), "user:1", loader)
	require.Equal(t, 3, c.Len())

	c.InvalidatePrefix("course:")
	assert.Equal(t, 1, c.Len())
}

func TestCache_SingleFlight(t *testing.T) {
	c := New()

	var loads int32
	gate := make(chan struct{})
	loader := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		<-gate
		return "v", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", loader)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the goroutines pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	for _, v := range results {
		assert.Equal(t, "v", v)
	}
}

func TestCache_RetriesBoundedThenSurfacesError(t *testing.T) {
	c := New(WithRetries(2, time.Millisecond))

	var loads int32
	wantErr := errors.New("transient")
	loader := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return nil, wantErr
	}

	_, err := c.Get(context.Background(), "k", loader)
	assert.ErrorIs(t, err, wantErr)
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&loads))
}

func TestCache_RetrySucceedsMidway(t *testing.T) {
	c := New(WithRetries(2, time.Millisecond))

	var loads int32
	loader := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&loads, 1) < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}

	v, err := c.Get(context.Background(), "k", loader)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestCache_FailedLoadIsNotCached(t *testing.T) {
	clock := newFakeClock()
	c := New(WithStaleTime(30*time.Second), WithRetries(0, time.Millisecond), withClock(clock.Now))

	var loads int32
	loader := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			return nil, errors.New("db down")
		}
		return "recovered", nil
	}

	_, err := c.Get(context.Background(), "k", loader)
	require.Error(t, err)

	// Well inside the stale window the next Get must reach the loader
	// again instead of replaying the failure.
	clock.Advance(time.Second)
	v, err := c.Get(context.Background(), "k", loader)
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestCache_SweepDropsIdleEntries(t *testing.T) {
	clock := newFakeClock()
	c := New(WithStaleTime(time.Minute), WithGCTime(5*time.Minute), withClock(clock.Now))

	loader := func(ctx context.Context) (interface{}, error) { return 1, nil }
	_, _ = c.Get(context.Background(), "old", loader)

	clock.Advance(3 * time.Minute)
	_, _ = c.Get(context.Background(), "fresh", loader)

	clock.Advance(3 * time.Minute)
	dropped := c.Sweep()

	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidateDuringLoadDiscardsResult(t *testing.T) {
	c := New()

	gate := make(chan struct{})
	started := make(chan struct{})
	var loads int32
	loader := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			close(started)
			<-gate
		}
		return atomic.LoadInt32(&loads), nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "k", loader)
	}()

	<-started
	c.Invalidate("k")
	close(gate)
	<-done

	// The invalidated in-flight result was not published; a fresh Get
	// reloads.
	v, err := c.Get(context.Background(), "k", loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}
