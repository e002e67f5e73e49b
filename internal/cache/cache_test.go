package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter returns successive integers and counts fetches.
type counter struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  atomic.Bool
}

func (f *counter) fetch(ctx context.Context, _ string) (int, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.fail.Load() {
		return 0, errors.New("backend down")
	}
	return int(n), nil
}

func TestGetFetchesOnce(t *testing.T) {
	f := &counter{}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	v, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.Get(context.Background(), "saved")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	f := &counter{gate: make(chan struct{})}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "saved")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	assert.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.EqualValues(t, 1, f.calls.Load())
	for _, v := range results {
		assert.Equal(t, 1, v)
	}
}

func TestInvalidateRefetches(t *testing.T) {
	f := &counter{}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	_, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)

	c.Invalidate("saved")
	assert.Eventually(t, func() bool {
		v, ok := c.Peek("saved")
		return ok && v == 2 && !c.Stale("saved")
	}, time.Second, time.Millisecond)
}

func TestInvalidateDuringFetchFetchesAgain(t *testing.T) {
	f := &counter{gate: make(chan struct{}, 10)}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	f.gate <- struct{}{}
	_, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)

	c.Invalidate("saved")
	assert.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond)

	// lands while fetch #2 is blocked
	c.Invalidate("saved")
	c.Invalidate("saved")
	f.gate <- struct{}{}
	f.gate <- struct{}{}

	assert.Eventually(t, func() bool {
		v, ok := c.Peek("saved")
		return ok && v == 3 && !c.Stale("saved")
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestStaleValueServedUntilRefetch(t *testing.T) {
	f := &counter{gate: make(chan struct{}, 10)}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	f.gate <- struct{}{}
	_, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)

	c.Invalidate("saved")
	v, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, c.Stale("saved"))

	f.gate <- struct{}{}
	assert.Eventually(t, func() bool { return !c.Stale("saved") }, time.Second, time.Millisecond)
}

func TestFailedRefetchKeepsValue(t *testing.T) {
	f := &counter{}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	_, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)

	f.fail.Store(true)
	c.Invalidate("saved")
	assert.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond)

	v, ok := c.Peek("saved")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, c.Stale("saved"))

	// next read retries
	f.fail.Store(false)
	v, err = c.Get(context.Background(), "saved")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Eventually(t, func() bool {
		v, _ := c.Peek("saved")
		return v == 3 && !c.Stale("saved")
	}, time.Second, time.Millisecond)
}

func TestFirstFetchError(t *testing.T) {
	f := &counter{}
	f.fail.Store(true)
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	_, err := c.Get(context.Background(), "saved")
	assert.EqualError(t, err, "backend down")
	_, ok := c.Peek("saved")
	assert.False(t, ok)
}

func TestGetHonorsCallerContext(t *testing.T) {
	f := &counter{gate: make(chan struct{})}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "saved")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribe(t *testing.T) {
	f := &counter{}
	c := New(f.fetch, zerolog.Nop())
	defer c.Close()

	var mu sync.Mutex
	var seen []int
	unsubscribe := c.Subscribe(func(key string, v int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "saved", key)
		seen = append(seen, v)
	})

	_, err := c.Get(context.Background(), "saved")
	require.NoError(t, err)
	c.Invalidate("saved")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	unsubscribe()
	c.Invalidate("saved")
	assert.Eventually(t, func() bool { return f.calls.Load() == 3 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 2}, seen)
	mu.Unlock()
}

func TestClose(t *testing.T) {
	f := &counter{gate: make(chan struct{})}
	c := New(f.fetch, zerolog.Nop())
	c.Invalidate("saved")
	assert.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Close()
	_, err := c.Get(context.Background(), "saved")
	assert.ErrorIs(t, err, ErrClosed)
	c.Invalidate("saved")
	assert.EqualValues(t, 1, f.calls.Load())
}
