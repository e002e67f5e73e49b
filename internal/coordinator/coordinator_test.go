package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/pantrycam/internal/observability"
)

type countingInvalidator struct {
	n atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

// blocking returns fn that waits for release before answering with value.
func blocking(release <-chan struct{}, value string, err error) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		<-release
		return value, err
	}
}

func TestDoTransitions(t *testing.T) {
	c := New()
	assert.Equal(t, StatusIdle, c.State(KindRecognize).Status)

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := c.Do(context.Background(), KindRecognize, blocking(release, "egg", nil))
		assert.NoError(t, err)
		assert.Equal(t, "egg", res)
	}()

	assert.Eventually(t, func() bool { return c.Pending(KindRecognize) }, time.Second, time.Millisecond)
	close(release)
	<-done

	st := c.State(KindRecognize)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "egg", st.Result)
	assert.Nil(t, st.Err)
}

func TestDoError(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	_, err := c.Do(context.Background(), KindRecommend, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	st := c.State(KindRecommend)
	assert.Equal(t, StatusError, st.Status)
	assert.ErrorIs(t, st.Err, boom)
}

func TestOlderResultArrivingLateIsStale(t *testing.T) {
	c := New()
	first := make(chan struct{})
	second := make(chan struct{})

	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Do(context.Background(), KindRecognize, blocking(first, "t0", nil))
	}()
	assert.Eventually(t, func() bool { return c.State(KindRecognize).Seq == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	var secondRes any
	var secondErr error
	go func() {
		defer wg.Done()
		secondRes, secondErr = c.Do(context.Background(), KindRecognize, blocking(second, "t1", nil))
	}()
	assert.Eventually(t, func() bool { return c.State(KindRecognize).Seq == 2 }, time.Second, time.Millisecond)

	close(second)
	assert.Eventually(t, func() bool { return c.State(KindRecognize).Status == StatusSuccess }, time.Second, time.Millisecond)
	close(first)
	wg.Wait()

	require.NoError(t, secondErr)
	assert.Equal(t, "t1", secondRes)
	assert.ErrorIs(t, firstErr, ErrStale)
	assert.True(t, IsDiscarded(firstErr))
	assert.Equal(t, "t1", c.State(KindRecognize).Result)
}

func TestStaleErrorDoesNotOverwrite(t *testing.T) {
	c := New()
	first := make(chan struct{})

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = c.Do(context.Background(), KindRecommend, blocking(first, "", errors.New("late failure")))
	}()
	assert.Eventually(t, func() bool { return c.Pending(KindRecommend) }, time.Second, time.Millisecond)

	_, err := c.Do(context.Background(), KindRecommend, func(context.Context) (any, error) { return "fresh", nil })
	require.NoError(t, err)
	close(first)
	<-done

	assert.ErrorIs(t, firstErr, ErrStale)
	assert.Equal(t, StatusSuccess, c.State(KindRecommend).Status)
}

func TestKindsAreIndependent(t *testing.T) {
	c := New()
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Do(context.Background(), KindRecognize, blocking(release, "egg", nil))
		assert.NoError(t, err)
	}()
	assert.Eventually(t, func() bool { return c.Pending(KindRecognize) }, time.Second, time.Millisecond)

	_, err := c.Do(context.Background(), KindFetchSaved, func(context.Context) (any, error) { return "list", nil })
	require.NoError(t, err)
	close(release)
	<-done
	assert.Equal(t, StatusSuccess, c.State(KindRecognize).Status)
}

func TestMutatingSuccessInvalidates(t *testing.T) {
	inv := &countingInvalidator{}
	c := New(WithInvalidator(inv))
	ok := func(context.Context) (any, error) { return nil, nil }

	_, err := c.Do(context.Background(), KindSave, ok)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), KindRemove, ok)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), KindRecommend, ok)
	require.NoError(t, err)
	_, _ = c.Do(context.Background(), KindSave, func(context.Context) (any, error) { return nil, errors.New("rejected") })

	assert.EqualValues(t, 2, inv.n.Load())
}

func TestStaleMutationStillInvalidates(t *testing.T) {
	inv := &countingInvalidator{}
	c := New(WithInvalidator(inv))
	first := make(chan struct{})

	done := make(chan struct{})
	var firstErr error
	go func() {
		defer close(done)
		_, firstErr = c.Do(context.Background(), KindSave, blocking(first, "r1", nil))
	}()
	assert.Eventually(t, func() bool { return c.Pending(KindSave) }, time.Second, time.Millisecond)

	_, err := c.Do(context.Background(), KindSave, func(context.Context) (any, error) { return "r2", nil })
	require.NoError(t, err)
	close(first)
	<-done

	assert.ErrorIs(t, firstErr, ErrStale)
	assert.EqualValues(t, 2, inv.n.Load())
}

func TestCloseDetachesInFlight(t *testing.T) {
	inv := &countingInvalidator{}
	c := New(WithInvalidator(inv))

	var calls atomic.Int32
	c.Subscribe(func(Kind, OperationState) { calls.Add(1) })

	release := make(chan struct{})
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = c.Do(context.Background(), KindRemove, blocking(release, "", nil))
	}()
	assert.Eventually(t, func() bool { return c.Pending(KindRemove) }, time.Second, time.Millisecond)

	c.Close()
	close(release)
	<-done

	assert.ErrorIs(t, err, ErrDetached)
	assert.True(t, IsDiscarded(err))
	assert.Equal(t, StatusPending, c.State(KindRemove).Status)
	assert.EqualValues(t, 1, calls.Load(), "only the pending event")
	assert.EqualValues(t, 1, inv.n.Load())

	_, err = c.Do(context.Background(), KindRemove, func(context.Context) (any, error) {
		t.Fatal("must not run after close")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrDetached)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	c := New()
	var mu sync.Mutex
	var seen []Status
	unsubscribe := c.Subscribe(func(k Kind, st OperationState) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, KindFetchSaved, k)
		seen = append(seen, st.Status)
	})

	_, err := c.Do(context.Background(), KindFetchSaved, func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	unsubscribe()
	_, err = c.Do(context.Background(), KindFetchSaved, func(context.Context) (any, error) { return 2, nil })
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusPending, StatusSuccess}, seen)
}

func TestOlderOutcomeNotDeliveredAfterNewerCall(t *testing.T) {
	c := New()
	var seen []OperationState
	c.Subscribe(func(_ Kind, st OperationState) {
		seen = append(seen, st)
	})
	c.mu.Lock()
	subs := c.subscribers()
	c.mu.Unlock()

	c.publish(subs, KindRecognize, OperationState{Status: StatusPending, Seq: 2})
	c.publish(subs, KindRecognize, OperationState{Status: StatusSuccess, Seq: 1})
	c.publish(subs, KindRecommend, OperationState{Status: StatusSuccess, Seq: 1})
	c.publish(subs, KindRecognize, OperationState{Status: StatusSuccess, Seq: 2})

	assert.Equal(t, []OperationState{
		{Status: StatusPending, Seq: 2},
		{Status: StatusSuccess, Seq: 1},
		{Status: StatusSuccess, Seq: 2},
	}, seen)
}

func TestLastEventMatchesStateUnderConcurrency(t *testing.T) {
	c := New()
	var mu sync.Mutex
	var last OperationState
	c.Subscribe(func(_ Kind, st OperationState) {
		mu.Lock()
		defer mu.Unlock()
		last = st
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Do(context.Background(), KindRecommend, func(context.Context) (any, error) {
				time.Sleep(time.Duration(i%5) * time.Millisecond)
				return i, nil
			})
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, c.State(KindRecommend), last)
	assert.Equal(t, StatusSuccess, last.Status)
}

func TestRunTyped(t *testing.T) {
	c := New()
	names, err := Run(context.Background(), c, KindRecognize, func(context.Context) ([]string, error) {
		return []string{"egg"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"egg"}, names)

	_, err = Run(context.Background(), c, KindRecognize, func(context.Context) ([]string, error) {
		return nil, errors.New("nope")
	})
	assert.EqualError(t, err, "nope")
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	c := New(WithMetrics(m))

	first := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Do(context.Background(), KindRecognize, blocking(first, "old", nil))
	}()
	assert.Eventually(t, func() bool { return c.Pending(KindRecognize) }, time.Second, time.Millisecond)
	_, err := c.Do(context.Background(), KindRecognize, func(context.Context) (any, error) { return "new", nil })
	require.NoError(t, err)
	close(first)
	<-done

	count, err := testutil.GatherAndCount(reg, "pantrycam_operation_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "pantrycam_operation_stale_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "error", StatusError.String())
}
