// Package cache provides a keyed read-through cache whose entries are only
// ever replaced by refetching, never written by callers.
package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("cache closed")

// FetchFunc loads the authoritative value for key.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value  V
	loaded bool
	stale  bool
	// version is bumped by every invalidation.
	version    uint64
	refreshing bool
}

type fetched[V any] struct {
	value   V
	version uint64
}

// Cache is safe for concurrent use. At most one fetch per key is in flight at
// any time.
type Cache[V any] struct {
	mu      sync.Mutex
	fetch   FetchFunc[V]
	group   singleflight.Group
	entries map[string]*entry[V]
	subs    map[int]func(string, V)
	nextSub int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// New creates a Cache that loads values with fetch.
func New[V any](fetch FetchFunc[V], log zerolog.Logger) *Cache[V] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[V]{
		fetch:   fetch,
		entries: make(map[string]*entry[V]),
		subs:    make(map[int]func(string, V)),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Get returns the cached value for key, fetching it first if it was never
// loaded. An invalidated value is still returned until its refetch lands.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	if c.ctx.Err() != nil {
		return zero, ErrClosed
	}

	c.mu.Lock()
	e := c.entry(key)
	if e.loaded {
		v := e.value
		if e.stale && !e.refreshing {
			// a previous refetch failed; try again on read
			c.startRefresh(key, e)
		}
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(key)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(fetched[V]).value, nil
	}
}

// Peek returns the cached value without fetching.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.loaded {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Stale reports whether key has been invalidated and not yet refetched.
func (c *Cache[V]) Stale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.stale
}

// Invalidate marks key stale and schedules a refetch in the background. An
// invalidation that lands while a fetch is in flight causes one more fetch
// after it, so the entry converges on data fetched after the invalidation.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	e := c.entry(key)
	e.version++
	e.stale = true
	if !e.refreshing {
		c.startRefresh(key, e)
	}
}

// Subscribe registers fn to run with every freshly fetched value. The
// returned func unsubscribes.
func (c *Cache[V]) Subscribe(fn func(key string, value V)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Close cancels in-flight fetches and waits for background refreshes to stop.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

// entry must be called with mu held.
func (c *Cache[V]) entry(key string) *entry[V] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	return e
}

// startRefresh must be called with mu held.
func (c *Cache[V]) startRefresh(key string, e *entry[V]) {
	if c.ctx.Err() != nil {
		return
	}
	e.refreshing = true
	c.wg.Add(1)
	go c.refresh(key)
}

func (c *Cache[V]) refresh(key string) {
	defer c.wg.Done()
	for {
		res, err, _ := c.group.Do(key, func() (any, error) {
			return c.load(key)
		})

		c.mu.Lock()
		e := c.entries[key]
		if err != nil {
			e.refreshing = false
			c.mu.Unlock()
			c.log.Warn().Err(err).Str("key", key).Msg("cache refetch failed")
			return
		}
		// A shared fetch that started before the invalidation does not count.
		if res.(fetched[V]).version == e.version {
			e.refreshing = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		if c.ctx.Err() != nil {
			c.mu.Lock()
			e.refreshing = false
			c.mu.Unlock()
			return
		}
	}
}

// load performs one fetch and stores its result. Only one load per key runs
// at a time because every caller goes through group.
func (c *Cache[V]) load(key string) (fetched[V], error) {
	c.mu.Lock()
	version := c.entry(key).version
	c.mu.Unlock()

	v, err := c.fetch(c.ctx, key)
	if err != nil {
		return fetched[V]{}, err
	}

	c.mu.Lock()
	e := c.entry(key)
	e.value = v
	e.loaded = true
	if e.version == version {
		e.stale = false
	}
	subs := make([]func(string, V), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.log.Debug().Str("key", key).Uint64("version", version).Msg("cache entry refreshed")
	for _, fn := range subs {
		fn(key, v)
	}
	return fetched[V]{value: v, version: version}, nil
}
