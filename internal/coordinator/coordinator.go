// Package coordinator tracks the lifecycle of asynchronous operations and
// discards results that were overtaken by a newer call of the same kind.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/internal/observability"
)

var (
	// ErrStale is returned when a newer call of the same kind was issued
	// before this one resolved. Its outcome was not applied.
	ErrStale = errors.New("result superseded by a newer call")
	// ErrDetached is returned for calls that resolve after Close.
	ErrDetached = errors.New("coordinator closed")
)

type Kind string

const (
	KindRecognize   Kind = "recognize"
	KindRecommend   Kind = "recommend"
	KindSave        Kind = "save"
	KindRemove      Kind = "remove"
	KindFetchSaved  Kind = "fetch-saved"
	KindFetchRecipe Kind = "fetch-recipe"
	KindUpload      Kind = "upload"
)

// Mutating reports whether a successful call changes server-side saved
// recipes.
func (k Kind) Mutating() bool {
	return k == KindSave || k == KindRemove
}

type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// OperationState is the lifecycle of the latest call of one kind.
type OperationState struct {
	Status Status
	Result any
	Err    error
	// Seq identifies the call that produced this state.
	Seq uint64
}

// Invalidator is notified after every successful mutating call.
type Invalidator interface {
	Invalidate()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithInvalidator(inv Invalidator) Option {
	return func(c *Coordinator) {
		c.invalidator = inv
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// Coordinator belongs to one view. Calls of the same kind may run
// concurrently; only the most recently issued one updates the state.
type Coordinator struct {
	mu          sync.Mutex
	states      map[Kind]OperationState
	seq         map[Kind]uint64
	subs        map[int]func(Kind, OperationState)
	nextSub     int
	closed      bool
	invalidator Invalidator
	metrics     *observability.Metrics
	log         zerolog.Logger

	// emitMu serializes delivery; delivered is the newest seq announced per
	// kind.
	emitMu    sync.Mutex
	delivered map[Kind]uint64
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		states:    make(map[Kind]OperationState),
		seq:       make(map[Kind]uint64),
		subs:      make(map[int]func(Kind, OperationState)),
		delivered: make(map[Kind]uint64),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do runs fn as a call of kind. It returns fn's outcome, or an error matching
// ErrStale or ErrDetached when the outcome was discarded. fn is never retried.
func (c *Coordinator) Do(ctx context.Context, kind Kind, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", kind, ErrDetached)
	}
	c.seq[kind]++
	mine := c.seq[kind]
	pending := OperationState{Status: StatusPending, Seq: mine}
	c.states[kind] = pending
	subs := c.subscribers()
	c.mu.Unlock()

	c.publish(subs, kind, pending)

	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start)

	// The server-side mutation happened regardless of who still listens.
	if err == nil && kind.Mutating() && c.invalidator != nil {
		c.invalidator.Invalidate()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.ObserveOperation(string(kind), "detached", elapsed)
		c.log.Debug().Str("kind", string(kind)).Uint64("seq", mine).Msg("result arrived after close")
		return nil, fmt.Errorf("%s: %w", kind, ErrDetached)
	}
	if c.seq[kind] != mine {
		latest := c.seq[kind]
		c.mu.Unlock()
		c.metrics.ObserveOperation(string(kind), "stale", elapsed)
		c.metrics.ObserveStale(string(kind))
		c.log.Debug().
			Str("kind", string(kind)).
			Uint64("seq", mine).
			Uint64("latest", latest).
			Msg("discarding stale result")
		return nil, fmt.Errorf("%s: %w", kind, ErrStale)
	}

	final := OperationState{Status: StatusSuccess, Result: result, Seq: mine}
	outcome := "success"
	if err != nil {
		final = OperationState{Status: StatusError, Err: err, Seq: mine}
		outcome = "error"
	}
	c.states[kind] = final
	subs = c.subscribers()
	c.mu.Unlock()

	c.metrics.ObserveOperation(string(kind), outcome, elapsed)
	ev := c.log.Debug()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("kind", string(kind)).Uint64("seq", mine).Dur("elapsed", elapsed).Msg("operation finished")

	c.publish(subs, kind, final)
	return result, err
}

// Run is Do with a typed result.
func Run[T any](ctx context.Context, c *Coordinator, kind Kind, fn func(context.Context) (T, error)) (T, error) {
	res, err := c.Do(ctx, kind, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// State returns the state of kind. Kinds never invoked are idle.
func (c *Coordinator) State(kind Kind) OperationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[kind]
}

// Pending reports whether the latest call of kind is still outstanding.
func (c *Coordinator) Pending(kind Kind) bool {
	return c.State(kind).Status == StatusPending
}

// IsDiscarded reports whether err means the outcome was dropped rather than
// failed.
func IsDiscarded(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, ErrDetached)
}

// Subscribe registers fn for every state change. Events of one kind arrive in
// call order: once a newer call is announced, outcomes of older calls are not
// delivered. fn must not call Do on the same coordinator. The returned func
// unsubscribes.
func (c *Coordinator) Subscribe(fn func(Kind, OperationState)) func() {
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

// Close detaches the coordinator from its view. Calls still in flight will
// resolve into ErrDetached.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[int]func(Kind, OperationState))
}

// subscribers must be called with mu held.
func (c *Coordinator) subscribers() []func(Kind, OperationState) {
	out := make([]func(Kind, OperationState), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func (c *Coordinator) publish(subs []func(Kind, OperationState), kind Kind, st OperationState) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if st.Seq < c.delivered[kind] {
		return
	}
	c.delivered[kind] = st.Seq
	for _, fn := range subs {
		fn(kind, st)
	}
}
