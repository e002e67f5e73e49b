// Package notify surfaces operation outcomes as transient notices that retire
// themselves after a timeout.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDuration is how long a notice stays up unless told otherwise.
const DefaultDuration = 5 * time.Second

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

type ID string

// Notice is one visible message.
type Notice struct {
	ID        ID
	Message   string
	Severity  Severity
	Duration  time.Duration
	CreatedAt time.Time
}

type EventType int

const (
	Shown EventType = iota
	Dismissed
)

func (t EventType) String() string {
	if t == Shown {
		return "shown"
	}
	return "dismissed"
}

type Reason string

const (
	ReasonTimeout Reason = "timeout"
	ReasonManual  Reason = "manual"
)

// Event is delivered to subscribers. Reason is empty for Shown events.
type Event struct {
	Type   EventType
	Notice Notice
	Reason Reason
}

// Option adjusts a single notice.
type Option func(*Notice)

// WithDuration overrides the display time. A non-positive duration keeps the
// notice up until it is dismissed manually.
func WithDuration(d time.Duration) Option {
	return func(n *Notice) {
		n.Duration = d
	}
}

type entry struct {
	notice Notice
	timer  *time.Timer
}

// Emitter owns the active notices and their timers.
type Emitter struct {
	mu       sync.Mutex
	duration time.Duration
	active   map[ID]*entry
	order    []ID
	subs     map[int]func(Event)
	nextSub  int
	closed   bool
	log      zerolog.Logger
}

// New creates an Emitter. A non-positive defaultDuration falls back to
// DefaultDuration.
func New(defaultDuration time.Duration, log zerolog.Logger) *Emitter {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Emitter{
		duration: defaultDuration,
		active:   make(map[ID]*entry),
		subs:     make(map[int]func(Event)),
		log:      log,
	}
}

// Notify shows message and returns its ID. After Close it is a no-op that
// still returns a fresh ID.
func (e *Emitter) Notify(message string, severity Severity, opts ...Option) ID {
	n := Notice{
		ID:        ID(uuid.NewString()),
		Message:   message,
		Severity:  severity,
		Duration:  e.duration,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&n)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return n.ID
	}
	ent := &entry{notice: n}
	if n.Duration > 0 {
		id := n.ID
		ent.timer = time.AfterFunc(n.Duration, func() {
			e.dismiss(id, ReasonTimeout)
		})
	}
	e.active[n.ID] = ent
	e.order = append(e.order, n.ID)
	subs := e.subscribers()
	e.mu.Unlock()

	e.log.Debug().Str("severity", string(severity)).Str("message", message).Msg("notice shown")
	publish(subs, Event{Type: Shown, Notice: n})
	return n.ID
}

// Dismiss closes a notice by hand and stops its timer. It reports whether the
// notice was still active.
func (e *Emitter) Dismiss(id ID) bool {
	return e.dismiss(id, ReasonManual)
}

// Active lists the visible notices, oldest first.
func (e *Emitter) Active() []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Notice, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.active[id].notice)
	}
	return out
}

// Subscribe registers fn for every Shown and Dismissed event. The returned
// func unsubscribes.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Close stops every pending timer and drops the active notices without
// emitting events.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, ent := range e.active {
		if ent.timer != nil {
			ent.timer.Stop()
		}
	}
	e.active = make(map[ID]*entry)
	e.order = nil
}

func (e *Emitter) dismiss(id ID, reason Reason) bool {
	e.mu.Lock()
	ent, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	if ent.timer != nil {
		ent.timer.Stop()
	}
	delete(e.active, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	subs := e.subscribers()
	e.mu.Unlock()

	publish(subs, Event{Type: Dismissed, Notice: ent.notice, Reason: reason})
	return true
}

// subscribers must be called with mu held.
func (e *Emitter) subscribers() []func(Event) {
	out := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func publish(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
