// Package debounce coalesces bursts of state updates.
//
// The first write in a quiet period is published immediately and arms a
// timer. Writes arriving while the timer is armed are queued and folded, in
// arrival order, into the single publish made when the timer fires.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the debounce window used when no delay is configured.
const DefaultDelay = 50 * time.Millisecond

// Update is one queued state change: either a literal replacement value or
// a transform of the previous value.
type Update[T any] struct {
	value T
	fn    func(T) T
}

// Value returns an update that overwrites the state with v.
func Value[T any](v T) Update[T] {
	return Update[T]{value: v}
}

// Func returns an update that derives the next state from the previous one.
func Func[T any](fn func(T) T) Update[T] {
	return Update[T]{fn: fn}
}

func (u Update[T]) apply(prev T) T {
	if u.fn != nil {
		return u.fn(prev)
	}
	return u.value
}

// Timer is the handle of an armed timer.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a State.
type Option func(*options)

type options struct {
	delay     time.Duration
	afterFunc AfterFunc
}

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.afterFunc = fn
		}
	}
}

// State is a debounced value. It is safe for concurrent use.
type State[T any] struct {
	delay     time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	current T
	timer   Timer
	queue   []Update[T]
	gen     uint64 // identifies the armed window
	closed  bool

	// publishMu keeps observer calls in publish order.
	publishMu sync.Mutex
	observers []func(T)
}

// New creates a State holding initial.
func New[T any](initial T, opts ...Option) *State[T] {
	o := options{delay: DefaultDelay, afterFunc: stdAfterFunc}
	for _, opt := range opts {
		opt(&o)
	}
	return &State[T]{
		delay:     o.delay,
		afterFunc: o.afterFunc,
		current:   initial,
	}
}

// Get returns the externally observed value.
func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnPublish registers fn to be called with every published value. Observers
// run on the publishing goroutine and must not call Write.
func (s *State[T]) OnPublish(fn func(T)) {
	s.publishMu.Lock()
	s.observers = append(s.observers, fn)
	s.publishMu.Unlock()
}

// Set queues a literal replacement.
func (s *State[T]) Set(v T) { s.Write(Value(v)) }

// Apply queues a transform.
func (s *State[T]) Apply(fn func(T) T) { s.Write(Func(fn)) }

// Write applies u immediately when no window is open, otherwise appends it
// to the pending queue. Writes after Close are ignored.
func (s *State[T]) Write(u Update[T]) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.timer != nil {
		s.queue = append(s.queue, u)
		s.mu.Unlock()
		return
	}

	s.current = u.apply(s.current)
	s.queue = s.queue[:0]
	s.gen++
	gen := s.gen
	s.timer = s.afterFunc(s.delay, func() { s.flush(gen) })
	value := s.current

	s.publishMu.Lock()
	s.mu.Unlock()
	s.notify(value)
}

// flush folds the queue of window gen into the current value.
func (s *State[T]) flush(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}

	queue := s.queue
	s.queue = nil
	s.timer = nil

	// An empty queue still publishes: every window ends with one timer publish.
	next := s.current
	for _, u := range queue {
		next = u.apply(next)
	}
	s.current = next

	s.publishMu.Lock()
	s.mu.Unlock()
	s.notify(next)
}

// notify must be called with publishMu held; it releases it.
func (s *State[T]) notify(v T) {
	defer s.publishMu.Unlock()
	for _, fn := range s.observers {
		fn(v)
	}
}

// Pending returns the number of queued updates.
func (s *State[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close cancels an armed timer and discards queued updates. It waits for a
// publish already in progress, so nothing is published after Close returns.
// Close must not be called from an observer.
func (s *State[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.queue = nil
	s.mu.Unlock()

	// Publishers take publishMu before releasing mu, so any publish that
	// passed the closed check holds it now or already finished.
	s.publishMu.Lock()
	s.publishMu.Unlock()
}
