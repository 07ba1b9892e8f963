package state

import (
	"context"
	"reflect"
	"sync"
)

// Container holds an immutable snapshot of a value and notifies subscribers
// when it changes. Notifications are coalesced by the owning Scheduler: any
// number of effective patches between two flush cycles produce exactly one
// notification carrying the latest snapshot.
type Container[T any] struct {
	sched *Scheduler
	eq    func(a, b T) bool

	mu     sync.Mutex
	value  T
	dirty  bool
	subs   map[int]func(T)
	nextID int
}

// Option configures a Container at construction.
type Option[T any] func(*Container[T])

// WithEqual sets the equality function used to decide whether a patch
// actually changed the value. The default is reflect.DeepEqual.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(c *Container[T]) { c.eq = eq }
}

// New creates a container owned by sched holding initial.
func New[T any](sched *Scheduler, initial T, opts ...Option[T]) *Container[T] {
	c := &Container[T]{
		sched: sched,
		eq:    func(a, b T) bool { return reflect.DeepEqual(a, b) },
		value: initial,
		subs:  make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot.
func (c *Container[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Patch applies a functional update to the current snapshot. If the result
// is equal to the current value the call is a no-op and nothing is
// scheduled. Otherwise the new snapshot is stored and a flush is scheduled.
func (c *Container[T]) Patch(apply func(T) T) {
	c.mu.Lock()
	next := apply(c.value)
	if c.eq(c.value, next) {
		c.mu.Unlock()
		return
	}
	c.value = next
	schedule := !c.dirty && len(c.subs) > 0
	if len(c.subs) > 0 {
		c.dirty = true
	}
	c.mu.Unlock()

	if schedule {
		c.sched.enqueue(c)
	}
}

// Set replaces the snapshot outright; equivalent to a Patch ignoring the
// previous value.
func (c *Container[T]) Set(v T) {
	c.Patch(func(T) T { return v })
}

// Subscribe registers fn to be called with the latest snapshot after each
// flush in which this container changed. It returns an unsubscribe
// function; calling it more than once is safe.
func (c *Container[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// SubscribeContext is Subscribe with a cancellation context: when ctx is
// done the listener is removed.
func (c *Container[T]) SubscribeContext(ctx context.Context, fn func(T)) func() {
	cancel := c.Subscribe(fn)
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}
}

// Notify registers a void callback invoked whenever the container changes.
// It exists so heterogeneous containers can feed one observer; see
// CombineLatest.
func (c *Container[T]) Notify(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}

// flush delivers the current snapshot to all subscribers. Called only by
// the scheduler's flush loop.
func (c *Container[T]) flush() {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return
	}
	c.dirty = false
	v := c.value
	fns := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
