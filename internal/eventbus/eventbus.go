// Package eventbus implements the typed pub/sub bus that decouples
// mutation (storage, the node service, the coordinator) from reactive
// observers: a subscription table keyed by event type, with per-handler
// debounce/batch coalescing and a capped history ring buffer for
// diagnostics.
package eventbus

import (
	"sync"
	"time"
)

// Namespace groups event types into coarse routing buckets.
type Namespace string

const (
	NamespaceLifecycle   Namespace = "lifecycle"
	NamespaceCoordination Namespace = "coordination"
	NamespaceInteraction  Namespace = "interaction"
	NamespaceCache        Namespace = "cache"
)

// Type identifies an event within a namespace, e.g. "node:created".
type Type string

// Wildcard subscribes a handler to every event type.
const Wildcard Type = "*"

// Event is an immutable record delivered to subscribers.
type Event struct {
	Type      Type
	Namespace Namespace
	Source    string
	Timestamp time.Time
	Payload   any
}

// Predicate filters events before they reach a handler.
type Predicate func(Event) bool

// Handler receives a single event. Batched subscriptions (SubscribeBatched)
// take a BatchHandler instead.
type Handler func(Event)

// BatchHandler receives a coalesced batch of events.
type BatchHandler func([]Event)

// Subscription is returned by every Subscribe* call; Cancel removes the
// handler and cancels any pending debounce/batch timer.
type Subscription struct {
	bus *Bus
	id  uint64
}

// Cancel unsubscribes the handler.
func (s Subscription) Cancel() {
	s.bus.unsubscribe(s.id)
}

type subscriber struct {
	id        uint64
	eventType Type
	predicate Predicate
	mu        sync.Mutex // serializes this subscriber's delivery; handlers never run concurrently with themselves
	queue     chan Event

	// debounce state
	debounce time.Duration
	timer    *time.Timer
	pending  *Event

	// batch state
	batchWindow time.Duration
	maxBatch    int
	batchTimer  *time.Timer
	batch       []Event
	batchFn     BatchHandler

	plain Handler

	done chan struct{}
}

// Bus is a typed, namespaced event bus with debounce/batch support and a
// capped history ring buffer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]*subscriber
	nextID      uint64

	histMu  sync.Mutex
	history []Event
	histCap int

	onError func(Type, error)
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistoryCap sets the size of the diagnostic ring buffer (default 1000).
func WithHistoryCap(n int) Option {
	return func(b *Bus) { b.histCap = n }
}

// WithErrorHandler registers a callback invoked when a handler panics. The
// panic is recorded there and swallowed; it never reaches sibling handlers.
func WithErrorHandler(fn func(Type, error)) Option {
	return func(b *Bus) { b.onError = fn }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[Type][]*subscriber),
		histCap:     1000,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for events of the given type (or Wildcard),
// filtered by an optional predicate. Delivery is immediate and FIFO per
// type.
func (b *Bus) Subscribe(t Type, predicate Predicate, fn Handler) Subscription {
	return b.subscribe(t, predicate, fn, 0, 0, 0, nil)
}

// SubscribeDebounced coalesces a burst of matching events and delivers
// only the last one, d after the last matching event (trailing delivery).
func (b *Bus) SubscribeDebounced(t Type, predicate Predicate, d time.Duration, fn Handler) Subscription {
	return b.subscribe(t, predicate, fn, d, 0, 0, nil)
}

// SubscribeBatched delivers all events within a rolling w window as one
// slice, capped at maxBatch.
func (b *Bus) SubscribeBatched(t Type, predicate Predicate, w time.Duration, maxBatch int, fn BatchHandler) Subscription {
	return b.subscribe(t, predicate, nil, 0, w, maxBatch, fn)
}

func (b *Bus) subscribe(t Type, predicate Predicate, fn Handler, debounce, batchWindow time.Duration, maxBatch int, batchFn BatchHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:          b.nextID,
		eventType:   t,
		predicate:   predicate,
		debounce:    debounce,
		batchWindow: batchWindow,
		maxBatch:    maxBatch,
		plain:       fn,
		batchFn:     batchFn,
		done:        make(chan struct{}),
	}
	b.subscribers[t] = append(b.subscribers[t], sub)
	return Subscription{bus: b, id: sub.id}
}

// unsubscribe removes the subscriber with id and cancels its timers, under
// the bus lock so a subscribe/unsubscribe race never leaves split state.
func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.subscribers {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			s.mu.Lock()
			if s.timer != nil {
				s.timer.Stop()
			}
			if s.batchTimer != nil {
				s.batchTimer.Stop()
			}
			close(s.done)
			s.mu.Unlock()
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every subscriber registered for e.Type plus every
// wildcard subscriber, and appends it to the history ring buffer.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.record(e)

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers[e.Type])+len(b.subscribers[Wildcard]))
	targets = append(targets, b.subscribers[e.Type]...)
	targets = append(targets, b.subscribers[Wildcard]...)
	b.mu.RUnlock()

	for _, s := range targets {
		if s.predicate != nil && !s.predicate(e) {
			continue
		}
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s *subscriber, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	switch {
	case s.batchFn != nil:
		s.batch = append(s.batch, e)
		if s.maxBatch > 0 && len(s.batch) >= s.maxBatch {
			b.flushBatchLocked(s)
			return
		}
		if s.batchTimer == nil {
			s.batchTimer = time.AfterFunc(s.batchWindow, func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				b.flushBatchLocked(s)
			})
		} else {
			s.batchTimer.Reset(s.batchWindow)
		}
	case s.debounce > 0:
		ev := e
		s.pending = &ev
		if s.timer == nil {
			s.timer = time.AfterFunc(s.debounce, func() {
				s.mu.Lock()
				pending := s.pending
				s.pending = nil
				s.mu.Unlock()
				if pending != nil {
					b.invoke(s, *pending)
				}
			})
		} else {
			s.timer.Reset(s.debounce)
		}
	default:
		b.invoke(s, e)
	}
}

// flushBatchLocked delivers and clears the current batch. Caller holds s.mu.
func (b *Bus) flushBatchLocked(s *subscriber) {
	if len(s.batch) == 0 {
		return
	}
	batch := s.batch
	s.batch = nil
	if s.batchTimer != nil {
		s.batchTimer.Stop()
	}
	fn := s.batchFn
	s.mu.Unlock()
	b.safeCallBatch(s.eventType, fn, batch)
	s.mu.Lock()
}

func (b *Bus) invoke(s *subscriber, e Event) {
	b.safeCall(s.eventType, s.plain, e)
}

// safeCall and safeCallBatch guarantee a panicking handler never affects
// sibling handlers or pending emissions.
func (b *Bus) safeCall(t Type, fn Handler, e Event) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.reportError(t, r)
		}
	}()
	fn(e)
}

func (b *Bus) safeCallBatch(t Type, fn BatchHandler, batch []Event) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.reportError(t, r)
		}
	}()
	fn(batch)
}

func (b *Bus) reportError(t Type, r any) {
	if b.onError == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = panicError{r}
	}
	b.onError(t, err)
}

type panicError struct{ v any }

func (p panicError) Error() string { return "eventbus: handler panicked" }

func (b *Bus) record(e Event) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, e)
	if len(b.history) > b.histCap {
		b.history = b.history[len(b.history)-b.histCap:]
	}
}

// RecentEvents returns the last k events (or fewer if history is shorter),
// oldest first, for diagnostics.
func (b *Bus) RecentEvents(k int) []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	if k <= 0 || k > len(b.history) {
		k = len(b.history)
	}
	out := make([]Event, k)
	copy(out, b.history[len(b.history)-k:])
	return out
}
