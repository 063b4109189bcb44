package authclient

import (
	"context"
	"sync"
)

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
	InitialSession
	TokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	case InitialSession:
		return "INITIAL_SESSION"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	}
	return "UNKNOWN"
}

// Event carries the session current at emission, nil when there is none.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Subscription is a cancellable, unbounded stream of events. Each event emitted after
// Subscribe is delivered exactly once, in emission order.
type Subscription struct {
	mu      sync.Mutex
	queue   []Event
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(release func()) *Subscription {
	return &Subscription{
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		release: release,
	}
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest queued event without blocking.
func (s *Subscription) Next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true
}

// Wait blocks until an event is available, the subscription is cancelled or ctx is done.
func (s *Subscription) Wait(ctx context.Context) (Event, bool) {
	for {
		if e, ok := s.Next(); ok {
			return e, true
		}
		select {
		case <-s.notify:
		case <-s.done:
			return Event{}, false
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// Done is closed once Unsubscribe has been called.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops delivery and drops queued events. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.queue = nil
		s.mu.Unlock()
		if s.release != nil {
			s.release()
		}
	})
}

type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
}

func (b *broadcaster) subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = map[int]*Subscription{}
	}
	id := b.nextID
	b.nextID++
	sub := newSubscription(func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	})
	b.subs[id] = sub
	return sub
}

// emit delivers under the broadcaster lock so concurrent emitters keep a single order.
func (b *broadcaster) emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	for _, id := range ids {
		b.subs[id].push(e)
	}
}
