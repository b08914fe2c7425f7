package engine

import (
	"slices"
	"sync"
	"sync/atomic"
)

// envelope tags an event with the session that produced it. Only events of
// the active session are delivered.
type envelope struct {
	session uint64
	event   Event
}

// Subscription is a registered listener. Each one owns a bounded queue drained
// by its own goroutine, so a slow listener only delays itself.
type Subscription struct {
	bus     *bus
	kinds   uint32 // bitmask of Kind, 0 means all
	fn      func(Event)
	queue   chan envelope
	quit    chan struct{}
	once    sync.Once
	dropped atomic.Uint64

	// mu makes the session check and the decision to call fn one step with
	// respect to retire.
	mu sync.Mutex
}

// Unsubscribe stops delivery. It is idempotent and may be called from inside
// the listener. A call that is already running completes.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.quit)
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(k Kind) bool {
	return s.kinds == 0 || s.kinds&(1<<k) != 0
}

func (s *Subscription) deliver() {
	for {
		select {
		case <-s.quit:
			return
		case env := <-s.queue:
			if s.commit(env) {
				s.fn(env.event)
			}
		}
	}
}

// commit reports whether env may be handed to the listener: the subscription
// is live and env belongs to the active session. Once retire has returned, no
// envelope of the retired session commits.
func (s *Subscription) commit(env envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.quit:
		return false
	default:
	}
	return env.session == s.bus.active.Load()
}

// bus fans events out to subscriptions without ever blocking the publisher.
type bus struct {
	mu        sync.RWMutex
	subs      []*Subscription
	queueSize int
	active    atomic.Uint64
}

func newBus(queueSize int) *bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &bus{queueSize: queueSize}
}

func (b *bus) subscribe(fn func(Event), kinds ...Kind) *Subscription {
	s := &Subscription{
		bus:   b,
		fn:    fn,
		queue: make(chan envelope, b.queueSize),
		quit:  make(chan struct{}),
	}
	for _, k := range kinds {
		s.kinds |= 1 << k
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go s.deliver()
	return s
}

func (b *bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(x *Subscription) bool { return x == s })
}

// publish queues ev for every interested subscription. Full queues drop.
func (b *bus) publish(session uint64, ev Event) {
	env := envelope{session: session, event: ev}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(ev.Kind()) {
			continue
		}
		select {
		case s.queue <- env:
		default:
			s.dropped.Add(1)
		}
	}
}

// activate makes session the one whose events are delivered.
func (b *bus) activate(session uint64) {
	b.active.Store(session)
}

// retire discards whatever session still has queued. It returns after every
// delivery that was deciding on an event of session has decided.
func (b *bus) retire(session uint64) {
	if b.active.CompareAndSwap(session, 0) {
		b.settle()
	}
}

// deactivate discards everything queued.
func (b *bus) deactivate() {
	b.active.Store(0)
	b.settle()
}

// settle waits out commits that read the previous active session. The lock is
// never held while a listener runs, so a listener that stops the engine does
// not wait on itself.
func (b *bus) settle() {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.mu.Lock()
		s.mu.Unlock()
	}
}

func (b *bus) close() {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}
