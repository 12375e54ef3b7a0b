// Package eventbus is the daemon's internal pub/sub, used to decouple the
// dispatcher from observers like the sweeper and diagnostics commands
// (§4.1, §4.11). Adapted from the teacher's internal/event bus: kept the
// watermill gochannel infrastructure and direct-call subscriber tracking,
// dropped the package-level global singleton in favor of one bus per
// daemon instance, and replaced the HTTP-API event vocabulary with the
// daemon's own lifecycle events.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Kind enumerates the daemon-internal events other components can observe.
type Kind string

const (
	SessionStarted   Kind = "session.started"
	SessionEnded     Kind = "session.ended"
	CommandDecided   Kind = "security.decided"
	RuleLearned      Kind = "security.learned"
	PackInjected     Kind = "injection.made"
	AgentRegistered  Kind = "agent.registered"
	AgentSwept       Kind = "agent.swept"
	DaemonShutdown   Kind = "daemon.shutdown"
)

// Event is one published occurrence.
type Event struct {
	Kind Kind
	Data any
}

// Handler receives events.
type Handler func(Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a per-daemon pub/sub instance. Watermill's gochannel backs it for
// buffering/middleware headroom; direct subscriber dispatch preserves Go
// type information the way the teacher's bus does.
type Bus struct {
	mu          sync.RWMutex
	pubsub      *gochannel.GoChannel
	subscribers map[Kind][]subscriber
	global      []subscriber
	nextID      uint64
	closed      bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64, Persistent: false},
			watermill.NopLogger{},
		),
		subscribers: make(map[Kind][]subscriber),
	}
}

// Subscribe registers fn for events of one kind and returns an unsubscribe
// function.
func (b *Bus) Subscribe(kind Kind, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers[kind] = append(b.subscribers[kind], subscriber{id: id, fn: fn})
	return func() { b.unsubscribe(kind, id) }
}

// SubscribeAll registers fn for every event kind.
func (b *Bus) SubscribeAll(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, subscriber{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.global {
		if s.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber synchronously.
// Handlers run in the caller's goroutine — the dispatcher's own
// per-connection goroutine already provides concurrency, so a sync call
// here avoids unbounded goroutine fan-out under load.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(b.subscribers[ev.Kind])+len(b.global))
	for _, s := range b.subscribers[ev.Kind] {
		handlers = append(handlers, s.fn)
	}
	for _, s := range b.global {
		handlers = append(handlers, s.fn)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Close marks the bus closed; further Subscribe/Publish calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.pubsub.Close()
}
