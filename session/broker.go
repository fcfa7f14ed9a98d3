package session

import (
	"sync"

	"github.com/jrsteele09/go-session-client/authmodel"
)

// Listener receives session events. It runs synchronously on the goroutine
// that caused the transition and must not call Controller mutators or
// Subscribe from inside the callback.
type Listener func(authmodel.Event)

type subscriber struct {
	id int
	fn Listener
}

// broker fans events out to subscribers in registration order
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func (b *broker) add(fn Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, fn: fn})
	return b.nextID
}

func (b *broker) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *broker) deliver(ev authmodel.Event) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (b *broker) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscribe registers listener. It is called once immediately with an
// EventSnapshot of the current state, then once per transition, in the order
// transitions are applied. The returned function unsubscribes; calling it
// more than once is harmless.
func (c *Controller) Subscribe(listener Listener) (unsubscribe func()) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	id := c.broker.add(listener)
	listener(authmodel.Event{Type: authmodel.EventSnapshot, State: c.State()})

	var once sync.Once
	return func() {
		once.Do(func() { c.broker.remove(id) })
	}
}
