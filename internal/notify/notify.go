// Package notify is a small typed publish/subscribe channel used by the
// handshake engines to report progress and lifecycle events.
package notify

import (
	"fmt"
	"sync"
)

// Kind identifies an event.
type Kind int

const (
	Connected Kind = iota
	Disconnected
	StatusChanged
	MethodAccepted
	CredentialsAccepted
	HandshakeAccepted
	RequestAccepted
	Failed
)

var kindNames = [...]string{
	Connected:           "Connected",
	Disconnected:        "Disconnected",
	StatusChanged:       "StatusChanged",
	MethodAccepted:      "MethodAccepted",
	CredentialsAccepted: "CredentialsAccepted",
	HandshakeAccepted:   "HandshakeAccepted",
	RequestAccepted:     "RequestAccepted",
	Failed:              "Failed",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is delivered to subscribers. Status is set for StatusChanged, Err for
// Failed.
type Event struct {
	Kind   Kind
	Status string
	Err    error
}

type subscriber struct {
	id int
	fn func(Event)
}

// Bus fans events out to subscribers registered per kind. Handlers run
// synchronously on the publishing goroutine in registration order. The zero
// value is ready to use and a Bus is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscriber
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn for events of kind k and returns a function that
// removes the registration.
func (b *Bus) Subscribe(k Kind, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[Kind][]subscriber)
	}
	b.nextID++
	id := b.nextID
	b.subs[k] = append(b.subs[k], subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(k, id) })
	}
}

func (b *Bus) unsubscribe(k Kind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[k]
	for i, s := range subs {
		if s.id == id {
			b.subs[k] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every subscriber of e.Kind.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.Kind]
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Status publishes a StatusChanged event with the given text.
func (b *Bus) Status(format string, args ...any) {
	b.Publish(Event{Kind: StatusChanged, Status: fmt.Sprintf(format, args...)})
}
