package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/die-net/socksdial/internal/notify"
)

var allKinds = []notify.Kind{
	notify.Connected,
	notify.Disconnected,
	notify.StatusChanged,
	notify.MethodAccepted,
	notify.CredentialsAccepted,
	notify.HandshakeAccepted,
	notify.RequestAccepted,
	notify.Failed,
}

// Events records everything published on a bus.
type Events struct {
	mu     sync.Mutex
	events []notify.Event
	ch     chan notify.Event
}

// RecordEvents subscribes to every kind on bus.
func RecordEvents(bus *notify.Bus) *Events {
	e := &Events{ch: make(chan notify.Event, 64)}
	for _, k := range allKinds {
		bus.Subscribe(k, e.add)
	}
	return e
}

func (e *Events) add(ev notify.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()

	select {
	case e.ch <- ev:
	default:
	}
}

// Count returns how many events of kind k were published.
func (e *Events) Count(k notify.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, ev := range e.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

// Statuses returns the status texts in publication order.
func (e *Events) Statuses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []string
	for _, ev := range e.events {
		if ev.Kind == notify.StatusChanged {
			out = append(out, ev.Status)
		}
	}
	return out
}

// WaitFor blocks until an event of one of kinds is published and returns it.
func (e *Events) WaitFor(t *testing.T, timeout time.Duration, kinds ...notify.Kind) notify.Event {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case ev := <-e.ch:
			for _, k := range kinds {
				if ev.Kind == k {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("no %v event within %v", kinds, timeout)
			return notify.Event{}
		}
	}
}
