package session

import (
	"log"
	"sync"

	"github.com/strefethen/anthem-hub-go/internal/anthem/state"
)

// Event is published to subscribers. Implementations are ZoneChanged,
// InputsDiscovered, ConnectionChanged and DeviceFault.
type Event interface {
	isEvent()
}

// ZoneChanged reports updated attributes of one zone with a snapshot of
// the zone after the update.
type ZoneChanged struct {
	Zone    int
	Changed []state.Attribute
	State   state.ZoneState
}

// InputsDiscovered carries the final source list of a discovery round.
type InputsDiscovered struct {
	Inputs []string
}

// ConnectionChanged reports a session state transition.
type ConnectionChanged struct {
	State State
}

// DeviceFault is a "!I" or "!E" reply from the receiver.
type DeviceFault struct {
	Code string
	Line string
}

func (ZoneChanged) isEvent()       {}
func (InputsDiscovered) isEvent()  {}
func (ConnectionChanged) isEvent() {}
func (DeviceFault) isEvent()       {}

// broker fans events out to subscribers without blocking the publisher.
type broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *log.Logger
	label  string
}

func newBroker(logger *log.Logger, label string) *broker {
	return &broker{
		subs:   make(map[int]chan Event),
		logger: logger,
		label:  label,
	}
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Printf("ANTHEM: [%s] Subscriber %d is full, dropping %T", b.label, id, ev)
		}
	}
}

// closeAll closes every subscriber channel.
func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
