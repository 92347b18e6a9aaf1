package transport

import (
	"context"
	"sync"

	"github.com/1ureka/relaypeer/internal/relay"
)

// eventBuffer is the capacity of the channel returned by Events.
const eventBuffer = 256

// eventPump decouples event producers from the consumer. post never blocks,
// even when called from the goroutine that drains Events, and events keep
// the order in which they were posted.
type eventPump struct {
	out chan relay.Event

	mu      sync.Mutex
	pending []relay.Event
	wake    chan struct{}
}

func newEventPump() *eventPump {
	return &eventPump{
		out:  make(chan relay.Event, eventBuffer),
		wake: make(chan struct{}, 1),
	}
}

func (p *eventPump) post(ev relay.Event) {
	p.mu.Lock()
	p.pending = append(p.pending, ev)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run forwards pending events to out until ctx is cancelled.
func (p *eventPump) run(ctx context.Context) {
	for {
		p.mu.Lock()
		batch := p.pending
		p.pending = nil
		p.mu.Unlock()

		for _, ev := range batch {
			select {
			case p.out <- ev:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-p.wake:
		case <-ctx.Done():
			return
		}
	}
}
