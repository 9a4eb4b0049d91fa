package api

import (
	"sync"
)

// SSEEvent is one message on a trailer's live stream.
type SSEEvent struct {
	Type string
	Data map[string]any
}

// Broker fans trailer events out to in-process subscribers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // trailerId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(trailerID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[trailerID] == nil {
		b.subs[trailerID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[trailerID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(trailerID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[trailerID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, trailerID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish delivers to every subscriber; a slow consumer drops the
// message rather than blocking the publisher.
func (b *Broker) Publish(trailerID string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[trailerID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
