package events

import (
	"encoding/json"
	"sync"
)

// subscriberBuffer is how many events a subscriber may fall behind before
// publishes to it start getting dropped.
const subscriberBuffer = 16

// EventHub fans daemon events out to any number of subscribers. Publishing
// never blocks: a subscriber that stops draining its channel misses events
// rather than stalling the suspend path.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]bool
}

func NewEventHub() *EventHub {
	return &EventHub{subs: map[chan Event]bool{}}
}

// Subscribe registers a new subscriber and returns its channel. The caller
// must eventually hand the channel back to Unsubscribe.
func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = true
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing a
// channel twice is harmless.
func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.subs[ch] {
		return
	}
	delete(h.subs, ch)
	close(ch)
}

// Publish encodes payload as JSON and delivers it to every current
// subscriber. Payloads that fail to encode are dropped, as are deliveries to
// subscribers whose buffers are full. A nil hub discards everything, so
// components may run without one.
func (h *EventHub) Publish(name Name, payload any) {
	if h == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ev := Event{Name: name, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default: // subscriber is behind, drop
		}
	}
}
