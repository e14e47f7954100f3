// Package stream fans persisted history records out to in-process
// subscribers for real-time observability.
package stream

import (
	"sync"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

// Event is one record delivery to a subscriber.
type Event struct {
	Type      record.Type   `json:"type"`
	SessionID string        `json:"session_id"`
	Record    record.Record `json:"record"`
}

// Broker manages record subscribers. Publishing never blocks: a
// subscriber that falls behind its buffer misses events.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]chan Event
}

// NewBroker creates a new record broker.
func NewBroker() *Broker {
	return &Broker{clients: make(map[string]chan Event)}
}

// Subscribe creates a new subscription channel. Subscribing again
// under the same id replaces and closes the previous channel.
func (b *Broker) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.clients[id]; ok {
		close(old)
	}
	ch := make(chan Event, 64)
	b.clients[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
	}
}

// Publish fans rec out to every subscriber. Safe to call on a nil
// broker so wiring can leave streaming off.
func (b *Broker) Publish(rec record.Record) {
	if b == nil || rec == nil {
		return
	}
	evt := Event{Type: rec.Type(), SessionID: rec.Session(), Record: rec}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}
