// Package realtime fans committed storage changes out to scoped snapshot
// subscriptions.
package realtime

import (
	"sync"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

// Resync is published when the change feed may have missed events, for
// example after a reconnect. Every subscriber re-queries.
var Resync = models.ChangeEvent{}

// Filter selects the events a subscriber cares about.
type Filter func(models.ChangeEvent) bool

type subscriber struct {
	filter Filter
	signal chan struct{}
}

// Broker is an in-process fan-out. Signals coalesce: a subscriber that has
// not consumed its last signal is not signalled again.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

// NewBroker builds an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscriber)}
}

// Publish signals every subscriber whose filter accepts event. Resync
// reaches everyone.
func (b *Broker) Publish(event models.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if event != Resync && !sub.filter(event) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers filter. The returned release func is safe to call more
// than once.
func (b *Broker) Subscribe(filter Filter) (<-chan struct{}, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{filter: filter, signal: make(chan struct{}, 1)}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.signal, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len reports the number of live subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
