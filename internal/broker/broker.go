// Package broker fans dispatch events out to connected clients.
//
// Clients subscribe as a requester, a provider or an operator. Requesters
// and providers only see events addressed to their own ID; operators see
// everything addressed to the operator role. Delivery never blocks: a
// client whose buffer is full misses the event.
package broker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/metrics"
)

// bufferSize is the per-client channel capacity.
const bufferSize = 10

// Subscription is one connected client.
type Subscription struct {
	Recipient domain.Recipient
	Events    <-chan domain.Event

	ch chan domain.Event
}

// Broker manages role-segmented event distribution.
type Broker struct {
	// operators receive every operator-addressed event
	operators map[chan domain.Event]struct{}

	// requesters and providers are keyed by principal ID
	requesters map[uuid.UUID]map[chan domain.Event]struct{}
	providers  map[uuid.UUID]map[chan domain.Event]struct{}

	closed bool
	mu     sync.RWMutex
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		operators:  make(map[chan domain.Event]struct{}),
		requesters: make(map[uuid.UUID]map[chan domain.Event]struct{}),
		providers:  make(map[uuid.UUID]map[chan domain.Event]struct{}),
	}
}

// Subscribe registers a client for the events addressed to p.
func (b *Broker) Subscribe(p domain.Principal) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, bufferSize)
	sub := &Subscription{
		Recipient: domain.Recipient{Role: p.Role, ID: p.ID},
		Events:    ch,
		ch:        ch,
	}
	if b.closed {
		close(ch)
		return sub
	}

	switch p.Role {
	case domain.RoleOperator:
		b.operators[ch] = struct{}{}
	case domain.RoleRequester:
		addClient(b.requesters, p.ID, ch)
	case domain.RoleProvider:
		addClient(b.providers, p.ID, ch)
	default:
		close(ch)
		return sub
	}

	metrics.BroadcastSubscribers.WithLabelValues(string(p.Role)).Inc()
	return sub
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed bool
	switch sub.Recipient.Role {
	case domain.RoleOperator:
		if _, ok := b.operators[sub.ch]; ok {
			delete(b.operators, sub.ch)
			removed = true
		}
	case domain.RoleRequester:
		removed = removeClient(b.requesters, sub.Recipient.ID, sub.ch)
	case domain.RoleProvider:
		removed = removeClient(b.providers, sub.Recipient.ID, sub.ch)
	}

	if removed {
		close(sub.ch)
		metrics.BroadcastSubscribers.WithLabelValues(string(sub.Recipient.Role)).Dec()
	}
}

// Notify delivers ev to the clients of to.
func (b *Broker) Notify(to domain.Recipient, ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch to.Role {
	case domain.RoleOperator:
		for ch := range b.operators {
			b.send(to.Role, ch, ev)
		}
	case domain.RoleRequester:
		for ch := range b.requesters[to.ID] {
			b.send(to.Role, ch, ev)
		}
	case domain.RoleProvider:
		for ch := range b.providers[to.ID] {
			b.send(to.Role, ch, ev)
		}
	}
}

// PublishToAll sends ev to every connected client.
func (b *Broker) PublishToAll(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.operators {
		b.send(domain.RoleOperator, ch, ev)
	}
	for _, clients := range b.requesters {
		for ch := range clients {
			b.send(domain.RoleRequester, ch, ev)
		}
	}
	for _, clients := range b.providers {
		for ch := range clients {
			b.send(domain.RoleProvider, ch, ev)
		}
	}
}

// Close disconnects every client. Later subscriptions are closed at once.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for ch := range b.operators {
		close(ch)
	}
	for _, group := range []map[uuid.UUID]map[chan domain.Event]struct{}{b.requesters, b.providers} {
		for _, clients := range group {
			for ch := range clients {
				close(ch)
			}
		}
	}
	b.operators = make(map[chan domain.Event]struct{})
	b.requesters = make(map[uuid.UUID]map[chan domain.Event]struct{})
	b.providers = make(map[uuid.UUID]map[chan domain.Event]struct{})
	metrics.BroadcastSubscribers.Reset()
}

// Stats returns the number of connected clients per role.
func (b *Broker) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]int{
		string(domain.RoleOperator):  len(b.operators),
		string(domain.RoleRequester): countClients(b.requesters),
		string(domain.RoleProvider):  countClients(b.providers),
	}
}

func (b *Broker) send(role domain.Role, ch chan domain.Event, ev domain.Event) {
	select {
	case ch <- ev:
	default:
		metrics.BroadcastDropped.WithLabelValues(string(role)).Inc()
	}
}

func addClient(m map[uuid.UUID]map[chan domain.Event]struct{}, id uuid.UUID, ch chan domain.Event) {
	if _, ok := m[id]; !ok {
		m[id] = make(map[chan domain.Event]struct{})
	}
	m[id][ch] = struct{}{}
}

func removeClient(m map[uuid.UUID]map[chan domain.Event]struct{}, id uuid.UUID, ch chan domain.Event) bool {
	clients, ok := m[id]
	if !ok {
		return false
	}
	if _, ok := clients[ch]; !ok {
		return false
	}
	delete(clients, ch)
	if len(clients) == 0 {
		delete(m, id)
	}
	return true
}

func countClients(m map[uuid.UUID]map[chan domain.Event]struct{}) int {
	n := 0
	for _, clients := range m {
		n += len(clients)
	}
	return n
}
