package broker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

var at = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func event(typ domain.EventType) domain.Event {
	return domain.NewEvent(typ, uuid.New(), at, nil)
}

func receive(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.Event{}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestBroker_ProviderIsolation(t *testing.T) {
	b := New()
	a := domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}
	other := domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}
	subA := b.Subscribe(a)
	subOther := b.Subscribe(other)

	b.Notify(domain.ProviderRecipient(a.ID), event(domain.EventNewRequest))

	assert.Equal(t, domain.EventNewRequest, receive(t, subA).Type)
	assertEmpty(t, subOther)
}

func TestBroker_RoleSegmentation(t *testing.T) {
	b := New()
	id := uuid.New()
	requester := b.Subscribe(domain.Principal{ID: id, Role: domain.RoleRequester})
	provider := b.Subscribe(domain.Principal{ID: id, Role: domain.RoleProvider})

	b.Notify(domain.RequesterRecipient(id), event(domain.EventStatusChanged))

	assert.Equal(t, domain.EventStatusChanged, receive(t, requester).Type)
	assertEmpty(t, provider)
}

func TestBroker_OperatorsReceiveBroadcast(t *testing.T) {
	b := New()
	op1 := b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleOperator})
	op2 := b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleOperator})

	b.Notify(domain.Operators(), event(domain.EventEscalated))

	assert.Equal(t, domain.EventEscalated, receive(t, op1).Type)
	assert.Equal(t, domain.EventEscalated, receive(t, op2).Type)
}

func TestBroker_FullBufferDropsWithoutBlocking(t *testing.T) {
	b := New()
	p := domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}
	sub := b.Subscribe(p)

	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+5; i++ {
			b.Notify(domain.RequesterRecipient(p.ID), event(domain.EventLocationUpdate))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
	assert.Len(t, sub.Events, bufferSize)
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	p := domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}
	sub := b.Subscribe(p)
	require.Equal(t, 1, b.Stats()["provider"])

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Equal(t, 0, b.Stats()["provider"])

	// Notifying a departed client is a no-op.
	b.Notify(domain.ProviderRecipient(p.ID), event(domain.EventNewRequest))
}

func TestBroker_PublishToAll(t *testing.T) {
	b := New()
	subs := []*Subscription{
		b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleOperator}),
		b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}),
		b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}),
	}

	b.PublishToAll(event(domain.EventStatusChanged))

	for _, sub := range subs {
		assert.Equal(t, domain.EventStatusChanged, receive(t, sub).Type)
	}
}

func TestBroker_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleOperator})

	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok)

	late := b.Subscribe(domain.Principal{ID: uuid.New(), Role: domain.RoleRequester})
	_, ok = <-late.Events
	assert.False(t, ok)

	// Unsubscribing after Close must not double-close.
	b.Unsubscribe(sub)
}
