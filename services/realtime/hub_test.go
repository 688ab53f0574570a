package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestUserReceivesOwnEvents(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("u1", false)
	defer sub.Close()

	hub.Publish(Event{Type: "order_updated", UserID: "u1"})
	ev := receive(t, sub)
	require.Equal(t, "order_updated", ev.Type)
	require.False(t, ev.Timestamp.IsZero())
}

func TestUserDoesNotReceiveOthersEvents(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("u1", false)
	defer sub.Close()

	hub.Publish(Event{Type: "order_updated", UserID: "u2"})
	hub.Publish(Event{Type: "provider_sync", UserID: ""})
	hub.Publish(Event{Type: "order_updated", UserID: "u1"})

	ev := receive(t, sub)
	require.Equal(t, "u1", ev.UserID)
}

func TestAdminReceivesEverything(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("admin1", true)
	defer sub.Close()

	hub.Publish(Event{Type: "order_updated", UserID: "u2"})
	hub.Publish(Event{Type: "provider_sync"})

	require.Equal(t, "order_updated", receive(t, sub).Type)
	require.Equal(t, "provider_sync", receive(t, sub).Type)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("u1", false)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(Event{Type: "order_updated", UserID: "u1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("u1", false)

	sub.Close()
	sub.Close()
	require.Zero(t, hub.Subscribers())

	// Publishing after close must not panic.
	hub.Publish(Event{Type: "order_updated", UserID: "u1"})
}
