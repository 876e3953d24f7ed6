package events

import (
	"testing"
	"time"
)

func TestBus_PublishDelivers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(Event{Type: IdentityCreated, IdentityID: "user-1"})

	select {
	case ev := <-ch:
		if ev.Type != IdentityCreated {
			t.Fatalf("expected %s, got %s", IdentityCreated, ev.Type)
		}
		if ev.IdentityID != "user-1" {
			t.Fatalf("expected identity user-1, got %s", ev.IdentityID)
		}
		if ev.At.IsZero() {
			t.Fatal("expected At to be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch1, cancel1 := b.Subscribe(2)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(2)
	defer cancel2()

	b.Publish(Event{Type: TokenIssued, TokenHash: "h1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.TokenHash != "h1" {
				t.Fatalf("subscriber %d: expected hash h1, got %s", i, ev.TokenHash)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBus_SlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBus()
	defer b.Close()

	// buffer 1 y nadie consume: el segundo publish debe descartar, no bloquear
	_, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TokenRevoked, TokenHash: "h1"})
		b.Publish(Event{Type: TokenRevoked, TokenHash: "h2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_CancelClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, cancel := b.Subscribe(1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// publicar después del cancel no debe entrar en pánico
	b.Publish(Event{Type: TokenExpired, TokenHash: "h"})
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe(1)

	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after bus close")
	}

	// Subscribe después del close retorna canal cerrado
	ch2, cancel := b.Subscribe(1)
	defer cancel()
	if _, ok := <-ch2; ok {
		t.Fatal("expected closed channel when subscribing to a closed bus")
	}
}
