package feed

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestKeyedDelivery(t *testing.T) {
	f := New(zap.NewNop())

	a := f.Subscribe(RelationMessages, "conv-a")
	b := f.Subscribe(RelationMessages, "conv-b")
	defer a.Close()
	defer b.Close()

	f.Insert(RelationMessages, "conv-a", map[string]string{"id": "m1"})

	ev := recv(t, a)
	if ev.Op != OpInsert || ev.Key != "conv-a" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	assertEmpty(t, b)
}

func TestWildcardDelivery(t *testing.T) {
	f := New(zap.NewNop())

	all := f.Subscribe(RelationCalls, AllKeys)
	defer all.Close()

	f.Insert(RelationCalls, "conv-a", map[string]string{"id": "c1"})
	f.Update(RelationCalls, "conv-b", map[string]string{"id": "c2"})

	if ev := recv(t, all); ev.Key != "conv-a" {
		t.Fatalf("expected conv-a event, got %+v", ev)
	}
	if ev := recv(t, all); ev.Key != "conv-b" || ev.Op != OpUpdate {
		t.Fatalf("expected conv-b update, got %+v", ev)
	}
}

func TestRelationIsolation(t *testing.T) {
	f := New(zap.NewNop())

	sub := f.Subscribe(RelationTyping, "conv-a")
	defer sub.Close()

	f.Insert(RelationMessages, "conv-a", map[string]string{"id": "m1"})
	assertEmpty(t, sub)
}

func TestCloseStopsDelivery(t *testing.T) {
	f := New(zap.NewNop())

	sub := f.Subscribe(RelationMessages, "conv-a")
	sub.Close()
	sub.Close() // idempotent

	f.Insert(RelationMessages, "conv-a", map[string]string{"id": "m1"})
	assertEmpty(t, sub)
}

func TestFullSubscriberDoesNotBlockPublisher(t *testing.T) {
	f := New(zap.NewNop())

	sub := f.Subscribe(RelationMessages, "conv-a")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBuffer*2; i++ {
			f.Insert(RelationMessages, "conv-a", map[string]int{"seq": i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}

	// The buffer holds the first events; the overflow was dropped.
	if ev := recv(t, sub); ev.Relation != RelationMessages {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
