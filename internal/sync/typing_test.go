package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

func typingEvent(op feed.Op, row model.TypingStatus) feed.Event {
	raw, _ := json.Marshal(row)
	ev := feed.Event{Relation: feed.RelationTyping, Op: op, Key: row.ConversationID}
	if op == feed.OpDelete {
		ev.Old = raw
	} else {
		ev.Row = raw
	}
	return ev
}

func TestStaleTypingRowNeverRendered(t *testing.T) {
	v, push := newTestView(t, Stores{})
	v.resetTyping(context.Background(), "c1")

	// Upserted 4000ms ago, no delete ever observed.
	v.onTypingEvent(typingEvent(feed.OpUpdate, model.TypingStatus{
		ConversationID: "c1", UserID: "u2", LastTypedAt: testBase.Add(-4000 * time.Millisecond),
	}))

	if push.count(event.TypingUpdate) != 0 {
		t.Fatal("stale row was rendered as typing")
	}
	if _, ok := v.typing.rows["u2"]; ok {
		t.Fatal("stale row not dropped")
	}
}

func TestTypingExpiresOnSweepWithoutDelete(t *testing.T) {
	v, push := newTestView(t, Stores{})
	v.resetTyping(context.Background(), "c1")

	now := testBase
	v.now = func() time.Time { return now }

	v.onTypingEvent(typingEvent(feed.OpInsert, model.TypingStatus{
		ConversationID: "c1", UserID: "u2", LastTypedAt: testBase,
	}))

	payload, ok := push.last(event.TypingUpdate)
	if !ok {
		t.Fatal("fresh row not rendered")
	}
	if got := payload.(event.TypingUpdatePayload).UserIDs; len(got) != 1 || got[0] != "u2" {
		t.Fatalf("typing set = %v, want [u2]", got)
	}

	// The writing client crashed; no delete will ever arrive. The periodic
	// sweep must clear the indicator on its own.
	now = testBase.Add(4 * time.Second)
	v.sweepTyping()

	payload, _ = push.last(event.TypingUpdate)
	if got := payload.(event.TypingUpdatePayload).UserIDs; len(got) != 0 {
		t.Fatalf("typing set after expiry = %v, want empty", got)
	}
}

func TestOwnTypingRowExcluded(t *testing.T) {
	v, push := newTestView(t, Stores{})
	v.resetTyping(context.Background(), "c1")

	v.onTypingEvent(typingEvent(feed.OpInsert, model.TypingStatus{
		ConversationID: "c1", UserID: "me", LastTypedAt: testBase,
	}))

	if push.count(event.TypingUpdate) != 0 {
		t.Fatal("own typing row was rendered")
	}
}

func TestTypingWriterCoalescesInput(t *testing.T) {
	typingStore := newStubTypingStore()
	v, _ := newTestView(t, Stores{Typing: typingStore})

	ctx := context.Background()
	v.resetTyping(ctx, "c1")
	v.conversations.selectedID = "c1"

	// A burst of keystrokes arms the debounce once.
	v.onTypingInput()
	v.onTypingInput()
	v.onTypingInput()

	if v.typingOut.state != typingPending {
		t.Fatalf("state = %d, want pending", v.typingOut.state)
	}

	v.flushTyping(ctx)

	select {
	case row := <-typingStore.upsertCh:
		if row.ConversationID != "c1" || row.UserID != "me" || !row.LastTypedAt.Equal(testBase) {
			t.Fatalf("unexpected upsert: %+v", row)
		}
	case <-time.After(time.Second):
		t.Fatal("debounce flush wrote no row")
	}

	select {
	case row := <-typingStore.upsertCh:
		t.Fatalf("burst produced a second upsert: %+v", row)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingStopDeletesWrittenRow(t *testing.T) {
	typingStore := newStubTypingStore()
	v, _ := newTestView(t, Stores{Typing: typingStore})

	ctx := context.Background()
	v.resetTyping(ctx, "c1")
	v.conversations.selectedID = "c1"

	v.onTypingInput()
	v.flushTyping(ctx)
	<-typingStore.upsertCh

	v.onTypingStop(ctx)

	select {
	case key := <-typingStore.deleteCh:
		if key != [2]string{"c1", "me"} {
			t.Fatalf("unexpected delete: %v", key)
		}
	case <-time.After(time.Second):
		t.Fatal("stop did not delete the row")
	}
}

func TestTypingStopWithoutWriteIsSilent(t *testing.T) {
	typingStore := newStubTypingStore()
	v, _ := newTestView(t, Stores{Typing: typingStore})

	ctx := context.Background()
	v.resetTyping(ctx, "c1")
	v.conversations.selectedID = "c1"

	// Input buffered but never flushed: there is no row to delete.
	v.onTypingInput()
	v.onTypingStop(ctx)

	select {
	case key := <-typingStore.deleteCh:
		t.Fatalf("unexpected delete: %v", key)
	case <-time.After(50 * time.Millisecond):
	}
}
