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

func msg(id, conversationID, senderID, content string, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
}

func selectAndLoad(t *testing.T, v *View, conversationID string) {
	t.Helper()
	ctx := context.Background()
	v.selectConversation(ctx, conversationID)
	v.commitMessages(ctx, waitLoad(t, v, loadMessageHistory))
}

func TestLateArrivalKeepsCreatedAtOrder(t *testing.T) {
	t0 := testBase.Add(-2 * time.Minute)
	t1 := testBase.Add(-time.Minute)

	msgStore := newStubMessageStore()
	msgStore.msgs["c1"] = []model.Message{msg("ma", "c1", "me", "hi", t1)}

	v, push := newTestView(t, Stores{Messages: msgStore})
	selectAndLoad(t, v, "c1")

	// B's "hello" was created before A's "hi" but its notification arrives
	// after; reconciled order must follow created_at, not arrival.
	v.appendMessage(context.Background(), msg("mb", "c1", "u2", "hello", t0))

	if len(v.messages.items) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(v.messages.items))
	}
	if v.messages.items[0].ID != "mb" || v.messages.items[1].ID != "ma" {
		t.Fatalf("order = [%s, %s], want [mb, ma]",
			v.messages.items[0].ID, v.messages.items[1].ID)
	}

	// The out-of-order arrival re-pushed the whole history rather than
	// appending.
	if push.count(event.MessageHistory) != 2 {
		t.Fatalf("expected 2 history pushes, got %d", push.count(event.MessageHistory))
	}
}

func TestInOrderArrivalAppends(t *testing.T) {
	msgStore := newStubMessageStore()
	msgStore.msgs["c1"] = []model.Message{msg("ma", "c1", "me", "hi", testBase.Add(-time.Minute))}

	v, push := newTestView(t, Stores{Messages: msgStore})
	selectAndLoad(t, v, "c1")

	v.appendMessage(context.Background(), msg("mb", "c1", "me", "again", testBase))

	if push.count(event.MessageNew) != 1 {
		t.Fatalf("expected 1 append push, got %d", push.count(event.MessageNew))
	}
	if push.count(event.MessageHistory) != 1 {
		t.Fatal("in-order append must not re-push history")
	}
}

func TestLoadWritesReceiptsForUnseenOnly(t *testing.T) {
	seen := model.MessageReceipt{MessageID: "m3", UserID: "me", ConversationID: "c1", SeenAt: testBase}

	msgStore := newStubMessageStore()
	m3 := msg("m3", "c1", "u2", "old", testBase.Add(-3*time.Minute))
	m3.Receipts = []model.MessageReceipt{seen}
	msgStore.msgs["c1"] = []model.Message{
		msg("m1", "c1", "u2", "unseen", testBase.Add(-time.Minute)),
		msg("m2", "c1", "me", "mine", testBase.Add(-2*time.Minute)),
		m3,
	}

	v, _ := newTestView(t, Stores{Messages: msgStore})
	selectAndLoad(t, v, "c1")

	receipts := waitReceipts(t, msgStore.receiptCh)
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}
	if receipts[0].MessageID != "m1" || receipts[0].UserID != "me" {
		t.Fatalf("unexpected receipt: %+v", receipts[0])
	}
}

func TestStaleHistoryLoadDiscarded(t *testing.T) {
	msgStore := newStubMessageStore()
	msgStore.msgs["c1"] = []model.Message{msg("m1", "c1", "u2", "old", testBase)}

	v, _ := newTestView(t, Stores{Messages: msgStore})

	ctx := context.Background()
	v.selectConversation(ctx, "c1")
	stale := waitLoad(t, v, loadMessageHistory)

	// The user switched before the first fetch resolved.
	v.selectConversation(ctx, "c2")
	v.commitMessages(ctx, stale)

	if v.messages.conversationID != "c2" {
		t.Fatalf("conversation = %q, want c2", v.messages.conversationID)
	}
	if len(v.messages.items) != 0 {
		t.Fatal("stale load committed against newer selection")
	}
}

func TestReceiptMergeIsIdempotent(t *testing.T) {
	msgStore := newStubMessageStore()
	msgStore.msgs["c1"] = []model.Message{msg("m1", "c1", "me", "hi", testBase)}

	v, push := newTestView(t, Stores{Messages: msgStore})
	selectAndLoad(t, v, "c1")

	receipt := model.MessageReceipt{MessageID: "m1", UserID: "u2", ConversationID: "c1", SeenAt: testBase}
	row, _ := json.Marshal(receipt)
	ev := feed.Event{Relation: feed.RelationReceipts, Op: feed.OpInsert, Key: "c1", Row: row}

	v.onReceiptEvent(ev)
	v.onReceiptEvent(ev)

	if got := len(v.messages.items[0].Receipts); got != 1 {
		t.Fatalf("expected 1 receipt after duplicate insert, got %d", got)
	}
	if push.count(event.MessageReceipts) != 1 {
		t.Fatalf("expected 1 receipt push, got %d", push.count(event.MessageReceipts))
	}
}

func TestDeleteNotificationRemovesMessage(t *testing.T) {
	msgStore := newStubMessageStore()
	msgStore.msgs["c1"] = []model.Message{
		msg("m1", "c1", "me", "hi", testBase.Add(-time.Minute)),
		msg("m2", "c1", "u2", "yo", testBase),
	}

	v, push := newTestView(t, Stores{Messages: msgStore})
	selectAndLoad(t, v, "c1")
	waitReceipts(t, msgStore.receiptCh) // drain the load's receipt batch

	old, _ := json.Marshal(msg("m1", "c1", "me", "hi", testBase.Add(-time.Minute)))
	v.onMessageEvent(context.Background(), feed.Event{
		Relation: feed.RelationMessages, Op: feed.OpDelete, Key: "c1", Old: old,
	})

	if len(v.messages.items) != 1 || v.messages.items[0].ID != "m2" {
		t.Fatalf("unexpected items after delete: %+v", v.messages.items)
	}
	if push.count(event.MessageRemoved) != 1 {
		t.Fatalf("expected 1 removal push, got %d", push.count(event.MessageRemoved))
	}
}

func TestAppendResolvesSenderFromParticipants(t *testing.T) {
	convStore := &stubConversationStore{
		convs: []model.Conversation{{
			ID: "c1",
			Participants: []model.Participant{
				{UserID: "me", FirstName: "Mel"},
				{UserID: "u2", FirstName: "Noa", LastName: "Kim"},
			},
		}},
	}
	msgStore := newStubMessageStore()

	v, _ := newTestView(t, Stores{Conversations: convStore, Messages: msgStore})
	loadList(t, v)
	selectAndLoad(t, v, "c1")

	// Raw feed rows carry columns only; the sender profile comes from the
	// participant list.
	v.appendMessage(context.Background(), msg("m1", "c1", "u2", "hey", testBase))

	got := v.messages.items[0]
	if got.Sender == nil || got.Sender.FirstName != "Noa" {
		t.Fatalf("sender not resolved: %+v", got.Sender)
	}
}

func TestSendRefusedForNonParticipant(t *testing.T) {
	convStore := &stubConversationStore{member: map[string]bool{}}
	msgStore := newStubMessageStore()

	v, push := newTestView(t, Stores{Conversations: convStore, Messages: msgStore})

	v.sendMessage(context.Background(), event.SendMessagePayload{ConversationID: "secret", Content: "hi"})

	if len(msgStore.inserted) != 0 {
		t.Fatalf("inserted %d messages into a conversation the sender is not in", len(msgStore.inserted))
	}
	if got := push.count(event.Notification); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}
