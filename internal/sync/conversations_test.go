package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"snipchat/internal/event"
	"snipchat/internal/model"
)

func conv(id string, participants ...string) model.Conversation {
	c := model.Conversation{ID: id, CreatedAt: testBase.Add(-time.Hour)}
	for _, p := range participants {
		c.Participants = append(c.Participants, model.Participant{UserID: p, FirstName: p})
	}
	return c
}

func summary(conversationID, messageID string, at time.Time) model.MessageSummary {
	return model.MessageSummary{
		ConversationID: conversationID,
		MessageID:      messageID,
		SenderID:       "u2",
		Content:        "hey",
		CreatedAt:      at,
	}
}

func loadList(t *testing.T, v *View) {
	t.Helper()
	ctx := context.Background()
	v.reloadConversations(ctx)
	v.commitConversations(ctx, waitLoad(t, v, loadConversationList))
}

func TestConversationListOrdering(t *testing.T) {
	convStore := &stubConversationStore{
		convs: []model.Conversation{
			conv("c1", "me", "u2"),
			conv("c2", "me", "u3"),
			conv("c3", "me", "u4"),
		},
	}
	msgStore := newStubMessageStore()
	msgStore.summaries["c1"] = summary("c1", "m1", testBase.Add(-10*time.Minute))
	msgStore.summaries["c2"] = summary("c2", "m2", testBase.Add(-time.Minute))
	// c3 has no messages and must sort to the bottom.

	v, push := newTestView(t, Stores{Conversations: convStore, Messages: msgStore})
	loadList(t, v)

	got := make([]string, 0, len(v.conversations.items))
	for _, cv := range v.conversations.items {
		got = append(got, cv.ID)
	}
	want := []string{"c2", "c1", "c3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list order = %v, want %v", got, want)
		}
	}

	if push.count(event.ConversationList) != 1 {
		t.Fatalf("expected one list push, got %d", push.count(event.ConversationList))
	}
}

func TestLoadErrorPreservesPreviousList(t *testing.T) {
	convStore := &stubConversationStore{convs: []model.Conversation{conv("c1", "me", "u2")}}

	v, push := newTestView(t, Stores{Conversations: convStore})
	loadList(t, v)

	if len(v.conversations.items) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(v.conversations.items))
	}

	convStore.err = errors.New("backend unavailable")
	loadList(t, v)

	if len(v.conversations.items) != 1 {
		t.Fatal("failed reload overwrote the previous list")
	}
	if push.count(event.Notification) != 1 {
		t.Fatalf("expected an error notification, got %d", push.count(event.Notification))
	}
	if push.count(event.ConversationList) != 1 {
		t.Fatal("failed reload must not push a new list")
	}
}

func TestSelectionFallsBackWhenConversationVanishes(t *testing.T) {
	convStore := &stubConversationStore{
		convs: []model.Conversation{conv("c1", "me", "u2"), conv("c2", "me", "u3")},
	}

	v, push := newTestView(t, Stores{Conversations: convStore})
	loadList(t, v)

	ctx := context.Background()
	v.selectConversation(ctx, "c1")
	if v.conversations.selectedID != "c1" {
		t.Fatalf("selected = %q, want c1", v.conversations.selectedID)
	}

	// c1 is deleted; the refreshed list no longer carries it.
	convStore.convs = []model.Conversation{conv("c2", "me", "u3")}
	loadList(t, v)

	if v.conversations.selectedID != "c2" {
		t.Fatalf("selection after deletion = %q, want c2", v.conversations.selectedID)
	}

	// Nothing left at all: selection falls to none, never a dangling id.
	convStore.convs = nil
	loadList(t, v)

	if v.conversations.selectedID != "" {
		t.Fatalf("selection with empty list = %q, want none", v.conversations.selectedID)
	}

	payload, ok := push.last(event.ConversationSelected)
	if !ok {
		t.Fatal("no selection push recorded")
	}
	if sel := payload.(event.SelectConversationPayload); sel.ConversationID != "" {
		t.Fatalf("last selection push = %q, want none", sel.ConversationID)
	}
}

func TestBumpSummaryReordersWithoutReload(t *testing.T) {
	convStore := &stubConversationStore{
		convs: []model.Conversation{conv("c1", "me", "u2"), conv("c2", "me", "u3")},
	}
	msgStore := newStubMessageStore()
	msgStore.summaries["c1"] = summary("c1", "m1", testBase.Add(-time.Minute))
	msgStore.summaries["c2"] = summary("c2", "m2", testBase.Add(-10*time.Minute))

	v, push := newTestView(t, Stores{Conversations: convStore, Messages: msgStore})
	loadList(t, v)

	if v.conversations.items[0].ID != "c1" {
		t.Fatalf("expected c1 first, got %s", v.conversations.items[0].ID)
	}

	// A new message in c2 moves it to the top, no reload involved.
	v.bumpSummary(model.Message{
		ID: "m3", ConversationID: "c2", SenderID: "u3", Content: "new", CreatedAt: testBase,
	})

	if v.conversations.items[0].ID != "c2" {
		t.Fatalf("expected c2 first after bump, got %s", v.conversations.items[0].ID)
	}
	if push.count(event.ConversationList) != 2 {
		t.Fatalf("expected 2 list pushes, got %d", push.count(event.ConversationList))
	}

	// A late notification for an older message never regresses the summary.
	v.bumpSummary(model.Message{
		ID: "m0", ConversationID: "c2", SenderID: "u3", Content: "old", CreatedAt: testBase.Add(-time.Hour),
	})

	if got := v.findConversation("c2").Latest.MessageID; got != "m3" {
		t.Fatalf("summary regressed to %s", got)
	}
}

func TestSelectRefusedForNonParticipant(t *testing.T) {
	convStore := &stubConversationStore{member: map[string]bool{}}
	msgStore := newStubMessageStore()
	msgStore.msgs["secret"] = []model.Message{msg("m1", "secret", "u9", "private text", testBase)}

	v, push := newTestView(t, Stores{Conversations: convStore, Messages: msgStore})

	v.selectConversation(context.Background(), "secret")

	if v.conversations.selectedID != "" {
		t.Fatalf("selection = %q, want none", v.conversations.selectedID)
	}
	if v.receiptSub != nil || v.typingSub != nil {
		t.Fatal("subscriptions opened for a refused selection")
	}
	if push.count(event.ConversationSelected) != 0 {
		t.Fatal("selection acknowledged despite refusal")
	}
	if got := push.count(event.Notification); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
	select {
	case res := <-v.loads:
		t.Fatalf("unexpected load of kind %d for a refused selection", res.kind)
	case <-time.After(50 * time.Millisecond):
	}
}
