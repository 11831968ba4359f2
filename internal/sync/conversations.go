package sync

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

// convListState is the conversation-list cell: every conversation the user
// participates in, joined to its latest-message summary, ordered by recency.
type convListState struct {
	items      []event.ConversationView
	selectedID string
	loading    bool
	gen        uint64
}

// reloadConversations fetches the full list plus the latest-message summary
// for each conversation, off the loop. The generation guard discards the
// result if a newer reload started in the meantime.
func (v *View) reloadConversations(ctx context.Context) {
	v.conversations.gen++
	v.conversations.loading = true
	gen := v.conversations.gen

	go func() {
		res := loadResult{kind: loadConversationList, gen: gen}

		convs, err := v.stores.Conversations.ListForUser(ctx, v.user.ID)
		if err != nil {
			res.err = err
			v.deliver(res)
			return
		}

		ids := make([]string, 0, len(convs))
		for _, c := range convs {
			ids = append(ids, c.ID)
		}

		summaries, err := v.stores.Messages.LatestSummaries(ctx, ids)
		if err != nil {
			res.err = err
			v.deliver(res)
			return
		}

		views := make([]event.ConversationView, 0, len(convs))
		for _, c := range convs {
			view := event.ConversationView{Conversation: c}
			if s, ok := summaries[c.ID]; ok {
				latest := s
				view.Latest = &latest
			}
			views = append(views, view)
		}

		res.views = views
		v.deliver(res)
	}()
}

// deliver hands a load result to the loop unless the view has shut down.
func (v *View) deliver(res loadResult) {
	select {
	case v.loads <- res:
	case <-v.done:
	}
}

// commitConversations applies a finished list load. A failed load keeps the
// previous list intact and surfaces a notification; it never overwrites
// state with nothing.
func (v *View) commitConversations(ctx context.Context, res loadResult) {
	if res.gen != v.conversations.gen {
		return
	}
	v.conversations.loading = false

	if res.err != nil {
		v.logger.Error("failed to load conversations", zap.Error(res.err))
		v.notifyError("Could not load conversations.")
		return
	}

	v.conversations.items = res.views
	sortConversationViews(v.conversations.items)
	v.push.Push(event.ConversationList, v.conversations.items)

	// Selection must never dangle: if the selected conversation vanished
	// from the refreshed list, fall back to the first one, or to none.
	if v.conversations.selectedID != "" && v.findConversation(v.conversations.selectedID) == nil {
		next := ""
		if len(v.conversations.items) > 0 {
			next = v.conversations.items[0].ID
		}
		v.selectConversation(ctx, next)
	}
}

// sortConversationViews orders by latest-message time, most recent first.
// A conversation with no messages sorts as time zero, to the bottom.
func sortConversationViews(views []event.ConversationView) {
	sort.SliceStable(views, func(i, j int) bool {
		return latestAt(views[i]).After(latestAt(views[j]))
	})
}

func latestAt(cv event.ConversationView) time.Time {
	if cv.Latest == nil {
		return time.Time{}
	}
	return cv.Latest.CreatedAt
}

func (v *View) findConversation(conversationID string) *event.ConversationView {
	for i := range v.conversations.items {
		if v.conversations.items[i].ID == conversationID {
			return &v.conversations.items[i]
		}
	}
	return nil
}

// isMember answers a conversation-membership question from the loaded list
// first, falling back to the store while the list is cold. Every intent
// that touches a conversation by id goes through this gate.
func (v *View) isMember(ctx context.Context, conversationID string) bool {
	if cv := v.findConversation(conversationID); cv != nil {
		return cv.HasParticipant(v.user.ID)
	}

	wctx, cancel := v.writeCtx(ctx)
	defer cancel()
	ok, err := v.stores.Conversations.IsParticipant(wctx, conversationID, v.user.ID)
	if err != nil {
		v.logger.Warn("membership check failed",
			zap.String("conversationId", conversationID), zap.Error(err))
		return false
	}
	return ok
}

// onConversationEvent reacts to inserts, updates, and deletes on the
// conversations relation with a full list reload. Unlike message inserts,
// these carry structural changes (membership, deletion) that a targeted
// merge cannot reconstruct from the event alone.
func (v *View) onConversationEvent(ctx context.Context, ev feed.Event) {
	v.reloadConversations(ctx)
}

// bumpSummary is the targeted merge for a message insert: update just that
// conversation's latest-message summary in place and re-sort, without a
// full reload. A late-arriving older message never regresses the summary.
func (v *View) bumpSummary(msg model.Message) {
	cv := v.findConversation(msg.ConversationID)
	if cv == nil {
		return
	}

	if cv.Latest != nil && msg.CreatedAt.Before(cv.Latest.CreatedAt) {
		return
	}

	cv.Latest = &model.MessageSummary{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	sortConversationViews(v.conversations.items)
	v.push.Push(event.ConversationList, v.conversations.items)
}

// selectConversation switches the active conversation: rescopes the
// receipt and typing subscriptions, clears per-conversation state, and
// starts the message history load. An empty id clears the selection.
func (v *View) selectConversation(ctx context.Context, conversationID string) {
	if conversationID != "" && !v.isMember(ctx, conversationID) {
		v.notifyError("You are not a participant of that conversation.")
		return
	}

	v.conversations.selectedID = conversationID

	if v.receiptSub != nil {
		v.receiptSub.Close()
		v.receiptSub = nil
	}
	if v.typingSub != nil {
		v.typingSub.Close()
		v.typingSub = nil
	}

	v.resetTyping(ctx, conversationID)
	v.messages.gen++
	v.messages.conversationID = conversationID
	v.messages.items = nil

	v.push.Push(event.ConversationSelected, event.SelectConversationPayload{ConversationID: conversationID})

	if conversationID == "" {
		return
	}

	v.receiptSub = v.feed.Subscribe(feed.RelationReceipts, conversationID)
	v.typingSub = v.feed.Subscribe(feed.RelationTyping, conversationID)

	v.loadMessages(ctx, conversationID)
	v.loadTypingRows(ctx, conversationID)
}

func (v *View) createConversation(ctx context.Context, p event.CreateConversationPayload) {
	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	conv, err := v.stores.Admin.Create(wctx, v.user.ID, p.Name, p.ParticipantIDs)
	if err != nil {
		v.logger.Error("failed to create conversation", zap.Error(err))
		v.notifyError("Could not create the conversation.")
		return
	}

	// The insert notification triggers the list reload; selecting here
	// makes the new conversation active as soon as the reload lands.
	v.selectConversation(ctx, conv.ID)
}

func (v *View) deleteConversation(ctx context.Context, conversationID string) {
	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	if err := v.stores.Admin.Delete(wctx, conversationID, v.user.ID); err != nil {
		v.logger.Error("failed to delete conversation",
			zap.String("conversationId", conversationID), zap.Error(err))
		v.notifyError("Could not delete the conversation.")
	}
}
