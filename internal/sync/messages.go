package sync

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/metrics"
	"snipchat/internal/model"
)

// messageState is the message-thread cell for the selected conversation.
type messageState struct {
	conversationID string
	items          []model.Message
	loading        bool
	gen            uint64
}

func (v *View) loadMessages(ctx context.Context, conversationID string) {
	v.messages.loading = true
	gen := v.messages.gen

	go func() {
		msgs, err := v.stores.Messages.ListByConversation(ctx, conversationID)
		v.deliver(loadResult{
			kind:           loadMessageHistory,
			gen:            gen,
			conversationID: conversationID,
			messages:       msgs,
			err:            err,
		})
	}()
}

// commitMessages applies a finished history load. The generation check
// drops a slow response for a previously selected conversation instead of
// committing it against the current one.
func (v *View) commitMessages(ctx context.Context, res loadResult) {
	if res.gen != v.messages.gen || res.conversationID != v.messages.conversationID {
		return
	}
	v.messages.loading = false

	if res.err != nil {
		v.logger.Error("failed to load messages",
			zap.String("conversationId", res.conversationID), zap.Error(res.err))
		v.notifyError("Could not load messages.")
		return
	}

	v.messages.items = res.messages
	sortMessages(v.messages.items)
	v.push.Push(event.MessageHistory, event.MessageHistoryPayload{
		ConversationID: res.conversationID,
		Messages:       v.messages.items,
	})

	v.markUnseen(ctx)
}

// sortMessages orders by created_at ascending; the stable sort keeps
// arrival order for equal timestamps.
func sortMessages(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// markUnseen writes receipts for every loaded message the user has not
// yet seen, in one batch. Fire and forget: duplicates are swallowed by the
// store and other failures are logged only.
func (v *View) markUnseen(ctx context.Context) {
	var receipts []model.MessageReceipt
	now := v.now()
	for i := range v.messages.items {
		msg := &v.messages.items[i]
		if msg.SenderID == v.user.ID || msg.HasReceiptFrom(v.user.ID) {
			continue
		}
		receipts = append(receipts, model.MessageReceipt{
			MessageID:      msg.ID,
			UserID:         v.user.ID,
			ConversationID: msg.ConversationID,
			SeenAt:         now,
		})
	}
	if len(receipts) == 0 {
		return
	}

	go func() {
		wctx, cancel := v.writeCtx(ctx)
		defer cancel()
		if err := v.stores.Messages.InsertReceipts(wctx, receipts); err != nil {
			v.logger.Warn("failed to write read receipts", zap.Error(err))
		}
	}()
}

// onMessageEvent handles the wide messages stream. Every insert feeds the
// conversation-list summary; only events for the selected conversation
// touch the thread.
func (v *View) onMessageEvent(ctx context.Context, ev feed.Event) {
	switch ev.Op {
	case feed.OpInsert:
		var msg model.Message
		if err := json.Unmarshal(ev.Row, &msg); err != nil {
			v.logger.Warn("malformed message event", zap.Error(err))
			return
		}
		v.bumpSummary(msg)
		if msg.ConversationID == v.messages.conversationID {
			v.appendMessage(ctx, msg)
		}
	case feed.OpDelete:
		var msg model.Message
		if err := json.Unmarshal(ev.Old, &msg); err != nil {
			v.logger.Warn("malformed message event", zap.Error(err))
			return
		}
		v.removeMessage(ctx, msg)
	}
}

// appendMessage reconciles a pushed insert into the thread. The raw feed
// row carries columns only, so the sender profile is resolved from the
// conversation's participant list. A notification that arrives out of
// created_at order triggers a re-sorted history push rather than an
// append, so the rendered order never depends on arrival order.
func (v *View) appendMessage(ctx context.Context, msg model.Message) {
	for i := range v.messages.items {
		if v.messages.items[i].ID == msg.ID {
			return
		}
	}

	if msg.Sender == nil {
		if cv := v.findConversation(msg.ConversationID); cv != nil {
			for i := range cv.Participants {
				if cv.Participants[i].UserID == msg.SenderID {
					sender := cv.Participants[i]
					msg.Sender = &sender
					break
				}
			}
		}
	}

	inOrder := len(v.messages.items) == 0 ||
		!msg.CreatedAt.Before(v.messages.items[len(v.messages.items)-1].CreatedAt)

	v.messages.items = append(v.messages.items, msg)
	if inOrder {
		v.push.Push(event.MessageNew, msg)
	} else {
		sortMessages(v.messages.items)
		v.push.Push(event.MessageHistory, event.MessageHistoryPayload{
			ConversationID: v.messages.conversationID,
			Messages:       v.messages.items,
		})
	}

	// The conversation is on screen, so an incoming message counts as seen
	// right away.
	if msg.SenderID != v.user.ID {
		receipt := model.MessageReceipt{
			MessageID:      msg.ID,
			UserID:         v.user.ID,
			ConversationID: msg.ConversationID,
			SeenAt:         v.now(),
		}
		go func() {
			wctx, cancel := v.writeCtx(ctx)
			defer cancel()
			if err := v.stores.Messages.InsertReceipts(wctx, []model.MessageReceipt{receipt}); err != nil {
				v.logger.Warn("failed to write read receipt", zap.Error(err))
			}
		}()
	}
}

func (v *View) removeMessage(ctx context.Context, msg model.Message) {
	if msg.ConversationID == v.messages.conversationID {
		for i := range v.messages.items {
			if v.messages.items[i].ID == msg.ID {
				v.messages.items = append(v.messages.items[:i], v.messages.items[i+1:]...)
				break
			}
		}
		v.push.Push(event.MessageRemoved, event.MessageRemovedPayload{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
		})
	}

	// The deleted message may have been the list summary; the summary of
	// record is whatever remains, which only a reload can tell us.
	if cv := v.findConversation(msg.ConversationID); cv != nil {
		if cv.Latest != nil && cv.Latest.MessageID == msg.ID {
			v.reloadConversations(ctx)
		}
	}
}

// onReceiptEvent merges a receipt insert into the matching message. The
// merge is idempotent by (message, user), so our own batch writes echoing
// back are harmless.
func (v *View) onReceiptEvent(ev feed.Event) {
	if ev.Op != feed.OpInsert {
		return
	}

	var receipt model.MessageReceipt
	if err := json.Unmarshal(ev.Row, &receipt); err != nil {
		v.logger.Warn("malformed receipt event", zap.Error(err))
		return
	}
	if receipt.ConversationID != v.messages.conversationID {
		return
	}

	for i := range v.messages.items {
		msg := &v.messages.items[i]
		if msg.ID != receipt.MessageID {
			continue
		}
		if !msg.HasReceiptFrom(receipt.UserID) {
			msg.Receipts = append(msg.Receipts, receipt)
			v.push.Push(event.MessageReceipts, event.MessageReceiptsPayload{
				ConversationID: receipt.ConversationID,
				Receipts:       []model.MessageReceipt{receipt},
			})
		}
		return
	}
}

func (v *View) sendMessage(ctx context.Context, p event.SendMessagePayload) {
	conversationID := p.ConversationID
	if conversationID == "" {
		conversationID = v.messages.conversationID
	}
	content := strings.TrimSpace(p.Content)
	if conversationID == "" || content == "" {
		return
	}
	if !v.isMember(ctx, conversationID) {
		v.notifyError("You are not a participant of that conversation.")
		return
	}

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       v.user.ID,
		Content:        content,
		CreatedAt:      v.now(),
	}

	wctx, cancel := v.writeCtx(ctx)
	defer cancel()
	if err := v.stores.Messages.Insert(wctx, msg); err != nil {
		v.logger.Error("failed to send message",
			zap.String("conversationId", conversationID), zap.Error(err))
		v.notifyError("Could not send the message.")
		return
	}
	metrics.MessagesSentTotal.Inc()

	// Sending ends the typing state for this conversation.
	v.onTypingStop(ctx)
}

func (v *View) deleteMessage(ctx context.Context, messageID string) {
	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	if err := v.stores.Messages.Delete(wctx, messageID, v.user.ID); err != nil {
		v.logger.Error("failed to delete message",
			zap.String("messageId", messageID), zap.Error(err))
		v.notifyError("Could not delete the message.")
	}
}
