package hub

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"snipchat/internal/feed"
	"snipchat/internal/model"
	"snipchat/internal/service"
)

const dispatchTimeout = 5 * time.Second

// dispatchOfflinePush watches message inserts and queues a push job for
// every participant who has no live connection. Delivery itself belongs to
// the notification workers; failures here are logged and dropped.
func (h *Hub) dispatchOfflinePush() {
	defer h.wg.Done()

	sub := h.changes.Subscribe(feed.RelationMessages, feed.AllKeys)
	defer sub.Close()

	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-sub.C:
			if ev.Op != feed.OpInsert {
				continue
			}

			var msg model.Message
			if err := json.Unmarshal(ev.Row, &msg); err != nil {
				h.logger.Warn("malformed message event", zap.Error(err))
				continue
			}
			h.pushToOffline(msg)
		}
	}
}

func (h *Hub) pushToOffline(msg model.Message) {
	ctx, cancel := context.WithTimeout(h.ctx, dispatchTimeout)
	defer cancel()

	conv, err := h.conversations.Get(ctx, msg.ConversationID)
	if err != nil || conv == nil {
		if err != nil {
			h.logger.Warn("failed to resolve conversation for push",
				zap.String("conversationId", msg.ConversationID), zap.Error(err))
		}
		return
	}

	for _, p := range conv.Participants {
		if p.UserID == msg.SenderID || h.IsOnline(p.UserID) {
			continue
		}

		h.notifier.PublishPush(ctx, service.PushNotification{
			UserID: p.UserID,
			Title:  model.ConversationTitle(conv, p.UserID),
			Body:   msg.Content,
		})
	}
}
