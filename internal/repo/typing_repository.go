package repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"snipchat/internal/feed"
	"snipchat/internal/model"
)

// Typing rows live in Redis: one hash per conversation, field=user id,
// value=last-typed-at in unix milliseconds. The hash TTL is hygiene only;
// readers never rely on it. Staleness is evaluated against last_typed_at on
// every read.
const typingKeyTTL = 30 * time.Second

func typingKey(conversationID string) string {
	return "typing:" + conversationID
}

type TypingRepository interface {
	Upsert(ctx context.Context, conversationID, userID string, at time.Time) error
	Delete(ctx context.Context, conversationID, userID string) error
	List(ctx context.Context, conversationID string) ([]model.TypingStatus, error)
	ClearConversation(ctx context.Context, conversationID string) error
}

type typingRepository struct {
	rdb     *redis.Client
	changes *feed.Feed
	logger  *zap.Logger
}

func NewTypingRepository(rdb *redis.Client, changes *feed.Feed, logger *zap.Logger) TypingRepository {
	return &typingRepository{
		rdb:     rdb,
		changes: changes,
		logger:  logger,
	}
}

// Upsert writes the (conversation, user) row's last_typed_at and notifies
// the conversation's typing stream. Create-or-replace by key: repeated
// writes just move the timestamp.
func (t *typingRepository) Upsert(ctx context.Context, conversationID, userID string, at time.Time) error {
	key := typingKey(conversationID)

	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key, userID, strconv.FormatInt(at.UnixMilli(), 10))
	pipe.Expire(ctx, key, typingKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("typing upsert failed: %w", err)
	}

	row := model.TypingStatus{ConversationID: conversationID, UserID: userID, LastTypedAt: at}
	t.changes.Update(feed.RelationTyping, conversationID, row)
	return nil
}

func (t *typingRepository) Delete(ctx context.Context, conversationID, userID string) error {
	if err := t.rdb.HDel(ctx, typingKey(conversationID), userID).Err(); err != nil {
		return fmt.Errorf("typing delete failed: %w", err)
	}

	row := model.TypingStatus{ConversationID: conversationID, UserID: userID}
	t.changes.Delete(feed.RelationTyping, conversationID, row)
	return nil
}

// List returns every typing row for the conversation, stale ones included.
// Staleness policy belongs to the readers.
func (t *typingRepository) List(ctx context.Context, conversationID string) ([]model.TypingStatus, error) {
	entries, err := t.rdb.HGetAll(ctx, typingKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("typing list failed: %w", err)
	}

	rows := make([]model.TypingStatus, 0, len(entries))
	for userID, raw := range entries {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			t.logger.Warn("malformed typing row",
				zap.String("conversation_id", conversationID),
				zap.String("user_id", userID),
			)
			continue
		}
		rows = append(rows, model.TypingStatus{
			ConversationID: conversationID,
			UserID:         userID,
			LastTypedAt:    time.UnixMilli(ms),
		})
	}
	return rows, nil
}

func (t *typingRepository) ClearConversation(ctx context.Context, conversationID string) error {
	if err := t.rdb.Del(ctx, typingKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("typing clear failed: %w", err)
	}
	return nil
}
