package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"snipchat/internal/db"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

var (
	ErrInvalidMessage        = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrNotMessageSender      = errors.New("only the sender may delete a message")
	ErrOperationTimeout      = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

type messageRepository struct {
	messages *db.Repository[model.Message]
	receipts *db.Repository[model.MessageReceipt]
	changes  *feed.Feed
	logger   *zap.Logger
}

type MessageRepository interface {
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	LatestSummaries(ctx context.Context, conversationIDs []string) (map[string]model.MessageSummary, error)
	Insert(ctx context.Context, msg *model.Message) error
	Delete(ctx context.Context, messageID, senderID string) error
	DeleteByConversation(ctx context.Context, conversationID string) error
	InsertReceipts(ctx context.Context, receipts []model.MessageReceipt) error
	History(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
}

func NewMessageRepository(messages *db.Repository[model.Message], receipts *db.Repository[model.MessageReceipt], changes *feed.Feed, logger *zap.Logger) MessageRepository {
	return &messageRepository{
		messages: messages,
		receipts: receipts,
		changes:  changes,
		logger:   logger,
	}
}

// EnsureMessageIndexes creates the indexes message semantics depend on: the
// conversation lookup index and the unique (message, user) receipt key that
// makes duplicate receipt inserts fail instead of multiplying rows.
func EnsureMessageIndexes(ctx context.Context, messages *db.Repository[model.Message], receipts *db.Repository[model.MessageReceipt]) error {
	_, err := messages.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}

	_, err = receipts.Collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create receipt indexes: %w", err)
	}
	return nil
}

// ListByConversation returns the conversation's full message history ordered
// by created_at ascending, with receipts joined onto each message.
func (m *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			m.logger.Warn("retrying message list",
				zap.String("conversation_id", conversationID),
				zap.Int("attempt", attempt+1),
			)
		}

		msgs, err := m.messages.FindAll(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
		if err != nil {
			lastErr = err
			if !m.isRetryableError(err) {
				break
			}
			continue
		}

		if err := m.attachReceipts(ctx, conversationID, msgs); err != nil {
			lastErr = err
			if !m.isRetryableError(err) {
				break
			}
			continue
		}

		m.logger.Debug("messages listed",
			zap.String("conversation_id", conversationID),
			zap.Int("count", len(msgs)),
		)
		return msgs, nil
	}

	return nil, m.handleReadError(lastErr, conversationID)
}

func (m *messageRepository) attachReceipts(ctx context.Context, conversationID string, msgs []model.Message) error {
	receipts, err := m.receipts.FindAll(ctx, db.NewFilter().Eq("conversation_id", conversationID).Build())
	if err != nil {
		return err
	}

	byMessage := make(map[string][]model.MessageReceipt, len(receipts))
	for _, r := range receipts {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	for i := range msgs {
		msgs[i].Receipts = byMessage[msgs[i].ID]
	}
	return nil
}

// LatestSummaries returns the newest message per conversation for exactly
// the given conversation ids. Conversations with no messages are simply
// absent from the result.
func (m *messageRepository) LatestSummaries(ctx context.Context, conversationIDs []string) (map[string]model.MessageSummary, error) {
	if len(conversationIDs) == 0 {
		return map[string]model.MessageSummary{}, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"conversation_id": bson.M{"$in": conversationIDs}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$conversation_id",
			"message_id": bson.M{"$first": "$_id"},
			"sender_id":  bson.M{"$first": "$sender_id"},
			"content":    bson.M{"$first": "$content"},
			"created_at": bson.M{"$first": "$created_at"},
		}}},
	}

	cursor, err := m.messages.Collection().Aggregate(ctx, pipeline)
	if err != nil {
		m.logger.Error("failed to aggregate latest summaries", zap.Error(err))
		return nil, fmt.Errorf("latest summaries failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []model.MessageSummary
	if err := cursor.All(ctx, &rows); err != nil {
		m.logger.Error("failed to decode latest summaries", zap.Error(err))
		return nil, fmt.Errorf("latest summaries failed: %w", err)
	}

	summaries := make(map[string]model.MessageSummary, len(rows))
	for _, s := range rows {
		summaries[s.ConversationID] = s
	}
	return summaries, nil
}

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return err
			}
		}

		_, err := m.messages.Create(ctx, *msg)
		if err == nil {
			m.logger.Info("message inserted",
				zap.String("message_id", msg.ID),
				zap.String("conversation_id", msg.ConversationID),
				zap.Int("attempt", attempt+1),
			)
			m.changes.Insert(feed.RelationMessages, msg.ConversationID, msg)
			return nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID),
	)
	return fmt.Errorf("insert message failed: %w", lastErr)
}

// Delete removes a message by id. Only the sender may delete; the receipts
// owned by the message go with it.
func (m *messageRepository) Delete(ctx context.Context, messageID, senderID string) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	msg, err := m.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return fmt.Errorf("delete message lookup failed: %w", err)
	}
	if msg.SenderID != senderID {
		return ErrNotMessageSender
	}

	if _, err := m.messages.DeleteByID(ctx, messageID); err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if _, err := m.receipts.DeleteMany(ctx, db.NewFilter().Eq("message_id", messageID).Build()); err != nil {
		m.logger.Warn("failed to delete message receipts", zap.String("message_id", messageID), zap.Error(err))
	}

	m.changes.Delete(feed.RelationMessages, msg.ConversationID, msg)
	return nil
}

func (m *messageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()
	if _, err := m.messages.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("delete conversation messages failed: %w", err)
	}
	if _, err := m.receipts.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("delete conversation receipts failed: %w", err)
	}
	return nil
}

// InsertReceipts writes a batch of seen-receipts. Duplicate (message, user)
// pairs are an expected outcome, not an error: the unique index rejects
// them and the rest of the unordered batch still lands. Feed events are
// published for the whole batch; consumers merge receipts by key, so a
// duplicate notification is absorbed.
func (m *messageRepository) InsertReceipts(ctx context.Context, receipts []model.MessageReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := m.receipts.CreateMany(ctx, receipts)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		m.logger.Error("failed to insert receipts",
			zap.Error(err),
			zap.Int("count", len(receipts)),
		)
		return fmt.Errorf("insert receipts failed: %w", err)
	}

	for i := range receipts {
		m.changes.Insert(feed.RelationReceipts, receipts[i].ConversationID, &receipts[i])
	}
	return nil
}

// History returns one page of a conversation's messages for the REST
// surface, oldest first.
func (m *messageRepository) History(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID).Build()

	result, err := m.messages.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: 50,
		SortBy:   "created_at",
		SortDesc: false,
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationID)
	}

	m.logger.Debug("message history page",
		zap.String("conversation_id", conversationID),
		zap.Int64("page", result.Page),
		zap.Int("count", len(result.Data)),
	)
	return result, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (m *messageRepository) handleReadError(err error, conversationID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation_id", conversationID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("conversation_id", conversationID))
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation_id", conversationID))
	return fmt.Errorf("list messages failed: %w", err)
}
