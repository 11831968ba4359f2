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

var ErrNotParticipant = errors.New("user is not a participant of the conversation")

type conversationRepository struct {
	conversations *db.Repository[model.Conversation]
	changes       *feed.Feed
	logger        *zap.Logger
}

type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Create(ctx context.Context, conv *model.Conversation) error
	Delete(ctx context.Context, conv *model.Conversation) error
}

func NewConversationRepository(conversations *db.Repository[model.Conversation], changes *feed.Feed, logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		conversations: conversations,
		changes:       changes,
		logger:        logger,
	}
}

// Get fetches a conversation document by id. A missing document returns
// (nil, nil): absence is an answer here, not a failure.
func (r *conversationRepository) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conv, err := r.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("conversation not found",
				zap.String("conversation_id", conversationID),
			)
			return nil, nil
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conv, nil
}

// ListForUser returns every conversation the user participates in, with
// participant profiles embedded in each document.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ElemMatch("participants", bson.M{"user_id": userID}).
		Build()

	convs, err := r.conversations.FindAll(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		r.logger.Error("failed to list conversations",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}

	r.logger.Debug("conversations listed",
		zap.String("user_id", userID),
		zap.Int("count", len(convs)),
	)
	return convs, nil
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	if conversationID == "" {
		return false, ErrInvalidConversationID
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("_id", conversationID).
		ElemMatch("participants", bson.M{"user_id": userID}).
		Build()

	return r.conversations.Exists(ctx, filter)
}

// Create inserts the conversation and notifies every participant's
// conversation stream.
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.conversations.Create(ctx, *conv); err != nil {
		r.logger.Error("failed to create conversation", zap.Error(err))
		return fmt.Errorf("create conversation failed: %w", err)
	}

	r.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Int("participants", len(conv.Participants)),
	)
	for _, p := range conv.Participants {
		r.changes.Insert(feed.RelationConversations, p.UserID, conv)
	}
	return nil
}

// Delete removes the conversation document and tells every participant's
// stream. Owned rows (messages, receipts, typing, calls) are removed by the
// conversation service before this is called.
func (r *conversationRepository) Delete(ctx context.Context, conv *model.Conversation) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.conversations.DeleteByID(ctx, conv.ID); err != nil {
		r.logger.Error("failed to delete conversation",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return fmt.Errorf("delete conversation failed: %w", err)
	}

	r.logger.Info("conversation deleted", zap.String("conversation_id", conv.ID))
	for _, p := range conv.Participants {
		r.changes.Delete(feed.RelationConversations, p.UserID, conv)
	}
	return nil
}

func (r *conversationRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
