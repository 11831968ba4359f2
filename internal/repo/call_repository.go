package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"snipchat/internal/db"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

var (
	ErrCallInProgress        = errors.New("a call is already ringing or active in this conversation")
	ErrCallNotFound          = errors.New("call not found")
	ErrInvalidCallTransition = errors.New("invalid call status transition")
)

type callRepository struct {
	calls   *db.Repository[model.Call]
	changes *feed.Feed
	logger  *zap.Logger
}

type CallRepository interface {
	Get(ctx context.Context, callID string) (*model.Call, error)
	ActiveForConversation(ctx context.Context, conversationID string) (*model.Call, error)
	Create(ctx context.Context, call *model.Call) error
	SetStatus(ctx context.Context, callID, status string) (*model.Call, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
}

func NewCallRepository(calls *db.Repository[model.Call], changes *feed.Feed, logger *zap.Logger) CallRepository {
	return &callRepository{
		calls:   calls,
		changes: changes,
		logger:  logger,
	}
}

func (r *callRepository) Get(ctx context.Context, callID string) (*model.Call, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	call, err := r.calls.FindByID(ctx, callID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("fetch call failed: %w", err)
	}
	return call, nil
}

// ActiveForConversation returns the conversation's non-terminal call, or
// (nil, nil) when there is none.
func (r *callRepository) ActiveForConversation(ctx context.Context, conversationID string) (*model.Call, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_id", conversationID).
		In("status", []string{model.CallStatusRinging, model.CallStatusActive}).
		Build()

	call, err := r.calls.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("active call lookup failed: %w", err)
	}
	return call, nil
}

// Create inserts a new ringing call. The caller must run the
// ActiveForConversation pre-check first; this re-checks as well, but the
// check-then-act window remains open, so this is best effort rather than a
// guarantee.
func (r *callRepository) Create(ctx context.Context, call *model.Call) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	existing, err := r.ActiveForConversation(ctx, call.ConversationID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrCallInProgress
	}

	if _, err := r.calls.Create(ctx, *call); err != nil {
		r.logger.Error("failed to create call",
			zap.String("conversation_id", call.ConversationID),
			zap.Error(err),
		)
		return fmt.Errorf("create call failed: %w", err)
	}

	r.logger.Info("call created",
		zap.String("call_id", call.ID),
		zap.String("conversation_id", call.ConversationID),
		zap.String("caller_id", call.CallerID),
	)
	r.changes.Insert(feed.RelationCalls, call.ConversationID, call)
	return nil
}

// SetStatus moves a call through its state machine and publishes the update.
func (r *callRepository) SetStatus(ctx context.Context, callID, status string) (*model.Call, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	call, err := r.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !model.ValidCallTransition(call.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidCallTransition, call.Status, status)
	}

	if _, err := r.calls.UpdateByID(ctx, callID, bson.M{"status": status}); err != nil {
		return nil, fmt.Errorf("update call status failed: %w", err)
	}

	call.Status = status
	r.logger.Info("call status changed",
		zap.String("call_id", callID),
		zap.String("status", status),
	)
	r.changes.Update(feed.RelationCalls, call.ConversationID, call)
	return call, nil
}

func (r *callRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	calls, err := r.calls.FindAll(ctx, db.NewFilter().Eq("conversation_id", conversationID).Build())
	if err != nil {
		return fmt.Errorf("list conversation calls failed: %w", err)
	}
	if _, err := r.calls.DeleteMany(ctx, db.NewFilter().Eq("conversation_id", conversationID).Build()); err != nil {
		return fmt.Errorf("delete conversation calls failed: %w", err)
	}
	for i := range calls {
		r.changes.Delete(feed.RelationCalls, conversationID, &calls[i])
	}
	return nil
}

func (r *callRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
