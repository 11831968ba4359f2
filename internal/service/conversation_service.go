package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snipchat/internal/model"
	"snipchat/internal/repo"
)

var (
	ErrGroupNeedsName       = errors.New("group conversations require a name")
	ErrDirectNeedsTwo       = errors.New("direct conversations have exactly two participants")
	ErrTooFewParticipants   = errors.New("a conversation needs at least two participants")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ConversationService owns the privileged conversation operations: creating
// a conversation with arbitrary participants and deleting one with its
// owned rows. Participants are fixed at creation; there are no later
// invites.
type ConversationService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	calls         repo.CallRepository
	typing        repo.TypingRepository
	users         repo.UserRepository
	logger        *zap.Logger
}

func NewConversationService(
	conversations repo.ConversationRepository,
	messages repo.MessageRepository,
	calls repo.CallRepository,
	typing repo.TypingRepository,
	users repo.UserRepository,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		calls:         calls,
		typing:        typing,
		users:         users,
		logger:        logger,
	}
}

// Create builds a conversation from the creator plus the given participant
// ids, resolving each participant's profile. A nil name means a direct 1:1
// chat; a non-empty name means a group.
func (s *ConversationService) Create(ctx context.Context, creatorID string, name *string, participantIDs []string) (*model.Conversation, error) {
	ids := dedupe(append([]string{creatorID}, participantIDs...))
	if len(ids) < 2 {
		return nil, ErrTooFewParticipants
	}

	if name != nil && *name == "" {
		name = nil
	}
	if name == nil && len(ids) > 2 {
		return nil, ErrGroupNeedsName
	}
	if name == nil && len(ids) != 2 {
		return nil, ErrDirectNeedsTwo
	}

	now := time.Now()
	participants := make([]model.Participant, 0, len(ids))
	for _, id := range ids {
		user, err := s.users.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve participant %s: %w", id, err)
		}
		participants = append(participants, model.Participant{
			UserID:    user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			AvatarURL: user.AvatarURL,
			JoinedAt:  now,
		})
	}

	conv := &model.Conversation{
		ID:           uuid.NewString(),
		Name:         name,
		Participants: participants,
		CreatedBy:    creatorID,
		CreatedAt:    now,
	}

	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Delete hard-deletes the conversation for any requesting participant and
// cascades to everything the conversation owns: messages, receipts, typing
// rows and call records.
func (s *ConversationService) Delete(ctx context.Context, conversationID, requesterID string) error {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(requesterID) {
		return repo.ErrNotParticipant
	}

	if err := s.messages.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.calls.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.typing.ClearConversation(ctx, conversationID); err != nil {
		s.logger.Warn("failed to clear typing rows",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	return s.conversations.Delete(ctx, conv)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
