package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"snipchat/internal/repo"
	"snipchat/internal/service"
)

// ConversationHandler is the REST face of the conversation operations; the
// same operations are reachable as socket intents for connected clients.
type ConversationHandler interface {
	ListConversations(c *gin.Context)
	CreateConversation(c *gin.Context)
	DeleteConversation(c *gin.Context)
	GetMessages(c *gin.Context)
}

type conversationHandler struct {
	conversations *service.ConversationService
	convRepo      repo.ConversationRepository
	messages      repo.MessageRepository
}

func NewConversationHandler(
	conversations *service.ConversationService,
	convRepo repo.ConversationRepository,
	messages repo.MessageRepository,
) ConversationHandler {
	return &conversationHandler{
		conversations: conversations,
		convRepo:      convRepo,
		messages:      messages,
	}
}

func (h *conversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetString(ContextUserID)

	convs, err := h.convRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

type createConversationRequest struct {
	Name           *string  `json:"name"`
	ParticipantIDs []string `json:"participantIds" binding:"required,min=1"`
}

func (h *conversationHandler) CreateConversation(c *gin.Context) {
	userID := c.GetString(ContextUserID)

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversations.Create(c.Request.Context(), userID, req.Name, req.ParticipantIDs)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNeedsName),
			errors.Is(err, service.ErrDirectNeedsTwo),
			errors.Is(err, service.ErrTooFewParticipants):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *conversationHandler) DeleteConversation(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	conversationID := c.Param("conversationId")

	err := h.conversations.Delete(c.Request.Context(), conversationID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		case errors.Is(err, repo.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}

// GetMessages serves the paginated history for one conversation, newest
// page first.
func (h *conversationHandler) GetMessages(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	conversationID := c.Param("conversationId")

	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get messages"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this conversation"})
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), conversationID, pageNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
