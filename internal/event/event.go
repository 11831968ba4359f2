package event

import (
	"encoding/json"

	"snipchat/internal/model"
)

// Client intents.
const (
	ConversationSelect = "conversation:select"
	ConversationCreate = "conversation:create"
	ConversationDelete = "conversation:delete"
	MessageSend        = "message:send"
	MessageDelete      = "message:delete"
	TypingInput        = "typing:input"
	TypingStop         = "typing:stop"
	CallStart          = "call:start"
	CallAccept         = "call:accept"
	CallDecline        = "call:decline"
	CallEnd            = "call:end"
)

// Server pushes.
const (
	ConversationList     = "conversation:list"
	ConversationSelected = "conversation:selected"
	MessageHistory       = "message:history"
	MessageNew           = "message:new"
	MessageRemoved       = "message:removed"
	MessageReceipts      = "message:receipts"
	TypingUpdate         = "typing:update"
	CallIncoming         = "call:incoming"
	CallState            = "call:state"
	CallCleared          = "call:cleared"
	SessionMe            = "session:me"
	SessionEnded         = "session:ended"
	Notification         = "notification"
)

// WsEvent is the envelope for every frame exchanged over the socket.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func NewWsEvent(name string, payload any) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: name, Payload: raw}, nil
}

type SelectConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type CreateConversationPayload struct {
	Name           *string  `json:"name,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
}

type DeleteConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

type CallRefPayload struct {
	CallID string `json:"callId"`
}

// ConversationView is a conversation joined to its latest-message summary,
// the shape the list is rendered from.
type ConversationView struct {
	model.Conversation
	Latest *model.MessageSummary `json:"latest,omitempty"`
}

type MessageHistoryPayload struct {
	ConversationID string          `json:"conversationId"`
	Messages       []model.Message `json:"messages"`
}

type MessageRemovedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type MessageReceiptsPayload struct {
	ConversationID string                 `json:"conversationId"`
	Receipts       []model.MessageReceipt `json:"receipts"`
}

type TypingUpdatePayload struct {
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

type CallClearedPayload struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

type NotificationPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}
