package model

import "time"

// Message represents a chat message in MongoDB. Messages are immutable once
// sent; the only permitted mutation is a hard delete by the sender. Within a
// conversation messages are totally ordered by CreatedAt ascending, ties
// broken by arrival order.
type Message struct {
	ID             string    `json:"id" bson:"_id"`
	ConversationID string    `json:"conversationId" bson:"conversation_id"`
	SenderID       string    `json:"senderId" bson:"sender_id"`
	Content        string    `json:"content" bson:"content"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`

	// Sender is resolved from the conversation's participant list when the
	// stored document is joined for the view; it is not persisted with the
	// message.
	Sender *Participant `json:"sender,omitempty" bson:"-"`

	// Receipts joined from the message_receipts collection.
	Receipts []MessageReceipt `json:"receipts" bson:"-"`
}

// HasReceiptFrom reports whether userID has a seen-receipt on the message.
func (m *Message) HasReceiptFrom(userID string) bool {
	for _, r := range m.Receipts {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MessageReceipt marks a message as seen by a user. Identity is the
// (message, user) pair; duplicate inserts are a no-op, never an error.
// ConversationID is denormalized so receipts can be feed-keyed and
// cascade-deleted per conversation.
type MessageReceipt struct {
	MessageID      string    `json:"messageId" bson:"message_id"`
	UserID         string    `json:"userId" bson:"user_id"`
	ConversationID string    `json:"conversationId" bson:"conversation_id"`
	SeenAt         time.Time `json:"seenAt" bson:"seen_at"`
}
