package model

import "time"

// Conversation represents a chat conversation in MongoDB. A non-empty Name
// marks a group chat; direct 1:1 conversations have no name and derive their
// display title from the other participant. Participants are embedded at
// creation time and have no independent lifecycle.
type Conversation struct {
	ID           string        `json:"id" bson:"_id"`
	Name         *string       `json:"name" bson:"name"`
	Participants []Participant `json:"participants" bson:"participants"`
	CreatedBy    string        `json:"createdBy" bson:"created_by"`
	CreatedAt    time.Time     `json:"createdAt" bson:"created_at"`
}

// Participant is a user's membership in a conversation, with the profile
// fields the list view needs embedded.
type Participant struct {
	UserID    string    `json:"userId" bson:"user_id"`
	FirstName string    `json:"firstName" bson:"first_name"`
	LastName  string    `json:"lastName" bson:"last_name"`
	AvatarURL string    `json:"avatarUrl" bson:"avatar_url"`
	JoinedAt  time.Time `json:"joinedAt" bson:"joined_at"`
}

// IsGroup reports whether the conversation is a named group chat.
func (c *Conversation) IsGroup() bool {
	return c.Name != nil && *c.Name != ""
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// MessageSummary is the "latest message per conversation" projection used by
// the conversation list.
type MessageSummary struct {
	ConversationID string    `json:"conversationId" bson:"_id"`
	MessageID      string    `json:"messageId" bson:"message_id"`
	SenderID       string    `json:"senderId" bson:"sender_id"`
	Content        string    `json:"content" bson:"content"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
}
