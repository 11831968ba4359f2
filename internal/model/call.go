package model

import "time"

// Call status values. Ringing and active are the non-terminal states; at
// most one non-terminal call should exist per conversation, enforced by a
// pre-check rather than a database constraint (the race window is an
// accepted limitation).
const (
	CallStatusRinging  = "ringing"
	CallStatusActive   = "active"
	CallStatusEnded    = "ended"
	CallStatusDeclined = "declined"
)

// Call represents a call record in MongoDB. CallURL is an opaque link to an
// external conferencing room; no media negotiation happens in this service.
type Call struct {
	ID             string    `json:"id" bson:"_id"`
	ConversationID string    `json:"conversationId" bson:"conversation_id"`
	CallerID       string    `json:"callerId" bson:"caller_id"`
	Status         string    `json:"status" bson:"status"`
	CallURL        string    `json:"callUrl" bson:"call_url"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
}

// IsTerminal reports whether the call has reached a final state.
func (c *Call) IsTerminal() bool {
	return c.Status == CallStatusEnded || c.Status == CallStatusDeclined
}

// ValidCallTransition reports whether a call may move from one status to
// another: ringing→active on accept, ringing→declined on decline, and
// ringing|active→ended on hang-up by either party.
func ValidCallTransition(from, to string) bool {
	switch to {
	case CallStatusActive:
		return from == CallStatusRinging
	case CallStatusDeclined:
		return from == CallStatusRinging
	case CallStatusEnded:
		return from == CallStatusRinging || from == CallStatusActive
	default:
		return false
	}
}
