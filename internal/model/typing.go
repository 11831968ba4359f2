package model

import "time"

// TypingStaleAfter is the window after which a typing row counts as expired
// for every reader, whether or not a delete was ever observed. Explicit stop
// signals are unreliable across tabs and devices, so staleness is the
// authoritative exit from the typing state.
const TypingStaleAfter = 3000 * time.Millisecond

// TypingStatus is a (conversation, user) keyed row upserted on keystroke
// signals.
type TypingStatus struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	LastTypedAt    time.Time `json:"lastTypedAt"`
}

// Expired reports whether the row is stale relative to now.
func (t TypingStatus) Expired(now time.Time) bool {
	return now.Sub(t.LastTypedAt) >= TypingStaleAfter
}
