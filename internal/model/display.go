package model

import (
	"strings"
	"unicode/utf8"
)

// Display helpers shared by every view of the data model. These used to be
// reimplemented ad hoc per view component; they live here once instead.

// ConversationTitle resolves the display name of a conversation as seen by
// viewerID. Group chats use their explicit name; direct conversations show
// the other participant's full name.
func ConversationTitle(c *Conversation, viewerID string) string {
	if c.IsGroup() {
		return *c.Name
	}
	for _, p := range c.Participants {
		if p.UserID != viewerID {
			return participantName(p)
		}
	}
	// A direct conversation with yourself, or no other participant yet.
	return "Conversation"
}

func participantName(p Participant) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return "Unknown"
	}
	return name
}

// AvatarInitials is the fallback rendered when a participant has no avatar
// image.
func AvatarInitials(firstName, lastName string) string {
	initials := firstRune(firstName) + firstRune(lastName)
	if initials == "" {
		return "?"
	}
	return initials
}

// firstRune takes the first rune, not the first byte, so multibyte names
// keep a valid initial.
func firstRune(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return ""
	}
	return strings.ToUpper(string(r))
}

// SeenByAll reports whether every participant other than the message sender
// holds a receipt on the message. Used for the delivered-to-all indicator on
// the sender's own messages.
func SeenByAll(m *Message, participants []Participant) bool {
	for _, p := range participants {
		if p.UserID == m.SenderID {
			continue
		}
		if !m.HasReceiptFrom(p.UserID) {
			return false
		}
	}
	return true
}
