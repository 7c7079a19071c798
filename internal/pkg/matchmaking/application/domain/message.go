package match

import (
	"strings"
	"time"
)

// Sender identifies who produced a session log entry.
type Sender string

const (
	SenderMe     Sender = "me"
	SenderThem   Sender = "them"
	SenderSystem Sender = "system"
)

// Entry is one line of the ephemeral session log. It is never persisted.
type Entry struct {
	Sender Sender
	Text   string
	Time   time.Time
}

// NewChatEntry validates outgoing or incoming chat text.
// Surrounding whitespace is trimmed; blank text is rejected.
func NewChatEntry(sender Sender, text string, now time.Time) (Entry, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Entry{}, ErrEmptyMessage
	}
	if now.IsZero() {
		now = time.Now()
	}
	return Entry{Sender: sender, Text: trimmed, Time: now}, nil
}
