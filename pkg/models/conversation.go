package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the state of a guided interview.
type ConversationStatus string

const (
	ConversationNotStarted ConversationStatus = "not-started"
	ConversationActive     ConversationStatus = "active"
	ConversationEnded      ConversationStatus = "ended"
)

// Message roles.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Message is one turn of an interview transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the caller-held state of a guided interview. It is not
// persisted until it ends; discarding it before then has no durable effect.
// Callers must not share one value across concurrent requests: concurrent
// Continue calls on copies of the same conversation are last-write-wins.
type Conversation struct {
	ID              string             `json:"conversation_id"`
	AccountID       uuid.UUID          `json:"account_id"`
	SeedQuestion    string             `json:"original_question"`
	PreviousSummary string             `json:"previous_summary,omitempty"`
	Context         map[string]any     `json:"context,omitempty"`
	Messages        []Message          `json:"messages"`
	Status          ConversationStatus `json:"status"`
	StartedAt       time.Time          `json:"started_at"`
	// Metadata records degraded steps, e.g. gateway errors replaced by canned text.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewConversationID builds a conv_{account}_{unix}_{suffix} identifier. The
// random suffix keeps ids unique for interviews started in the same second.
func NewConversationID(accountID uuid.UUID, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("conv_%s_%d_%s", accountID, at.Unix(), suffix)
}

// Append adds a message stamped with at.
func (c *Conversation) Append(role, content string, at time.Time) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content, Timestamp: at})
}

// LastByRole scans backwards for the most recent message with the given role.
func (c *Conversation) LastByRole(role string) (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == role {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// RecordDegraded notes that step fell back to canned output because of err.
func (c *Conversation) RecordDegraded(step string, err error) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[step+"_error"] = err.Error()
}

// Transcript renders the messages as "role: content" lines.
func (c *Conversation) Transcript() string {
	lines := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// Category is the text before the first ':' of the seed question, or "General".
func (c *Conversation) Category() string {
	if i := strings.Index(c.SeedQuestion, ":"); i >= 0 {
		return c.SeedQuestion[:i]
	}
	return "General"
}
