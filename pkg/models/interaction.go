package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType tags how a question/answer exchange was captured.
type InteractionType string

const (
	// InteractionTypeQuestion is a direct answer to a catalog or ad-hoc question.
	InteractionTypeQuestion InteractionType = "interview-question"
	// InteractionTypeConversation is the persisted result of an ended guided interview.
	InteractionTypeConversation InteractionType = "conversation"
)

// Interaction is one persisted question/answer exchange.
// Rows are immutable except through UpdateAnswer, which overwrites the answer
// and structured data in place.
type Interaction struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	PlanID         *uuid.UUID      `json:"plan_id,omitempty"`
	Type           InteractionType `json:"interaction_type"`
	Question       string          `json:"question"`
	Answer         string          `json:"answer"`
	StructuredData StructuredData  `json:"structured_data"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// InteractionFilter selects interactions for one account.
type InteractionFilter struct {
	AccountID    uuid.UUID
	Types        []InteractionType // Empty means all types
	Question     string            // Exact question text
	AnsweredOnly bool              // Question and answer both non-empty
	Ascending    bool              // Oldest first; default is newest first
	Limit        int               // 0 means unbounded
}
