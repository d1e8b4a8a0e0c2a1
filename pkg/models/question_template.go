package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionTemplate is one canonical interview question in the catalog.
// DisplayOrder is for display and progress only.
type QuestionTemplate struct {
	ID                uuid.UUID `json:"id"`
	Category          string    `json:"category"`
	QuestionText      string    `json:"question_text"`
	Description       string    `json:"description,omitempty"`
	IsCore            bool      `json:"is_core"`
	FollowUpQuestions []string  `json:"follow_up_questions"`
	DisplayOrder      int       `json:"display_order"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
