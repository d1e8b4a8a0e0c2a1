package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is the business entity being researched and planned for.
// Stored in accounts; deleting an account cascades to every row that references it.
type Account struct {
	ID          uuid.UUID `json:"id"`
	CompanyName string    `json:"company_name"` // Unique across accounts
	Industry    string    `json:"industry,omitempty"`
	CompanySize string    `json:"company_size,omitempty"`
	Website     string    `json:"website,omitempty"`
	Country     string    `json:"country"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the fields required before an account is written.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.CompanyName) == "" {
		return fmt.Errorf("company_name is required")
	}
	if strings.TrimSpace(a.Country) == "" {
		return fmt.Errorf("country is required")
	}
	return nil
}

// AccountFilter narrows account listings. Zero values mean "no filter".
type AccountFilter struct {
	Search   string // Case-insensitive substring of company name
	Industry string
	Country  string
	Limit    int
	Offset   int
}
