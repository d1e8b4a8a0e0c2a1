package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FactType is the category of an ExternalFact. Each account holds at most one fact per type.
type FactType string

const (
	FactTypeCompanyProfile  FactType = "company_profile"
	FactTypeNews            FactType = "news"
	FactTypeMarketInfo      FactType = "market_info"
	FactTypeCustomerProfile FactType = "customer_profile"
)

// AllFactTypes lists fact types in display order.
var AllFactTypes = []FactType{
	FactTypeCompanyProfile,
	FactTypeNews,
	FactTypeMarketInfo,
	FactTypeCustomerProfile,
}

// IsValid reports whether t is a known fact type.
func (t FactType) IsValid() bool {
	for _, ft := range AllFactTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// ExternalFact is one categorized, upsertable fact blob about an account.
// Stored in external_facts with UNIQUE (account_id, fact_type).
type ExternalFact struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	FactType  FactType        `json:"fact_type"`
	Content   json.RawMessage `json:"content"`
	SourceURL string          `json:"source_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DecodeContent unmarshals the fact content into a generic value.
func (f *ExternalFact) DecodeContent() (any, error) {
	if len(f.Content) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(f.Content, &v); err != nil {
		return nil, err
	}
	return v, nil
}
