package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle status of a plan.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusArchived  PlanStatus = "archived"
)

// IsValid reports whether s is a known plan status.
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanStatusDraft, PlanStatusCompleted, PlanStatusArchived:
		return true
	}
	return false
}

// ChangeLogCreatedKey holds the creation timestamp in every change log.
const ChangeLogCreatedKey = "created"

// changeLogTimeLayout is fixed-width UTC so lexical key order is chronological order.
const changeLogTimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatChangeLogTime renders a change log key.
func FormatChangeLogTime(t time.Time) string {
	return t.UTC().Format(changeLogTimeLayout)
}

// ParseChangeLogTime parses a change log key.
func ParseChangeLogTime(s string) (time.Time, error) {
	return time.Parse(changeLogTimeLayout, s)
}

// ChangeLog is the append-only, timestamp-keyed edit record of a plan:
// {"created": "<ts>", "<ts>": {<fields applied>}, ...}.
type ChangeLog map[string]any

// NewChangeLog starts a log with its creation entry.
func NewChangeLog(created time.Time) ChangeLog {
	return ChangeLog{ChangeLogCreatedKey: FormatChangeLogTime(created)}
}

// ChangeLogEntry is one update recorded in a ChangeLog.
type ChangeLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Changes   map[string]any `json:"changes"`
}

// Entries returns the update entries in chronological order, excluding the creation marker.
func (c ChangeLog) Entries() []ChangeLogEntry {
	keys := make([]string, 0, len(c))
	for k := range c {
		if k == ChangeLogCreatedKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]ChangeLogEntry, 0, len(keys))
	for _, k := range keys {
		ts, err := ParseChangeLogTime(k)
		if err != nil {
			continue
		}
		changes, _ := c[k].(map[string]any)
		entries = append(entries, ChangeLogEntry{Timestamp: ts, Changes: changes})
	}
	return entries
}

// NextKey returns a key for an entry at t that is strictly later than every
// existing entry, bumping by a microsecond on collision.
func (c ChangeLog) NextKey(t time.Time) string {
	latest := time.Time{}
	for k := range c {
		if ts, err := ParseChangeLogTime(k); err == nil && ts.After(latest) {
			latest = ts
		}
	}
	if created, ok := c[ChangeLogCreatedKey].(string); ok {
		if ts, err := ParseChangeLogTime(created); err == nil && ts.After(latest) {
			latest = ts
		}
	}

	t = t.UTC().Truncate(time.Microsecond)
	if !t.After(latest) {
		t = latest.Add(time.Microsecond)
	}
	return FormatChangeLogTime(t)
}

// Plan is a generated strategic document with status and change log.
type Plan struct {
	ID        uuid.UUID  `json:"id"`
	AccountID uuid.UUID  `json:"account_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Status    PlanStatus `json:"status"`
	ChangeLog ChangeLog  `json:"change_log"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PlanUpdate carries optional field changes. Nil fields are left unchanged.
type PlanUpdate struct {
	Title   *string     `json:"title,omitempty"`
	Content *string     `json:"content,omitempty"`
	Status  *PlanStatus `json:"status,omitempty"`
}

// Validate rejects unknown statuses.
func (u PlanUpdate) Validate() error {
	if u.Status != nil && !u.Status.IsValid() {
		return fmt.Errorf("invalid plan status %q", *u.Status)
	}
	return nil
}

// Changes renders the update as the mapping recorded in the change log.
// An empty update yields an empty, non-nil mapping.
func (u PlanUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if u.Title != nil {
		changes["title"] = *u.Title
	}
	if u.Content != nil {
		changes["content"] = *u.Content
	}
	if u.Status != nil {
		changes["status"] = string(*u.Status)
	}
	return changes
}
