package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeLog_NextKeyIsStrictlyIncreasing(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	log := NewChangeLog(created)

	// Same instant as creation must still sort after it.
	first := log.NextKey(created)
	log[first] = map[string]any{"status": "completed"}
	second := log.NextKey(created)
	log[second] = map[string]any{"status": "completed"}

	assert.NotEqual(t, first, second)
	assert.Less(t, log[ChangeLogCreatedKey].(string), first)
	assert.Less(t, first, second)

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))
}

func TestChangeLog_EntriesSkipsCreated(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	log := NewChangeLog(created)
	assert.Empty(t, log.Entries())

	later := created.Add(time.Hour)
	log[log.NextKey(later)] = map[string]any{"title": "v2"}

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, later, entries[0].Timestamp)
	assert.Equal(t, "v2", entries[0].Changes["title"])
}

func TestFormatChangeLogTime_FixedWidth(t *testing.T) {
	a := FormatChangeLogTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	b := FormatChangeLogTime(time.Date(2026, 1, 2, 3, 4, 5, 120000, time.UTC))
	assert.Equal(t, len(a), len(b))
	assert.Equal(t, "2026-01-02T03:04:05.000000Z", a)
	assert.Equal(t, "2026-01-02T03:04:05.000120Z", b)
}

func TestPlanUpdate_Changes(t *testing.T) {
	status := PlanStatusCompleted
	title := "FY27 plan"

	assert.Equal(t, map[string]any{}, PlanUpdate{}.Changes())
	assert.Equal(t, map[string]any{"status": "completed", "title": "FY27 plan"},
		PlanUpdate{Status: &status, Title: &title}.Changes())
}

func TestPlanUpdate_Validate(t *testing.T) {
	bad := PlanStatus("shredded")
	require.Error(t, PlanUpdate{Status: &bad}.Validate())
	ok := PlanStatusArchived
	require.NoError(t, PlanUpdate{Status: &ok}.Validate())
}

func TestAccount_Validate(t *testing.T) {
	require.Error(t, (&Account{Country: "US"}).Validate())
	require.Error(t, (&Account{CompanyName: "Acme Co"}).Validate())
	require.NoError(t, (&Account{CompanyName: "Acme Co", Country: "US"}).Validate())
}

func TestConversation_LastByRole(t *testing.T) {
	now := time.Now()
	c := &Conversation{}
	c.Append(RoleAssistant, "q1", now)
	c.Append(RoleUser, "a1", now)
	c.Append(RoleAssistant, "q2", now)

	msg, ok := c.LastByRole(RoleUser)
	require.True(t, ok)
	assert.Equal(t, "a1", msg.Content)

	msg, ok = c.LastByRole(RoleAssistant)
	require.True(t, ok)
	assert.Equal(t, "q2", msg.Content)

	_, ok = (&Conversation{}).LastByRole(RoleUser)
	assert.False(t, ok)
}

func TestConversation_TranscriptAndCategory(t *testing.T) {
	now := time.Now()
	c := &Conversation{SeedQuestion: "Key Contacts: Who are the key contacts?"}
	c.Append(RoleAssistant, "Who decides?", now)
	c.Append(RoleUser, "The CFO.", now)

	assert.Equal(t, "assistant: Who decides?\nuser: The CFO.", c.Transcript())
	assert.Equal(t, "Key Contacts", c.Category())

	c.SeedQuestion = "What are the next cooperation plans?"
	assert.Equal(t, "General", c.Category())
}
