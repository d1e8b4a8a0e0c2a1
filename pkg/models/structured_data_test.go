package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredData_Validate(t *testing.T) {
	tests := []struct {
		name     string
		data     StructuredData
		producer Producer
		wantErr  string
	}{
		{
			name:     "nil data",
			data:     nil,
			producer: ProducerExtraction,
			wantErr:  "required",
		},
		{
			name:     "extraction with arbitrary keys",
			data:     StructuredData{"budget": "500k", "contacts": []any{"Ana"}},
			producer: ProducerExtraction,
		},
		{
			name:     "degraded extraction keeps raw answer",
			data:     StructuredData{KeyRawAnswer: "we sold licenses", KeyExtractionError: "unparseable"},
			producer: ProducerExtraction,
		},
		{
			name:     "degraded extraction without raw text",
			data:     StructuredData{KeyExtractionError: "unparseable"},
			producer: ProducerExtraction,
			wantErr:  "raw text",
		},
		{
			name: "interview summary complete",
			data: StructuredData{
				KeySummary: "Renewal at risk", KeyMessageCount: 4, KeyConversationID: "conv_x_1",
			},
			producer: ProducerInterviewSummary,
		},
		{
			name:     "interview summary missing conversation id",
			data:     StructuredData{KeySummary: "s", KeyMessageCount: 2},
			producer: ProducerInterviewSummary,
			wantErr:  KeyConversationID,
		},
		{
			name:     "change detection lists",
			data:     StructuredData{KeyChanges: []any{}, KeySuggestions: []any{}},
			producer: ProducerChangeDetection,
		},
		{
			name:     "change detection wrong type",
			data:     StructuredData{KeyChanges: "none", KeySuggestions: []any{}},
			producer: ProducerChangeDetection,
			wantErr:  "must be a list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(tt.producer)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStructuredData_MergeLaterWins(t *testing.T) {
	var d StructuredData
	d = d.Merge(map[string]any{"budget": "100k", "owner": "Ana"})
	d = d.Merge(map[string]any{"budget": "250k"})

	assert.Equal(t, "250k", d["budget"])
	assert.Equal(t, "Ana", d["owner"])
}

func TestStructuredData_EqualNormalizesNumbers(t *testing.T) {
	a := StructuredData{"seats": 10, "tags": []string{"a"}}
	b := map[string]any{"seats": float64(10), "tags": []any{"a"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(map[string]any{"seats": 11, "tags": []any{"a"}}))
}

func TestProducerFor(t *testing.T) {
	assert.Equal(t, ProducerInterviewSummary, ProducerFor(InteractionTypeConversation))
	assert.Equal(t, ProducerExtraction, ProducerFor(InteractionTypeQuestion))
}
