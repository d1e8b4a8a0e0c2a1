package models

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StructuredData is the open key/value container attached to interactions.
// Its shape depends on the producer that wrote it; each producer has a minimal
// required-key contract checked by Validate before the data is stored.
type StructuredData map[string]any

// Producer identifies which component produced a StructuredData value.
type Producer string

const (
	// ProducerExtraction is a structured-extraction result over a single answer.
	// A degraded extraction carries extraction_error plus the raw text it failed on.
	ProducerExtraction Producer = "extraction"
	// ProducerInterviewSummary is the record written when an interview ends.
	ProducerInterviewSummary Producer = "interview_summary"
	// ProducerChangeDetection is the diff between accumulated history and new facts.
	ProducerChangeDetection Producer = "change_detection"
)

// Well-known keys.
const (
	KeySummary         = "summary"
	KeyMessageCount    = "message_count"
	KeyConversationID  = "conversation_id"
	KeyExtractionError = "extraction_error"
	KeyRawAnswer       = "raw_answer"
	KeyRawText         = "raw_text"
	KeyRawConversation = "raw_conversation"
	KeyChanges         = "changes"
	KeySuggestions     = "suggestions"
)

// ProducerFor maps an interaction type to the producer whose contract its data must meet.
func ProducerFor(t InteractionType) Producer {
	if t == InteractionTypeConversation {
		return ProducerInterviewSummary
	}
	return ProducerExtraction
}

// Validate checks d against the producer's required keys.
func (d StructuredData) Validate(p Producer) error {
	if d == nil {
		return fmt.Errorf("structured data is required")
	}
	if _, err := json.Marshal(d); err != nil {
		return fmt.Errorf("structured data is not JSON-serializable: %w", err)
	}

	switch p {
	case ProducerInterviewSummary:
		for _, key := range []string{KeySummary, KeyMessageCount, KeyConversationID} {
			if _, ok := d[key]; !ok {
				return fmt.Errorf("interview summary data missing %q", key)
			}
		}
		if _, ok := d[KeySummary].(string); !ok {
			return fmt.Errorf("interview summary data %q must be a string", KeySummary)
		}
	case ProducerExtraction:
		if _, degraded := d[KeyExtractionError]; degraded {
			_, hasAnswer := d[KeyRawAnswer]
			_, hasText := d[KeyRawText]
			_, hasConversation := d[KeyRawConversation]
			if !hasAnswer && !hasText && !hasConversation {
				return fmt.Errorf("degraded extraction data must keep the raw text")
			}
		}
	case ProducerChangeDetection:
		for _, key := range []string{KeyChanges, KeySuggestions} {
			if _, ok := d[key].([]any); !ok {
				return fmt.Errorf("change detection data %q must be a list", key)
			}
		}
	default:
		return fmt.Errorf("unknown producer %q", p)
	}
	return nil
}

// Merge copies every key of other into d, later values winning.
func (d StructuredData) Merge(other map[string]any) StructuredData {
	if d == nil {
		d = StructuredData{}
	}
	for k, v := range other {
		d[k] = v
	}
	return d
}

// Equal compares two containers after normalising both through JSON, so that
// numeric types and nested containers compare by value.
func (d StructuredData) Equal(other map[string]any) bool {
	a, errA := normalizeJSON(map[string]any(d))
	b, errB := normalizeJSON(other)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func normalizeJSON(v map[string]any) (any, error) {
	if v == nil {
		v = map[string]any{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
