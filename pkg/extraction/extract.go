// Package extraction turns free-form generated text into a mapping or list.
//
// Parsing runs in three stages: a strict parse of the whole text, recovery of
// the first balanced object or array substring, and finally a wrapper that
// keeps the original text. Extraction never fails the caller; a failed parse
// is reported as a degraded Result.
package extraction

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/ekaya-accounts/pkg/jsonutil"
)

// Kind is the shape the caller expects.
type Kind string

const (
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// Keys of the degraded wrapper.
const (
	KeyRawText = "raw_text"
	KeyError   = "extraction_error"
)

// Result holds the extracted value. Exactly one of Object and List is set
// unless Degraded is true, in which case RawText and Error describe the failure.
type Result struct {
	Object   map[string]any
	List     []any
	Degraded bool
	RawText  string
	Error    string
}

// Value returns the object, the list, or the {raw_text, extraction_error} wrapper.
// It never returns nil.
func (r Result) Value() any {
	switch {
	case r.Degraded:
		return r.Wrapper()
	case r.List != nil:
		return r.List
	case r.Object != nil:
		return r.Object
	}
	return map[string]any{}
}

// Wrapper returns the degraded form regardless of outcome.
func (r Result) Wrapper() map[string]any {
	return map[string]any{KeyRawText: r.RawText, KeyError: r.Error}
}

// ObjectOr returns the extracted object, or fallback when extraction degraded.
func (r Result) ObjectOr(fallback map[string]any) map[string]any {
	if r.Degraded || r.Object == nil {
		return fallback
	}
	return r.Object
}

// Extract parses raw into the expected kind.
func Extract(raw string, kind Kind) Result {
	text := stripCodeFence(strings.TrimSpace(raw))

	if res, ok := parse(text, kind); ok {
		return res
	}

	open, close := byte('{'), byte('}')
	if kind == KindArray {
		open, close = '[', ']'
	}
	if candidate, ok := jsonutil.BalancedSubstring(text, open, close); ok {
		if res, ok := parse(candidate, kind); ok {
			return res
		}
	}

	msg := "no JSON object found in response"
	if kind == KindArray {
		msg = "no JSON array found in response"
	}
	if text == "" {
		msg = "empty response"
	}
	return Result{Degraded: true, RawText: raw, Error: msg}
}

// Degraded builds a degraded result for callers whose generation call itself failed.
func Degraded(raw string, err error) Result {
	msg := "generation failed"
	if err != nil {
		msg = err.Error()
	}
	return Result{Degraded: true, RawText: raw, Error: msg}
}

func parse(text string, kind Kind) (Result, bool) {
	if text == "" {
		return Result{}, false
	}
	switch kind {
	case KindArray:
		var list []any
		if err := json.Unmarshal([]byte(text), &list); err != nil || list == nil {
			return Result{}, false
		}
		return Result{List: list}, true
	default:
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
			return Result{}, false
		}
		return Result{Object: obj}, true
	}
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return strings.TrimSpace(s)
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
