package llm

import (
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> blocks that reasoning models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// normalizeText turns backend output fragments into one plain text value.
// Fragments are joined with newlines, any leading <think> block is removed and
// surrounding whitespace trimmed. An empty result is reported as ErrorTypeEmpty.
func normalizeText(fragments []string) (string, error) {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f) != "" {
			parts = append(parts, f)
		}
	}
	text := strings.Join(parts, "\n")
	text = thinkTagPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewError(ErrorTypeEmpty, "empty response", true, nil)
	}
	return text, nil
}
