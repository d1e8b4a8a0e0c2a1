package logging

import (
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Redacted replaces any credential found in logged text.
const Redacted = "[REDACTED]"

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// Applied in order. Gateway and generation errors echo request details, so
// bearer headers and provider keys are the usual leak.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/]+=*`), "Bearer " + Redacted},
	{regexp.MustCompile(`sk-(ant-)?[A-Za-z0-9\-_]{16,}`), Redacted},
	{regexp.MustCompile(`(?i)(x-api-key|api[_-]?key|apikey)([=:]\s*)[A-Za-z0-9\-_]{12,}`), "${1}${2}" + Redacted},
	{regexp.MustCompile(`(?i)(password|pwd)=[^;&\s]+`), "${1}=" + Redacted},
	{regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`), "://" + Redacted + "@"},
}

// SanitizeText strips credentials from free text.
func SanitizeText(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

// SanitizeError is SanitizeText over err's message; nil yields "".
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// ErrorField is zap.Error with credentials removed.
func ErrorField(err error) zap.Field {
	return zap.String("error", SanitizeError(err))
}

// TruncateString cuts s to at most maxLen bytes without splitting a rune and
// marks the cut with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
