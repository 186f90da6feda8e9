// Package observability carries the cross-cutting redaction logic the
// Telemetry component (C1, §4.14) needs before anything reaches a log
// line: API keys, bearer tokens, and other secret-shaped strings must
// never round-trip into a log sink, even when a caller passes them
// through Options/Config fields telemetry doesn't otherwise interpret.
package observability

import (
	"regexp"
	"strings"
)

// Redactor masks sensitive substrings and map values before logging.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor builds a Redactor pre-loaded with patterns for the
// secret shapes ExLLM actually carries: provider API keys, bearer
// tokens, and raw Authorization headers that might leak into a
// request/response log via Options or error messages.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	r.AddPattern(`sk-proj-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_OPENAI_PROJECT_KEY]")
	r.AddPattern(`sk-ant-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_ANTHROPIC_KEY]")
	r.AddPattern(`sk-[a-zA-Z0-9]{20,}`, "[REDACTED_API_KEY]")
	r.AddPattern(`AIza[a-zA-Z0-9\-_]{35}`, "[REDACTED_GOOGLE_KEY]")
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_.]+`, "Bearer [REDACTED]")
	r.AddPattern(`Authorization:\s*(?:Bearer\s+)?\S+`, "Authorization: [REDACTED]")
}

// AddPattern registers a custom redaction rule. Invalid patterns are
// silently skipped rather than failing the caller.
func (r *Redactor) AddPattern(pattern, replacement string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{regex: regex, replacement: replacement})
}

// Redact applies every pattern to input in order.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// sensitiveKeys flags a field name as secret-shaped regardless of its
// value, matched case-insensitively as a substring.
var sensitiveKeys = []string{"key", "token", "secret", "password", "auth", "credential"}

// RedactMap recursively redacts values in m, blanking any value whose
// key looks secret-shaped and pattern-redacting the rest.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = r.redactValue(k, v)
	}
	return result
}

func (r *Redactor) redactValue(key string, value any) any {
	lowerKey := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lowerKey, sk) {
			return "[REDACTED]"
		}
	}

	switch v := value.(type) {
	case string:
		return r.Redact(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = r.redactValue("", item)
		}
		return result
	default:
		return value
	}
}
