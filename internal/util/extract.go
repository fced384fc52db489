package util

import (
	"encoding/json"
	"regexp"
	"strings"
)

// MessageFields are the conventional keys unwrapped from structured answers, in priority order.
var MessageFields = []string{"message", "response", "answer", "text", "content", "result", "output"}

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	objectPattern      = regexp.MustCompile(`(?s)\{.*\}`)
	arrayPattern       = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExtractJSON finds a structured value in free-form model text. It tries a
// direct parse, then fenced code blocks, then the widest {...} or [...] span.
func ExtractJSON(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if v, ok := parseStructured(trimmed); ok {
		return v, true
	}

	for _, m := range fencedBlockPattern.FindAllStringSubmatch(trimmed, -1) {
		if v, ok := parseStructured(m[1]); ok {
			return v, true
		}
	}

	for _, re := range []*regexp.Regexp{objectPattern, arrayPattern} {
		if span := re.FindString(trimmed); span != "" {
			if v, ok := parseStructured(span); ok {
				return v, true
			}
		}
	}

	return nil, false
}

// ExtractOutput applies ExtractJSON and unwraps a message-like field.
// Text without a structured value is returned unchanged.
func ExtractOutput(text string) any {
	v, ok := ExtractJSON(text)
	if !ok {
		return text
	}
	return UnwrapMessage(v)
}

// UnwrapMessage returns the first MessageFields entry of an object, or v itself.
func UnwrapMessage(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, key := range MessageFields {
		if field, exists := obj[key]; exists && field != nil {
			return field
		}
	}
	return v
}

// parseStructured only accepts objects and arrays; bare scalars stay text.
func parseStructured(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
