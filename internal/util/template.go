package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Substitute replaces {{name}} and {{dot.path}} markers using lookup.
// Unresolved markers become the empty string.
func Substitute(text string, lookup func(path string) (any, bool)) string {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(marker string) string {
		path := placeholderPattern.FindStringSubmatch(marker)[1]
		v, ok := lookup(path)
		if !ok {
			return ""
		}
		return Stringify(v)
	})
}

// Stringify renders a variable value for inclusion in a prompt.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(val)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// LookupPath walks a dot path such as "user.tags.0" through nested maps and slices.
func LookupPath(root map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
