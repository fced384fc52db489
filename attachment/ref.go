package attachment

import (
	"encoding/base64"
	"strings"
)

// Ref points at attachment content: a local path, an http(s) URL, a data
// URI or inline bytes.
type Ref struct {
	URI      string
	Data     []byte
	MimeType string
}

// IsZero reports whether the ref carries neither a location nor data.
func (r Ref) IsZero() bool { return r.URI == "" && len(r.Data) == 0 }

// Name returns the path component used for extension based MIME guesses.
func (r Ref) Name() string {
	name := r.URI
	if strings.HasPrefix(name, "data:") {
		return ""
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return name
}

// refFields are the keys recognized on object-shaped references.
var refFields = []string{"path", "file_path", "uri", "url", "data"}

// ParseRef interprets a variable or tool value as an attachment reference.
// Strings are locations; maps must carry one of path, file_path, uri, url or
// data, with an optional mime_type / mimeType.
func ParseRef(v any) (Ref, bool) {
	switch val := v.(type) {
	case Ref:
		return val, !val.IsZero()
	case *Ref:
		if val == nil {
			return Ref{}, false
		}
		return *val, !val.IsZero()
	case string:
		s := strings.TrimSpace(val)
		return Ref{URI: s}, s != ""
	case []byte:
		return Ref{Data: val}, len(val) > 0
	case map[string]any:
		ref := Ref{MimeType: firstString(val, "mime_type", "mimeType", "mime", "content_type")}
		for _, key := range refFields {
			switch field := val[key].(type) {
			case string:
				if field == "" {
					continue
				}
				if key == "data" && !strings.HasPrefix(field, "data:") {
					ref.Data = decodeInline(field)
				} else {
					ref.URI = field
				}
			case []byte:
				ref.Data = field
			default:
				continue
			}
			return ref, !ref.IsZero()
		}
	}
	return Ref{}, false
}

// ParseRefs expands a single value or a list into refs, skipping anything
// unrecognized.
func ParseRefs(v any) []Ref {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case []Ref:
		return append([]Ref(nil), val...)
	case nil:
		return nil
	default:
		items = []any{val}
	}

	refs := make([]Ref, 0, len(items))
	for _, item := range items {
		if ref, ok := ParseRef(item); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// decodeInline treats an inline data string as base64, falling back to its
// raw bytes when it does not decode.
func decodeInline(s string) []byte {
	trimmed := strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil {
		return b
	}
	return []byte(s)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
