package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
)

// JSONModeInstruction is appended to the system instruction when a request
// asks for a JSON answer, since some backends only honor JSON mode when the
// prompt mentions it.
const JSONModeInstruction = "Respond with a single valid JSON object."

// SystemInstruction returns the effective system prompt for req.
func SystemInstruction(req Request) string {
	if !req.JSONMode {
		return req.SystemInstruction
	}
	if req.SystemInstruction == "" {
		return JSONModeInstruction
	}
	return req.SystemInstruction + "\n\n" + JSONModeInstruction
}

// ResponseText renders a function response as the string payload expected by
// backends that only accept textual tool results.
func ResponseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		b, _ := json.Marshal(map[string]string{"error": fr.Error})
		return string(b)
	}
	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	b, err := json.Marshal(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response)
	}
	return string(b)
}

// ResponseMap renders a function response as an object, for backends that
// require structured tool results.
func ResponseMap(fr core.FunctionResponse) map[string]any {
	if fr.Error != "" {
		return map[string]any{"error": fr.Error}
	}
	switch v := fr.Response.(type) {
	case map[string]any:
		return v
	case nil:
		return map[string]any{"output": ""}
	default:
		return map[string]any{"output": v}
	}
}

// EncodeArgs serializes call arguments to a JSON object string.
func EncodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeArgs parses a JSON argument payload. Malformed payloads are kept
// under the "input" key so the tool can still report a useful error.
func DecodeArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"input": raw}
	}
	return args
}

// DataURL encodes inline data as an RFC 2397 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + Base64(data)
}

// IsTextMime reports whether inline data of this type can be sent as text.
func IsTextMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		mimeType == "application/json" ||
		mimeType == "application/xml" ||
		mimeType == "application/x-ndjson" ||
		mimeType == "application/yaml"
}

// IsImageMime reports whether inline data is an image.
func IsImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// IsAudioMime reports whether inline data is audio.
func IsAudioMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/")
}

// IsVideoMime reports whether inline data is video.
func IsVideoMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

// IsPDFMime reports whether inline data is a PDF document.
func IsPDFMime(mimeType string) bool {
	return mimeType == "application/pdf"
}

// Base64 encodes inline data with standard padding.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// BinaryPlaceholder describes inline data a backend cannot accept natively.
func BinaryPlaceholder(p core.InlineDataPart) string {
	return fmt.Sprintf("[attachment %s, %d bytes, not supported by this provider]", p.MimeType, len(p.Data))
}
