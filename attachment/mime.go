package attachment

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	octetStream = "application/octet-stream"
	plainText   = "text/plain"
)

var extFallbacks = map[string]string{
	".md":   "text/markdown",
	".csv":  "text/csv",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".json": "application/json",
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".heic": "image/heic",
	".m4a":  "audio/mp4",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
}

var structuredTypes = map[string]bool{
	"application/json":   true,
	"application/xml":    true,
	"application/yaml":   true,
	"application/x-yaml": true,
	"application/pdf":    true,
}

// NormalizeMime lower-cases a media type and strips parameters.
func NormalizeMime(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// MimeForPath guesses a media type from a file extension.
func MimeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if m, ok := extFallbacks[ext]; ok {
		return m
	}
	return NormalizeMime(mime.TypeByExtension(ext))
}

// IsOffice reports word processor, spreadsheet and presentation formats,
// which providers reject as inline data.
func IsOffice(mimeType string) bool {
	m := NormalizeMime(mimeType)
	switch {
	case m == "application/msword", m == "application/rtf":
		return true
	case strings.HasPrefix(m, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(m, "application/vnd.ms-"),
		strings.HasPrefix(m, "application/vnd.oasis.opendocument."):
		return true
	}
	return false
}

// IsAllowed reports whether providers accept mimeType as inline content:
// text, image, audio, video, structured data and pdf.
func IsAllowed(mimeType string) bool {
	m := NormalizeMime(mimeType)
	if structuredTypes[m] || strings.HasSuffix(m, "+json") || strings.HasSuffix(m, "+xml") {
		return true
	}
	for _, prefix := range []string{"text/", "image/", "audio/", "video/"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// effectiveMime applies the allow-list. Office types are rejected; other
// unrecognized types are downgraded to the extension guess or plain text.
func effectiveMime(declared, name string) (string, bool) {
	m := NormalizeMime(declared)
	if m == "" {
		m = MimeForPath(name)
	}
	if IsOffice(m) {
		return "", false
	}
	if IsAllowed(m) {
		return m, true
	}

	guess := MimeForPath(name)
	if IsOffice(guess) {
		return "", false
	}
	if IsAllowed(guess) {
		return guess, true
	}
	return plainText, true
}
