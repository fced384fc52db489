// Package attachment locates, reads and encodes binary references into inline
// content, filtering formats providers cannot accept.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// DefaultMaxBytes caps a single attachment.
const DefaultMaxBytes int64 = 20 << 20

// WellKnownVariables are consulted when no explicit source is configured.
var WellKnownVariables = []string{"attachment", "file", "image", "document", "media"}

var (
	errTooLarge   = errors.New("attachment exceeds size limit")
	errBadDataURI = errors.New("malformed data URI")
)

// Options configures a Resolver.
type Options struct {
	// Source is a variable name or location tried before any other lookup.
	Source string
	// Variables backs discovery and variable-name references; may be nil.
	Variables  core.VariableStore
	HTTPClient *http.Client
	MaxBytes   int64
	WellKnown  []string
	Logger     logging.Logger
}

// Resolver turns attachment references into core.InlineDataPart values.
// Resolution never fails the caller: unreadable or rejected references are
// logged and skipped.
type Resolver struct {
	opts Options
}

// NewResolver creates a resolver.
func NewResolver(optFns ...func(o *Options)) *Resolver {
	opts := Options{
		HTTPClient: http.DefaultClient,
		MaxBytes:   DefaultMaxBytes,
		WellKnown:  WellKnownVariables,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{opts: opts}
}

// Resolve reads ref and returns its inline form, or false when nothing usable
// was found.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (core.InlineDataPart, bool) {
	data, declared, err := r.read(ctx, ref)
	if err != nil {
		r.skip(ref, err.Error())
		return core.InlineDataPart{}, false
	}
	if len(data) == 0 {
		r.skip(ref, "empty content")
		return core.InlineDataPart{}, false
	}

	if declared == "" {
		declared = MimeForPath(ref.Name())
	}
	if declared == "" {
		declared = http.DetectContentType(data)
	}

	mimeType, ok := effectiveMime(declared, ref.Name())
	if !ok {
		r.skip(ref, "unsupported type "+NormalizeMime(declared))
		return core.InlineDataPart{}, false
	}

	r.opts.Logger.Debug("attachment.resolved", "ref", describe(ref), "mime_type", mimeType, "bytes", len(data))
	return core.InlineDataPart{MimeType: mimeType, Data: data}, true
}

// ResolveAll resolves refs in order, dropping the ones that fail.
func (r *Resolver) ResolveAll(ctx context.Context, refs []Ref) []core.InlineDataPart {
	parts := make([]core.InlineDataPart, 0, len(refs))
	for _, ref := range refs {
		if part, ok := r.Resolve(ctx, ref); ok {
			parts = append(parts, part)
		}
	}
	return parts
}

// ResolveValue resolves an attachment list returned by a tool. String items
// naming a bound variable are replaced by that variable's value.
func (r *Resolver) ResolveValue(ctx context.Context, v any) []core.InlineDataPart {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}

	var refs []Ref
	for _, item := range items {
		if name, isString := item.(string); isString && r.opts.Variables != nil {
			if bound, exists := r.opts.Variables.Get(name); exists {
				refs = append(refs, ParseRefs(bound)...)
				continue
			}
		}
		refs = append(refs, ParseRefs(item)...)
	}
	return r.ResolveAll(ctx, refs)
}

// Discover finds references in the configured source, then the well-known
// variables, then a shallow scan of all variables for object-shaped values
// carrying a reference field.
func (r *Resolver) Discover() []Ref {
	vars := r.opts.Variables

	if src := r.opts.Source; src != "" {
		if vars != nil {
			if v, ok := vars.Get(src); ok {
				if refs := ParseRefs(v); len(refs) > 0 {
					return refs
				}
			}
		}
		if strings.ContainsAny(src, "/.:") {
			return []Ref{{URI: src}}
		}
	}

	if vars == nil {
		return nil
	}

	for _, name := range r.opts.WellKnown {
		if v, ok := vars.Get(name); ok {
			if refs := ParseRefs(v); len(refs) > 0 {
				return refs
			}
		}
	}

	snapshot := vars.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []Ref
	for _, name := range names {
		obj, ok := snapshot[name].(map[string]any)
		if !ok {
			continue
		}
		if ref, ok := ParseRef(obj); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (r *Resolver) read(ctx context.Context, ref Ref) ([]byte, string, error) {
	if len(ref.Data) > 0 {
		if int64(len(ref.Data)) > r.opts.MaxBytes {
			return nil, "", errTooLarge
		}
		return ref.Data, ref.MimeType, nil
	}

	uri := ref.URI
	switch {
	case uri == "":
		return nil, "", errors.New("empty reference")
	case strings.HasPrefix(uri, "data:"):
		data, mimeType, err := decodeDataURI(uri)
		if err != nil {
			return nil, "", err
		}
		return data, firstNonEmpty(ref.MimeType, mimeType), nil
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		data, mimeType, err := r.fetch(ctx, uri)
		if err != nil {
			return nil, "", err
		}
		return data, firstNonEmpty(ref.MimeType, mimeType), nil
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, "", err
		}
		uri = u.Path
	}

	data, err := r.readFile(uri)
	return data, ref.MimeType, err
}

func (r *Resolver) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > r.opts.MaxBytes {
		return nil, errTooLarge
	}
	return os.ReadFile(path)
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > r.opts.MaxBytes {
		return nil, "", errTooLarge
	}

	mimeType := NormalizeMime(resp.Header.Get("Content-Type"))
	if mimeType == octetStream {
		mimeType = ""
	}
	return data, mimeType, nil
}

// decodeDataURI parses data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errBadDataURI
	}

	isBase64 := strings.HasSuffix(header, ";base64")
	mimeType := NormalizeMime(strings.TrimSuffix(header, ";base64"))

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", errBadDataURI, err)
		}
		return data, mimeType, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errBadDataURI, err)
	}
	if mimeType == "" {
		mimeType = plainText
	}
	return []byte(text), mimeType, nil
}

func (r *Resolver) skip(ref Ref, reason string) {
	r.opts.Logger.Warn("attachment.skipped", "ref", describe(ref), "reason", reason)
}

func describe(ref Ref) string {
	if ref.URI == "" {
		return fmt.Sprintf("inline(%d bytes)", len(ref.Data))
	}
	if strings.HasPrefix(ref.URI, "data:") {
		return "data-uri"
	}
	return ref.URI
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
