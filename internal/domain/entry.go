package domain

import (
	"strconv"
	"strings"
)

// textFields are the entry fields considered searchable, in concatenation order.
var textFields = []string{"title", "description", "name", "content", "body", "summary"}

// metadataFields are the denormalized display fields carried into the index.
var metadataFields = []string{
	"title", "description", "name", "price", "category", "brand", "image_url", "url", "locale",
}

// Entry is one content record fetched from the CMS. Fields holds the raw
// entry payload; the CMS schema is not known ahead of time.
type Entry struct {
	UID         string
	ContentType string
	Fields      map[string]any
}

// SearchableText concatenates the entry's known text fields into the string
// that gets embedded. Rich-text fields may arrive as {"value": ...} objects.
func (e Entry) SearchableText() string {
	var parts []string
	for _, name := range textFields {
		raw, ok := e.Fields[name]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case map[string]any:
			if inner, ok := v["value"].(string); ok && inner != "" {
				parts = append(parts, inner)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Metadata extracts the display fields stored alongside the vector.
// Numeric values are kept in their string form for hash storage.
func (e Entry) Metadata() map[string]string {
	meta := map[string]string{
		"entry_uid":    e.UID,
		"content_type": e.ContentType,
	}
	for _, name := range metadataFields {
		raw, ok := e.Fields[name]
		if !ok || raw == nil {
			continue
		}
		if s := stringify(raw); s != "" {
			meta[name] = s
		}
	}
	return meta
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case map[string]any:
		if inner, ok := t["value"].(string); ok {
			return inner
		}
	}
	return ""
}
