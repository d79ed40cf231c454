// Package profile reads values out of stored autofill profile documents.
package profile

import (
	"fmt"
	"strconv"
	"strings"
)

const wrapperKey = "profile_data"

// Unwrap returns the payload of a document that nests it under profile_data.
// Other documents are returned unchanged.
func Unwrap(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	if inner, ok := doc[wrapperKey].(map[string]any); ok {
		return inner
	}
	return doc
}

// Lookup resolves a dotted canonical key such as personal.firstName inside doc
// and renders the value as form text. Empty and nested-object values report false.
func Lookup(doc map[string]any, canonicalKey string) (string, bool) {
	canonicalKey = strings.TrimSpace(canonicalKey)
	if canonicalKey == "" {
		return "", false
	}
	var current any = Unwrap(doc)
	for _, segment := range strings.Split(canonicalKey, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = node[segment]
		if !ok {
			return "", false
		}
	}
	text, ok := render(current)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

func render(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(v), true
	case bool:
		if v {
			return "Yes", true
		}
		return "No", true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if text, ok := render(item); ok && text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, ", "), len(parts) > 0
	case []string:
		return strings.Join(v, ", "), len(v) > 0
	case map[string]any:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
