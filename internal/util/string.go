package util

import (
	"strings"
	"unicode"
)

// TrimAnswer strips surrounding whitespace and every backtick from a short
// model answer. Models like to wrap single tokens in inline code.
func TrimAnswer(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "`", ""))
}

// NormalizeKey lowercases s and collapses runs of whitespace into a single
// space, so that "Acme  Corp " and "acme corp" share a cache entry.
func NormalizeKey(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}
