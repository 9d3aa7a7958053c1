package utils

import (
	"fmt"
	"strings"
)

func UrlQuery(s string) string { return strings.ReplaceAll(s, " ", "+") }

func Str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// NormalizeField lowercases and collapses whitespace so that provider
// answers like " Carrier " and "carrier" compare equal.
func NormalizeField(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ExtractFirstJSON attempts to find the first top-level JSON object in a string
func ExtractFirstJSON(s string) string {
	return extractBalanced(s, '{', '}')
}

// ExtractFirstJSONArray attempts to find the first top-level JSON array in a string
func ExtractFirstJSONArray(s string) string {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, open, close rune) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			if depth == 0 {
				start = i
			}
			depth++
		case ch == close:
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
