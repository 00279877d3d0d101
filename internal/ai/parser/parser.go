// Package parser extracts typed JSON structures from model output. Model
// text is untrusted: it may be clean JSON, JSON wrapped in markdown fences
// or prose, or garbage. Decoding never fails the caller: it reports ok or
// not, and the caller substitutes its empty/default value.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*([{\\[].*?[}\\]])\\s*```")

// DecodeObject fills v from the first JSON object found in response.
func DecodeObject(response string, v interface{}) bool {
	return decode(response, v, '{', '}')
}

// DecodeArray fills v from the first JSON array found in response.
func DecodeArray(response string, v interface{}) bool {
	return decode(response, v, '[', ']')
}

func decode(response string, v interface{}, open, close byte) bool {
	if err := json.Unmarshal([]byte(response), v); err == nil {
		return true
	}

	cleaned := cleanResponse(response)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return true
	}

	if part, ok := extractBalanced(cleaned, open, close); ok {
		if err := json.Unmarshal([]byte(part), v); err == nil {
			return true
		}
	}
	if part, ok := extractBalanced(response, open, close); ok {
		if err := json.Unmarshal([]byte(part), v); err == nil {
			return true
		}
	}
	return false
}

func cleanResponse(response string) string {
	matches := fencedJSONRe.FindStringSubmatch(response)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	response = strings.TrimPrefix(strings.TrimSpace(response), "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractBalanced returns the first balanced open..close span, tracking
// string literals and escapes so braces inside JSON strings don't miscount.
func extractBalanced(s string, open, close byte) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			continue
		}

		if ch == open {
			if depth == 0 {
				start = i
			}
			depth++
			continue
		}

		if ch == close {
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
