package classifier

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	codeFenceRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairPayload normalizes a model reply into parseable JSON. Models wrap
// replies in code fences, add prose around the object, leave trailing commas
// or cut the object short; each case is handled in turn before falling back
// to the jsonrepair library. Returns the cleaned JSON and whether any repair
// was needed.
func RepairPayload(raw string) (string, bool, error) {
	candidate := strings.TrimSpace(raw)

	if valid(candidate) {
		return candidate, false, nil
	}

	if m := codeFenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}

	// Cut prose before the first brace and after the last.
	if start := strings.Index(candidate, "{"); start > 0 {
		candidate = candidate[start:]
	}
	if end := strings.LastIndex(candidate, "}"); end >= 0 && end < len(candidate)-1 {
		candidate = candidate[:end+1]
	}

	candidate = trailingCommaRe.ReplaceAllString(candidate, "$1")
	candidate = closeOpenBraces(candidate)

	if valid(candidate) {
		return candidate, true, nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", true, err
	}
	return repaired, true, nil
}

// closeOpenBraces appends the closers a truncated reply is missing,
// innermost first.
func closeOpenBraces(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

func valid(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}
