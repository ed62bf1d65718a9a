// Package jsonrepair decodes JSON produced by language models, which is
// frequently wrapped in markdown fences, truncated mid-object, or sprinkled
// with smart quotes and trailing commas. Repair is best-effort: each
// transform is applied in a fixed order and decoding is retried after the
// full chain has run.
package jsonrepair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Decode unmarshals raw LLM output into target, repairing the text if a
// straight unmarshal fails. The fallback order is fence stripping, brace
// balancing, quote normalization, then punctuation patching.
func Decode(raw string, target interface{}) error {
	if err := json.Unmarshal([]byte(raw), target); err == nil {
		return nil
	}

	repaired := Repair(raw)
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("failed to decode model output after repair: %w", err)
	}
	return nil
}

// Repair runs the full transform chain without decoding.
func Repair(raw string) string {
	s := StripFences(raw)
	s = BalanceBraces(s)
	s = NormalizeQuotes(s)
	s = PatchPunctuation(s)
	return s
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// StripFences removes a surrounding markdown code fence and any prose the
// model emitted before or after it. Without a fence, the text is trimmed to
// the outermost brace or bracket pair.
func StripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : end+1])
}

// BalanceBraces appends closing braces/brackets for every unclosed opener.
// Openers inside string literals are ignored.
func BalanceBraces(s string) string {
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
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// A string left open by truncation must be closed before the braces.
	if inString {
		s += `"`
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, // curly double quotes
	"‘", "'", "’", "'", // curly single quotes
)

// NormalizeQuotes replaces typographic quotes with their ASCII equivalents.
func NormalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	missingCommaRe  = regexp.MustCompile(`("|\d|true|false|null|\}|\])\s*\n\s*"`)
)

// PatchPunctuation removes trailing commas before closers and inserts commas
// between adjacent values that the model separated only with a newline.
func PatchPunctuation(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = missingCommaRe.ReplaceAllString(s, "$1,\n\"")
	return s
}
