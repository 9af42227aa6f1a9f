// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package security

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// breakMark is inserted inside a matched prompt delimiter to break token
// contiguity without changing what a human reader sees — a zero-width
// non-breaking mark, not a visible character.
const breakMark = "⁠" // WORD JOINER

// delimiterPatterns are escaped in order during sanitization. Each capture
// group keeps the matched text so the replacement can re-insert it with
// the break mark spliced in.
var delimiterPatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile(`(?i)\[\s*(system|admin|override|sudo)\s*\]`),
	regexp.MustCompile(`(?i)<\s*(system|admin|override|sudo)\s*>`),
	regexp.MustCompile(`(?i)</\s*(system|admin|override|sudo)\s*>`),
}

// controlCharPattern matches C0 control characters other than tab (0x09)
// and newline (0x0A).
var controlCharPattern = regexp.MustCompile("[\x00-\x08\x0B-\x1F\x7F]")

// SanitizeResult is the outcome of SanitizeInput.
type SanitizeResult struct {
	Sanitized     string
	WasModified   bool
	Modifications []string
}

// SanitizeInput runs the fixed sanitization pipeline: Unicode normalize,
// escape prompt delimiters, truncate, strip control characters. Each step
// that changes the string records its own modification tag. A null/empty
// input returns an unmodified empty result.
func SanitizeInput(text string, maxInputLength int) SanitizeResult {
	if text == "" {
		return SanitizeResult{Sanitized: "", WasModified: false, Modifications: nil}
	}

	result := text
	var mods []string

	normalized := norm.NFKC.String(result)
	if normalized != result {
		mods = append(mods, "unicode_normalized")
		result = normalized
	}

	escaped := escapeDelimiters(result)
	if escaped != result {
		mods = append(mods, "delimiters_escaped")
		result = escaped
	}

	if len([]rune(result)) > maxInputLength {
		runes := []rune(result)
		result = string(runes[:maxInputLength])
		mods = append(mods, "truncated")
	}

	stripped := controlCharPattern.ReplaceAllString(result, "")
	if stripped != result {
		mods = append(mods, "control_chars_stripped")
		result = stripped
	}

	return SanitizeResult{
		Sanitized:     result,
		WasModified:   len(mods) > 0,
		Modifications: mods,
	}
}

// escapeDelimiters inserts breakMark inside any matched delimiter so the
// token can no longer be read as a literal prompt-framing marker by a
// downstream model, while remaining legible to a human reviewer.
func escapeDelimiters(text string) string {
	result := text
	for _, re := range delimiterPatterns {
		result = re.ReplaceAllStringFunc(result, func(match string) string {
			if len(match) <= 1 {
				return breakMark + match
			}
			mid := len(match) / 2
			return match[:mid] + breakMark + match[mid:]
		})
	}
	return result
}

// Idempotent reports whether a second SanitizeInput pass leaves an
// already-sanitized string unchanged (compared case-insensitively). Used
// by property tests; not part of the runtime pipeline.
func Idempotent(text string, maxInputLength int) bool {
	first := SanitizeInput(text, maxInputLength)
	second := SanitizeInput(first.Sanitized, maxInputLength)
	return !second.WasModified || strings.EqualFold(second.Sanitized, first.Sanitized)
}
