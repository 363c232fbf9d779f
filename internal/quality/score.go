// Package quality scores extracted text and detects scanned documents.
package quality

import (
	"strings"
	"unicode"
)

// Component weights of the quality score. They sum to 1 so the score
// stays in [0,1].
const (
	weightAlnum      = 0.40
	weightClean      = 0.30
	weightWhitespace = 0.20
	weightWordlike   = 0.10
)

// Whitespace band: ratios inside [wsLow, wsHigh] look like prose;
// outside the band the component decays linearly.
const (
	wsLow  = 0.05
	wsHigh = 0.30
)

// Score rates extracted text on a 0-1 scale. Deterministic: identical
// text always yields an identical score. Callers pass a bounded sample
// of the extraction, not necessarily the whole document.
func Score(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	var total, alnum, garbage, space int
	for _, r := range text {
		total++
		switch {
		case isGarbageRune(r):
			garbage++
		case unicode.IsSpace(r):
			space++
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			alnum++
		}
	}
	if total == 0 {
		return 0
	}

	alnumRatio := float64(alnum) / float64(total)
	cleanRatio := 1 - float64(garbage)/float64(total)
	wsComponent := whitespaceBand(float64(space) / float64(total))
	wordlike := wordlikeRatio(text)

	return weightAlnum*alnumRatio +
		weightClean*cleanRatio +
		weightWhitespace*wsComponent +
		weightWordlike*wordlike
}

// isGarbageRune reports characters that signal broken extraction:
// Private Use Area glyphs, the replacement character, and control
// characters other than \n \r \t.
func isGarbageRune(r rune) bool {
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	if r == 0xFFFD {
		return true
	}
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// whitespaceBand maps a whitespace ratio to [0,1]: full credit inside
// the prose band, linear decay toward none at 0 and all whitespace.
func whitespaceBand(ratio float64) float64 {
	switch {
	case ratio >= wsLow && ratio <= wsHigh:
		return 1
	case ratio < wsLow:
		return ratio / wsLow
	default:
		return (1 - ratio) / (1 - wsHigh)
	}
}

// wordlikeRatio is the share of whitespace-split tokens whose rune
// length lands in the usual word range (2-15).
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
