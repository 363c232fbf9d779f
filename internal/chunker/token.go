package chunker

import (
	"math"
	"unicode"
)

// Estimator converts character counts to approximate token counts using
// per-script densities. CJK scripts pack far fewer characters per token
// than Latin text, so the two carry separate divisors.
type Estimator struct {
	CJKCharsPerToken   float64 // Han, Hangul, Hiragana, Katakana
	LatinCharsPerToken float64 // everything else
}

// DefaultEstimator returns the stock calibration: ~1.8 chars/token for
// CJK scripts, ~4 chars/token for Latin text.
func DefaultEstimator() Estimator {
	return Estimator{CJKCharsPerToken: 1.8, LatinCharsPerToken: 4.0}
}

func (e Estimator) withDefaults() Estimator {
	if e.CJKCharsPerToken <= 0 {
		e.CJKCharsPerToken = 1.8
	}
	if e.LatinCharsPerToken <= 0 {
		e.LatinCharsPerToken = 4.0
	}
	return e
}

// weight is the token cost of a single rune. The receiver must already
// have non-zero divisors.
func (e Estimator) weight(r rune) float64 {
	if isCJK(r) {
		return 1 / e.CJKCharsPerToken
	}
	return 1 / e.LatinCharsPerToken
}

// Estimate gives a deterministic token count for text. Intentionally
// not a real tokenizer: chunk budgets only need a stable, fast,
// provider-agnostic approximation.
func (e Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e = e.withDefaults()
	var w float64
	for _, r := range text {
		w += e.weight(r)
	}
	n := int(math.Ceil(w))
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateTokens estimates with the default calibration.
func EstimateTokens(text string) int {
	return DefaultEstimator().Estimate(text)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}
