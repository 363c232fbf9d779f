package integrate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Trailing Hangul particles (josa), longest first so compound particles win
// over their final syllable.
var josa = []string{
	"에서", "에게", "으로", "부터", "까지", "처럼", "보다", "마다", "조차",
	"은", "는", "이", "가", "을", "를", "과", "와", "의", "에", "도", "만", "로",
}

// NormalizeTerm canonicalizes a surface form for merging: NFC, case fold,
// surrounding punctuation trimmed, then at most one trailing Hangul particle
// stripped when a usable stem remains. The result is a merge key, not a
// display form.
func NormalizeTerm(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if s == "" {
		return ""
	}
	return stripTrailingJosa(s)
}

func stripTrailingJosa(term string) string {
	for _, p := range josa {
		stem, ok := strings.CutSuffix(term, p)
		if !ok || stem == "" {
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(stem)
		if unicode.Is(unicode.Hangul, last) {
			// Single-syllable particles double as ordinary word-final
			// syllables (평가, 회의). Those need a two-syllable stem.
			if utf8.RuneCountInString(p) == 1 && utf8.RuneCountInString(stem) < 2 {
				continue
			}
		}
		return stem
	}
	return term
}
