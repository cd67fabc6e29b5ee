package matching

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks ("Zoë" -> "Zoe").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokenize splits s into lower-case tokens.
func Tokenize(s string) []string {
	var (
		tokens []string
		cur    []rune
		prev   rune
	)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}

	for _, r := range StripDiacritics(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			prev = 0
			continue
		}
		if prev != 0 && isBoundary(prev, r) {
			flush()
		}
		cur = append(cur, unicode.ToLower(r))
		prev = r
	}
	flush()
	return tokens
}

func isBoundary(prev, r rune) bool {
	switch {
	case unicode.IsLower(prev) && unicode.IsUpper(r):
		return true
	case unicode.IsLetter(prev) && unicode.IsDigit(r):
		return true
	case unicode.IsDigit(prev) && unicode.IsLetter(r):
		return true
	}
	return false
}

// Normalize returns the tokens of s joined by single spaces.
func Normalize(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// foldedText is the lower-cased, diacritic-free form of a text that regex
// aliases run against, with every byte mapped onto the space-joined token
// string. Separator bytes map to the gap between the surrounding tokens.
type foldedText struct {
	text   string
	tokens []string
	starts []int
	ends   []int
}

func foldText(s string) foldedText {
	var (
		f      foldedText
		b      strings.Builder
		cur    []rune
		curLen int
		joined int
		prev   rune
	)
	flush := func() {
		if len(cur) > 0 {
			f.tokens = append(f.tokens, string(cur))
			joined += curLen + 1
			cur = cur[:0]
			curLen = 0
		}
	}

	for _, r := range StripDiacritics(s) {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		if !word {
			flush()
			prev = 0
		} else if prev != 0 && isBoundary(prev, r) {
			flush()
		}

		lr := unicode.ToLower(r)
		start, end := joined+curLen, joined+curLen+utf8.RuneLen(lr)
		if !word {
			start, end = joined, max(joined-1, 0)
		}
		n, _ := b.WriteRune(lr)
		for range n {
			f.starts = append(f.starts, start)
			f.ends = append(f.ends, end)
		}
		if word {
			cur = append(cur, lr)
			curLen += utf8.RuneLen(lr)
			prev = r
		}
	}
	flush()
	f.text = b.String()
	return f
}
