package dom

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds compatibility forms (full-width brackets, ideographic
// spaces) with NFKC and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// ContainsAll reports whether the normalised text contains every needle.
func ContainsAll(text string, needles ...string) bool {
	text = NormalizeText(text)
	for _, n := range needles {
		if !strings.Contains(text, NormalizeText(n)) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether the normalised text contains at least one
// needle, ignoring case.
func ContainsAny(text string, needles ...string) bool {
	text = strings.ToLower(NormalizeText(text))
	for _, n := range needles {
		if strings.Contains(text, strings.ToLower(NormalizeText(n))) {
			return true
		}
	}
	return false
}

// TextEquals compares two strings after normalisation.
func TextEquals(a, b string) bool {
	return NormalizeText(a) == NormalizeText(b)
}
