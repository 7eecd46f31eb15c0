// Package naturalsort provides natural ordering for strings containing
// embedded numbers, so "img2.png" sorts before "img10.png".
//
// Each string is tokenized into alternating runs of digits and non-digits.
// Digit runs compare by numeric value, non-digit runs compare as lowercased
// text. Tokens carry an explicit kind so comparison stays total even when
// two strings disagree on which positions hold digits: a digit run orders
// before a text run at the same position.
package naturalsort

import (
	"sort"
	"strings"
)

type tokenKind int

const (
	kindDigits tokenKind = iota
	kindText
)

// token is one run of a tokenized string. For digit runs, value holds the
// run with leading zeros stripped; for text runs, value holds the lowercased
// run. raw is the original run either way.
type token struct {
	kind  tokenKind
	value string
	raw   string
}

// tokenize splits s into digit and non-digit runs.
func tokenize(s string) []token {
	var tokens []token
	start := 0
	digits := false

	flush := func(end int) {
		if end == start {
			return
		}
		raw := s[start:end]
		if digits {
			value := strings.TrimLeft(raw, "0")
			tokens = append(tokens, token{kind: kindDigits, value: value, raw: raw})
		} else {
			tokens = append(tokens, token{kind: kindText, value: strings.ToLower(raw), raw: raw})
		}
		start = end
	}

	for i := 0; i < len(s); i++ {
		d := s[i] >= '0' && s[i] <= '9'
		if i == 0 {
			digits = d
			continue
		}
		if d != digits {
			flush(i)
			digits = d
		}
	}
	flush(len(s))
	return tokens
}

// compareTokens orders two tokens of the same position.
func compareTokens(a, b token) int {
	if a.kind != b.kind {
		// Digit runs order before text runs so mixed shapes stay total.
		if a.kind == kindDigits {
			return -1
		}
		return 1
	}

	if a.kind == kindDigits {
		// Zero-trimmed values compare as integers: a longer value is a
		// larger number, equal lengths compare lexically.
		if len(a.value) != len(b.value) {
			if len(a.value) < len(b.value) {
				return -1
			}
			return 1
		}
		if a.value != b.value {
			return strings.Compare(a.value, b.value)
		}
		// Same numeric value; differing zero-padding decides ("01" < "1").
		return strings.Compare(a.raw, b.raw)
	}

	return strings.Compare(a.value, b.value)
}

// Compare returns -1, 0, or 1 ordering a relative to b by the natural key.
func Compare(a, b string) int {
	ta := tokenize(a)
	tb := tokenize(b)

	for i := 0; i < len(ta) && i < len(tb); i++ {
		if c := compareTokens(ta[i], tb[i]); c != 0 {
			return c
		}
	}
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	// Tokens tie (case or padding differences only); raw string decides.
	return strings.Compare(a, b)
}

// Less reports whether a orders before b by the natural key.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts ss in place by the natural key. The sort is stable so equal
// keys keep their input order.
func Sort(ss []string) {
	sort.SliceStable(ss, func(i, j int) bool {
		return Less(ss[i], ss[j])
	})
}
