package stops

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	numericRe = regexp.MustCompile(`^[0-9]+$`)
	alphaRe   = regexp.MustCompile(`[A-Za-z]`)
)

// fullIDMinLen is the length above which a token is treated as a full stop_id
// even without letters; short codes on Dublin poles never exceed six digits.
const fullIDMinLen = 6

// Normalize trims surrounding whitespace from a user-supplied token.
func Normalize(query string) string {
	return strings.TrimSpace(query)
}

// IsNumeric reports whether the token is made only of ASCII digits.
func IsNumeric(token string) bool {
	return numericRe.MatchString(token)
}

// IsLikelyFullID reports whether the token looks like a whole stop_id:
// it contains a letter or is longer than a short code. Length counts
// characters, not bytes.
func IsLikelyFullID(token string) bool {
	return alphaRe.MatchString(token) || utf8.RuneCountInString(token) > fullIDMinLen
}
