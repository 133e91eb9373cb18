// src/security/validation/sanitizers.go
package validation

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy *bluemonday.Policy

func init() {
	strictHTMLPolicy = bluemonday.StrictPolicy() // removes all HTML tags
}

// SanitizeText removes all HTML tags and attributes from an input string,
// preventing XSS before saving to the database.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
