package stringutil

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
)

// PascalToSnake converts a Go field name to a column or parameter name. A
// pluralised initialism stays in one piece, so VideoIDs becomes video_ids.
func PascalToSnake(s string) string {
	var b bytes.Buffer

	for i, c := range s {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(rune(s[i-1])) || (i+1 < len(s) && unicode.IsLower(rune(s[i+1])) && !pluralInitialism(s, i))) {
				b.WriteByte('_')
			}

			b.WriteRune(unicode.ToLower(c))
		} else {
			b.WriteRune(c)
		}
	}

	return b.String()
}

// pluralInitialism reports whether the upper-case letter at i ends an
// initialism followed by a plural "s", as the D in VideoIDs does.
func pluralInitialism(s string, i int) bool {
	if i == 0 || !unicode.IsUpper(rune(s[i-1])) || s[i+1] != 's' {
		return false
	}

	return i+2 == len(s) || unicode.IsUpper(rune(s[i+2]))
}

var uncountable = map[string]bool{
	"fish":  true,
	"sheep": true,
	"media": true,
}

// Plural makes an English plural, keeping the casing of the input.
func Plural(s string) string {
	if s == "" || uncountable[strings.ToLower(s)] {
		return s
	}

	if l := strings.ToLower(s); strings.HasSuffix(l, "s") || strings.HasSuffix(l, "x") {
		if unicode.IsUpper(rune(s[len(s)-1])) {
			return s + "ES"
		}

		return s + "es"
	}

	return s + "s"
}

// Count formats n with the singular or plural form of noun.
func Count(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}

	return fmt.Sprintf("%d %s", n, Plural(noun))
}

func LooksTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on", "enabled", "enable", "active", "ok", "okay":
		return true
	default:
		return false
	}
}
