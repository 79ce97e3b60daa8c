package keys

import (
	"strings"
	"unicode"
)

// words splits a free-form label into lower-cased words. Apostrophes are
// dropped, every other non-alphanumeric rune separates words, and a
// lower/digit to upper transition starts a new word ("livesImpacted").
func words(label string) []string {
	var (
		out  []string
		cur  strings.Builder
		prev rune
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range label {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				flush()
			}
			cur.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
		prev = r
	}
	flush()
	return out
}

// SnakeKey converts a label into a canonical snake_case machine key.
func SnakeKey(label string) string {
	return strings.Join(words(label), "_")
}

// CamelKey converts a label into the camelCase form used by the display layer.
func CamelKey(label string) string {
	ws := words(label)
	var b strings.Builder
	for i, w := range ws {
		if i == 0 {
			b.WriteString(w)
			continue
		}
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	return b.String()
}

// Slug converts a label into a hyphenated lower-case slug.
func Slug(label string) string {
	return strings.Join(words(label), "-")
}

// Tokens returns the normalized words of a label.
func Tokens(label string) []string {
	return words(label)
}
