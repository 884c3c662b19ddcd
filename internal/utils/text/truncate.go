package text

import (
	"strings"
	"unicode"
)

// Ellipsis is appended by truncating strategies when text is shortened.
const Ellipsis = "…"

// Truncator shortens text so that it fits in limit runes.
// Implementations must return text unchanged when it already fits.
type Truncator interface {
	Truncate(text string, limit int) string
}

// TruncatorFunc adapts a function to the Truncator interface.
type TruncatorFunc func(text string, limit int) string

// Truncate calls f(text, limit).
func (f TruncatorFunc) Truncate(text string, limit int) string {
	return f(text, limit)
}

// HardTruncate cuts text at exactly limit runes, reserving one rune for the ellipsis.
func HardTruncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 0 {
		return ""
	}
	return string(runes[:limit-1]) + Ellipsis
}

// WordBoundaryTruncator cuts at the last whitespace before the limit so that
// words are not split. When the last boundary would discard more than
// MaxBacktrack runes it falls back to a hard cut.
type WordBoundaryTruncator struct {
	// MaxBacktrack bounds how far back a boundary is searched. Zero means a quarter of the limit.
	MaxBacktrack int
}

// Truncate implements Truncator.
func (w WordBoundaryTruncator) Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 1 {
		return HardTruncate(text, limit)
	}

	// one rune is reserved for the ellipsis
	budget := limit - 1
	backtrack := w.MaxBacktrack
	if backtrack <= 0 {
		backtrack = limit / 4
	}

	cut := -1
	for i := budget; i > 0 && budget-i <= backtrack; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	if cut <= 0 {
		return HardTruncate(text, limit)
	}

	head := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if head == "" {
		return HardTruncate(text, limit)
	}
	return head + Ellipsis
}
