// Package text provides utilities for message text processing.
// It counts characters the way the publishing platforms do (runes, not bytes)
// and offers pluggable truncation strategies for over-length messages.
package text

import "unicode/utf8"

// CountRunes returns the number of Unicode code points in text. Platform
// character limits are expressed in code points, so "こんにちは" counts 5.
// Invalid UTF-8 bytes count one each.
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}
