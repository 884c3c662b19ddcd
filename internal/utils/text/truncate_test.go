package text_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"social-relay/internal/utils/text"
)

func TestHardTruncate(t *testing.T) {
	assert.Equal(t, "hello", text.HardTruncate("hello", 5))
	assert.Equal(t, "hell…", text.HardTruncate("hello world", 5))
	assert.Equal(t, "日本…", text.HardTruncate("日本語のテキスト", 3))
	assert.Equal(t, "", text.HardTruncate("hello", 0))
}

func TestWordBoundaryTruncator(t *testing.T) {
	tr := text.WordBoundaryTruncator{}

	t.Run("fits unchanged", func(t *testing.T) {
		assert.Equal(t, "short text", tr.Truncate("short text", 280))
	})

	t.Run("cuts at last space", func(t *testing.T) {
		got := tr.Truncate("the quick brown fox jumps", 18)
		assert.Equal(t, "the quick brown…", got)
		assert.LessOrEqual(t, text.CountRunes(got), 18)
	})

	t.Run("drops trailing punctuation before ellipsis", func(t *testing.T) {
		got := text.WordBoundaryTruncator{MaxBacktrack: 5}.Truncate("hello, world and more", 10)
		assert.Equal(t, "hello…", got)
	})

	t.Run("falls back to hard cut without boundary", func(t *testing.T) {
		got := tr.Truncate(strings.Repeat("a", 300), 280)
		assert.Equal(t, 280, text.CountRunes(got))
		assert.True(t, strings.HasSuffix(got, text.Ellipsis))
	})

	t.Run("result never exceeds limit", func(t *testing.T) {
		msg := strings.Repeat("word ", 100)
		for limit := 2; limit < 300; limit += 7 {
			assert.LessOrEqual(t, text.CountRunes(tr.Truncate(msg, limit)), limit)
		}
	})
}

func TestTruncatorFunc(t *testing.T) {
	var tr text.Truncator = text.TruncatorFunc(text.HardTruncate)
	assert.Equal(t, "ab…", tr.Truncate("abcdef", 3))
}
