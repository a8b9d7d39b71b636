package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCompareTimestamps(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1700000000.000100", "1700000000.000100", 0},
		{"1700000000.000100", "1700000000.000200", -1},
		{"1700000001.000000", "1700000000.999999", 1},
		{"999999999.000000", "1000000000.000000", -1},
		{"1700000000.5", "1700000000.500000", 0},
		{"1700000000", "1700000000.000001", -1},
		// Discord snowflakes
		{"1234567890123456789", "1234567890123456790", -1},
		{"987654321098765432", "1234567890123456789", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareTimestamps(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareTimestamps(tt.b, tt.a))
		})
	}
}

func TestSortChronological(t *testing.T) {
	msgs := []Message{
		{Timestamp: "1700000003.000000", Text: "c"},
		{Timestamp: "1700000001.000000", Text: "a"},
		{Timestamp: "1700000002.000000", Text: "b"},
	}

	SortChronological(msgs)

	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)
	assert.Equal(t, "c", msgs[2].Text)
}

func TestNewest(t *testing.T) {
	_, ok := Newest(nil)
	assert.False(t, ok)

	m, ok := Newest([]Message{
		{Timestamp: "1700000001.000000"},
		{Timestamp: "1700000009.000000"},
		{Timestamp: "1700000005.000000"},
	})
	assert.True(t, ok)
	assert.Equal(t, "1700000009.000000", m.Timestamp)
}

func TestSplitMessage(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitMessage("hello", 10))
	})

	t.Run("no limit", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitMessage("hello", 0))
	})

	t.Run("prefers line breaks", func(t *testing.T) {
		chunks := SplitMessage("line one\nline two\nline three", 18)
		assert.Equal(t, []string{"line one\nline two", "line three"}, chunks)
	})

	t.Run("falls back to spaces", func(t *testing.T) {
		chunks := SplitMessage("alpha beta gamma delta", 11)
		assert.Equal(t, []string{"alpha beta", "gamma delta"}, chunks)
	})

	t.Run("hard cut keeps runes whole", func(t *testing.T) {
		text := strings.Repeat("é", 10) // 20 bytes
		chunks := SplitMessage(text, 5)

		assert.Equal(t, text, strings.Join(chunks, ""))
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 5)
			assert.True(t, utf8.ValidString(c))
		}
	})

	t.Run("leading blank line yields no empty chunk", func(t *testing.T) {
		chunks := SplitMessage(" \n"+strings.Repeat("a", 12), 10)
		assert.Equal(t, []string{"aaaaaaaaaa", "aa"}, chunks)
	})
}
