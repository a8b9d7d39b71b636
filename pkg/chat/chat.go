// Package chat is the contract between the poll loop and a chat platform.
// Adapters live under internal/ (Slack, Discord); chattest holds an
// in-memory implementation for tests.
package chat

import (
	"context"
	"sort"
	"strings"
)

// Reaction names used to mark a prompt's progress. Adapters translate them
// to the platform's own emoji form.
const (
	ReactionPending = "hourglass_flowing_sand"
	ReactionSuccess = "white_check_mark"
	ReactionFailure = "x"
)

// Channel is a conversation the bot is a member of
type Channel struct {
	ID   string
	Name string
}

// Message is one inbound channel message
type Message struct {
	// Timestamp is the platform's ordering key (Slack ts, Discord snowflake)
	// and doubles as the message handle.
	Timestamp string
	User      string
	Text      string
	// IsBot marks bot and system messages (joins, topic changes); these
	// are consumed but never dispatched.
	IsBot bool
}

// Client is what the poll loop and dispatcher need from a chat platform
type Client interface {
	// ListMemberChannels returns every channel the bot belongs to
	ListMemberChannels(ctx context.Context) ([]Channel, error)

	// FetchHistory returns messages strictly newer than sinceExclusive, or
	// the most recent page when sinceExclusive is empty. Order is not
	// guaranteed.
	FetchHistory(ctx context.Context, channelID, sinceExclusive string) ([]Message, error)

	// PostMessage posts text and returns a handle for later updates
	PostMessage(ctx context.Context, channelID, text string) (string, error)

	UpdateMessage(ctx context.Context, channelID, handle, text string) error
	AddReaction(ctx context.Context, channelID, handle, emoji string) error
	RemoveReaction(ctx context.Context, channelID, handle, emoji string) error

	// IsAddressedToBot reports whether text mentions the bot
	IsAddressedToBot(text string) bool

	// StripBotAddress removes bot mentions and surrounding whitespace
	StripBotAddress(text string) string

	// MaxMessageLength is the longest text PostMessage accepts
	MaxMessageLength() int
}

// CompareTimestamps orders two platform timestamps. Both Slack's
// "seconds.micros" strings and Discord's decimal snowflakes compare as
// unsigned decimals: integer part by length then digits, then fraction.
func CompareTimestamps(a, b string) int {
	aInt, aFrac, _ := strings.Cut(a, ".")
	bInt, bFrac, _ := strings.Cut(b, ".")

	aInt = strings.TrimLeft(aInt, "0")
	bInt = strings.TrimLeft(bInt, "0")

	if len(aInt) != len(bInt) {
		if len(aInt) < len(bInt) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(aInt, bInt); c != 0 {
		return c
	}

	// Pad fractions to equal width so "5" and "50" compare as equal values
	for len(aFrac) < len(bFrac) {
		aFrac += "0"
	}
	for len(bFrac) < len(aFrac) {
		bFrac += "0"
	}
	return strings.Compare(aFrac, bFrac)
}

// SortChronological sorts msgs oldest first in place
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return CompareTimestamps(msgs[i].Timestamp, msgs[j].Timestamp) < 0
	})
}

// Newest returns the message with the greatest timestamp. ok is false for
// an empty slice.
func Newest(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	newest := msgs[0]
	for _, m := range msgs[1:] {
		if CompareTimestamps(m.Timestamp, newest.Timestamp) > 0 {
			newest = m
		}
	}
	return newest, true
}

// SplitMessage breaks text into chunks of at most limit bytes, preferring
// line breaks, then spaces, and never splitting a UTF-8 sequence.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], " ")
		}
		if cut <= 0 {
			cut = limit
			// Back off to a rune boundary
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		if chunk := strings.TrimRight(text[:cut], " \n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
