// Package chattest provides an in-memory chat.Client for tests.
package chattest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/harun/chanbridge/pkg/chat"
)

// Post is a message the bot posted or edited
type Post struct {
	Channel string
	Handle  string
	Text    string
}

// ReactionEvent records an AddReaction or RemoveReaction call
type ReactionEvent struct {
	Channel string
	Handle  string
	Emoji   string
	Added   bool
}

// Fake is a scripted chat.Client. Messages are held per channel; history
// calls filter them by CompareTimestamps the way a real platform does.
type Fake struct {
	mu sync.Mutex

	BotUserID string
	MaxLength int

	channels []chat.Channel
	history  map[string][]chat.Message

	// HistoryErr makes FetchHistory fail for the given channel
	HistoryErr map[string]error
	// ChannelsErr makes ListMemberChannels fail
	ChannelsErr error
	// ReactionErr makes every reaction call fail
	ReactionErr error

	Posts        []Post
	Updates      []Post
	Reactions    []ReactionEvent
	HistoryCalls []string

	nextHandle int
}

var _ chat.Client = (*Fake)(nil)

// New creates a fake whose bot is addressed as <@botUserID>
func New(botUserID string) *Fake {
	return &Fake{
		BotUserID:  botUserID,
		MaxLength:  4000,
		history:    make(map[string][]chat.Message),
		HistoryErr: make(map[string]error),
	}
}

// AddChannel registers a channel the bot is a member of
func (f *Fake) AddChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, chat.Channel{ID: id, Name: id})
}

// Say appends an inbound message to a channel
func (f *Fake) Say(channelID string, msg chat.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[channelID] = append(f.history[channelID], msg)
}

func (f *Fake) ListMemberChannels(ctx context.Context) ([]chat.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ChannelsErr != nil {
		return nil, f.ChannelsErr
	}
	out := make([]chat.Channel, len(f.channels))
	copy(out, f.channels)
	return out, nil
}

func (f *Fake) FetchHistory(ctx context.Context, channelID, sinceExclusive string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.HistoryCalls = append(f.HistoryCalls, channelID)
	if err := f.HistoryErr[channelID]; err != nil {
		return nil, err
	}

	var out []chat.Message
	for _, m := range f.history[channelID] {
		if sinceExclusive == "" || chat.CompareTimestamps(m.Timestamp, sinceExclusive) > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Fake) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextHandle++
	handle := fmt.Sprintf("posted-%d", f.nextHandle)
	f.Posts = append(f.Posts, Post{Channel: channelID, Handle: handle, Text: text})
	return handle, nil
}

func (f *Fake) UpdateMessage(ctx context.Context, channelID, handle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Updates = append(f.Updates, Post{Channel: channelID, Handle: handle, Text: text})
	return nil
}

func (f *Fake) AddReaction(ctx context.Context, channelID, handle, emoji string) error {
	return f.react(channelID, handle, emoji, true)
}

func (f *Fake) RemoveReaction(ctx context.Context, channelID, handle, emoji string) error {
	return f.react(channelID, handle, emoji, false)
}

func (f *Fake) react(channelID, handle, emoji string, added bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReactionErr != nil {
		return f.ReactionErr
	}
	f.Reactions = append(f.Reactions, ReactionEvent{Channel: channelID, Handle: handle, Emoji: emoji, Added: added})
	return nil
}

func (f *Fake) mention() string {
	return "<@" + f.BotUserID + ">"
}

func (f *Fake) IsAddressedToBot(text string) bool {
	return strings.Contains(text, f.mention())
}

func (f *Fake) StripBotAddress(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, f.mention(), ""))
}

func (f *Fake) MaxMessageLength() int {
	return f.MaxLength
}

// PostTexts returns the text of every posted message in order
func (f *Fake) PostTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.Posts))
	for i, p := range f.Posts {
		out[i] = p.Text
	}
	return out
}

// HistoryCallCount returns how many FetchHistory calls were made
func (f *Fake) HistoryCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.HistoryCalls)
}
