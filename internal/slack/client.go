// Package slack adapts the Slack Web API to chat.Client. It polls with
// conversations.history rather than holding a socket open.
package slack

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/chanbridge/pkg/chat"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

const (
	// Slack truncates message text past 40k characters but recommends
	// staying under 4000 for readability
	maxMessageLength = 3900

	channelPageSize = 200
	historyPageSize = 200
	// Bounds catch-up after a long outage. Pages run newest to oldest, so
	// anything past the limit is never seen.
	maxHistoryPages = 10
)

// Subtypes that carry user-authored text; every other subtype is a system
// event such as a join or topic change.
var userSubtypes = map[string]bool{
	"":                 true,
	"thread_broadcast": true,
	"file_share":       true,
	"me_message":       true,
}

// Client is a chat.Client backed by slack-go
type Client struct {
	api       *slack.Client
	botUserID string
	botID     string
	mention   *regexp.Regexp
	logger    zerolog.Logger
}

var _ chat.Client = (*Client)(nil)

// New authenticates with token and returns a client for the bot user
func New(ctx context.Context, token string, opts ...slack.Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("slack bot token is required")
	}

	api := slack.New(token, opts...)

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth.test failed: %w", err)
	}

	c := &Client{
		api:       api,
		botUserID: auth.UserID,
		botID:     auth.BotID,
		mention:   regexp.MustCompile(`<@` + regexp.QuoteMeta(auth.UserID) + `(\|[^>]*)?>`),
		logger:    log.With().Str("component", "slack").Logger(),
	}

	c.logger.Info().
		Str("team", auth.Team).
		Str("bot_user", auth.User).
		Str("bot_user_id", auth.UserID).
		Msg("Connected to Slack")

	return c, nil
}

// BotUserID returns the bot's Slack user id
func (c *Client) BotUserID() string {
	return c.botUserID
}

func (c *Client) ListMemberChannels(ctx context.Context) ([]chat.Channel, error) {
	var out []chat.Channel
	cursor := ""

	for {
		channels, next, err := c.api.GetConversationsForUserContext(ctx, &slack.GetConversationsForUserParameters{
			Types:           []string{"public_channel", "private_channel"},
			Limit:           channelPageSize,
			Cursor:          cursor,
			ExcludeArchived: true,
		})
		if err != nil {
			return nil, fmt.Errorf("users.conversations failed: %w", err)
		}

		for _, ch := range channels {
			out = append(out, chat.Channel{ID: ch.ID, Name: ch.Name})
		}

		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func (c *Client) FetchHistory(ctx context.Context, channelID, sinceExclusive string) ([]chat.Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     historyPageSize,
		Oldest:    sinceExclusive,
		Inclusive: false,
	}

	var out []chat.Message
	for page := 0; page < maxHistoryPages; page++ {
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			var rateLimited *slack.RateLimitedError
			if errors.As(err, &rateLimited) {
				return nil, fmt.Errorf("conversations.history rate limited, retry after %s: %w", rateLimited.RetryAfter, err)
			}
			return nil, fmt.Errorf("conversations.history failed: %w", err)
		}

		for _, m := range resp.Messages {
			out = append(out, c.toMessage(m))
		}

		// The baseline only needs the newest page
		if sinceExclusive == "" || !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			return out, nil
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}

	c.logger.Warn().
		Str("channel", channelID).
		Int("pages", maxHistoryPages).
		Msg("History page limit reached, older unseen messages are skipped")
	return out, nil
}

func (c *Client) toMessage(m slack.Message) chat.Message {
	isBot := m.BotID != "" ||
		m.SubType == "bot_message" ||
		m.User == c.botUserID ||
		!userSubtypes[m.SubType]

	return chat.Message{
		Timestamp: m.Timestamp,
		User:      m.User,
		Text:      m.Text,
		IsBot:     isBot,
	}
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return ts, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, handle, text string) error {
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, handle, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("chat.update failed: %w", err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, handle, emoji string) error {
	if err := c.api.AddReactionContext(ctx, emoji, slack.NewRefToMessage(channelID, handle)); err != nil {
		return fmt.Errorf("reactions.add failed: %w", err)
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, handle, emoji string) error {
	if err := c.api.RemoveReactionContext(ctx, emoji, slack.NewRefToMessage(channelID, handle)); err != nil {
		return fmt.Errorf("reactions.remove failed: %w", err)
	}
	return nil
}

func (c *Client) IsAddressedToBot(text string) bool {
	return c.mention.MatchString(text)
}

func (c *Client) StripBotAddress(text string) string {
	return strings.TrimSpace(c.mention.ReplaceAllString(text, ""))
}

func (c *Client) MaxMessageLength() int {
	return maxMessageLength
}
