// Package discord adapts the Discord REST API to chat.Client. History is
// read with ChannelMessages(after=cursor); message snowflakes serve as
// timestamps since they sort by creation time.
package discord

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/harun/chanbridge/pkg/chat"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Discord rejects content over 2000 characters
	maxMessageLength = 1900

	pageSize        = 100
	maxHistoryPages = 10
	maxGuildPages   = 10
)

// Reaction names map to unicode emoji; unknown names pass through so
// custom "name:id" emoji still work.
var emojiByName = map[string]string{
	chat.ReactionPending: "⏳",
	chat.ReactionSuccess: "✅",
	chat.ReactionFailure: "❌",
}

// restAPI is the subset of *discordgo.Session the adapter calls
type restAPI interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserGuilds(limit int, beforeID, afterID string, withCounts bool, options ...discordgo.RequestOption) ([]*discordgo.UserGuild, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
}

// Client is a chat.Client backed by discordgo
type Client struct {
	api       restAPI
	botUserID string
	guildIDs  map[string]bool
	mention   *regexp.Regexp
	logger    zerolog.Logger
}

var _ chat.Client = (*Client)(nil)

// New opens a REST session for the bot token (without the "Bot " prefix).
// guildIDs restricts polling; empty means every guild the bot is in.
func New(ctx context.Context, token string, guildIDs []string) (*Client, error) {
	if token == "" {
		return nil, errors.New("discord bot token is required")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return newClient(ctx, session, guildIDs)
}

func newClient(ctx context.Context, api restAPI, guildIDs []string) (*Client, error) {
	me, err := api.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot user: %w", err)
	}

	c := &Client{
		api:       api,
		botUserID: me.ID,
		mention:   regexp.MustCompile(`<@!?` + regexp.QuoteMeta(me.ID) + `>`),
		logger:    log.With().Str("component", "discord").Logger(),
	}
	if len(guildIDs) > 0 {
		c.guildIDs = make(map[string]bool, len(guildIDs))
		for _, id := range guildIDs {
			c.guildIDs[id] = true
		}
	}

	c.logger.Info().
		Str("bot_user", me.Username).
		Str("bot_user_id", me.ID).
		Int("guild_filter", len(guildIDs)).
		Msg("Connected to Discord")

	return c, nil
}

// BotUserID returns the bot's Discord user id
func (c *Client) BotUserID() string {
	return c.botUserID
}

func (c *Client) ListMemberChannels(ctx context.Context) ([]chat.Channel, error) {
	guilds, err := c.listGuilds(ctx)
	if err != nil {
		return nil, err
	}

	var out []chat.Channel
	for _, g := range guilds {
		if c.guildIDs != nil && !c.guildIDs[g.ID] {
			continue
		}

		channels, err := c.api.GuildChannels(g.ID, discordgo.WithContext(ctx))
		if err != nil {
			c.logger.Warn().Err(err).Str("guild", g.ID).Msg("Failed to list guild channels, skipping guild")
			continue
		}

		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
				continue
			}
			out = append(out, chat.Channel{ID: ch.ID, Name: ch.Name})
		}
	}

	return out, nil
}

func (c *Client) listGuilds(ctx context.Context) ([]*discordgo.UserGuild, error) {
	var out []*discordgo.UserGuild
	after := ""

	for page := 0; page < maxGuildPages; page++ {
		guilds, err := c.api.UserGuilds(pageSize, "", after, false, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list guilds: %w", err)
		}
		out = append(out, guilds...)
		if len(guilds) < pageSize {
			break
		}
		after = guilds[len(guilds)-1].ID
	}

	return out, nil
}

func (c *Client) FetchHistory(ctx context.Context, channelID, sinceExclusive string) ([]chat.Message, error) {
	var out []chat.Message
	after := sinceExclusive

	for page := 0; page < maxHistoryPages; page++ {
		msgs, err := c.api.ChannelMessages(channelID, pageSize, "", after, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch channel messages: %w", err)
		}

		for _, m := range msgs {
			out = append(out, c.toMessage(m))
		}

		// The baseline only needs the newest page
		if sinceExclusive == "" || len(msgs) < pageSize {
			return out, nil
		}

		newest, _ := chat.Newest(out)
		after = newest.Timestamp
	}

	c.logger.Warn().
		Str("channel", channelID).
		Int("pages", maxHistoryPages).
		Msg("History page limit reached, remaining messages are picked up next cycle")
	return out, nil
}

func (c *Client) toMessage(m *discordgo.Message) chat.Message {
	msg := chat.Message{
		Timestamp: m.ID,
		Text:      m.Content,
	}
	if m.Author != nil {
		msg.User = m.Author.ID
		msg.IsBot = m.Author.Bot || m.Author.ID == c.botUserID
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		msg.IsBot = true
	}
	return msg
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	m, err := c.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return m.ID, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, handle, text string) error {
	if _, err := c.api.ChannelMessageEdit(channelID, handle, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, handle, emoji string) error {
	if err := c.api.MessageReactionAdd(channelID, handle, toEmoji(emoji), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, handle, emoji string) error {
	if err := c.api.MessageReactionRemove(channelID, handle, toEmoji(emoji), "@me", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func toEmoji(name string) string {
	if e, ok := emojiByName[name]; ok {
		return e
	}
	return name
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
