package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	slackBotTokenPattern   = regexp.MustCompile(`^xoxb-[A-Za-z0-9-]+$`)
	discordBotTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePlatform validates the chat platform name
func (v *Validator) ValidatePlatform(platform string) error {
	switch platform {
	case PlatformSlack, PlatformDiscord:
		return nil
	case "":
		return fmt.Errorf("chat platform is required (must be one of: %s, %s)", PlatformSlack, PlatformDiscord)
	}
	return fmt.Errorf("invalid chat platform: %s (must be one of: %s, %s)", platform, PlatformSlack, PlatformDiscord)
}

// ValidateSlackToken validates a Slack bot token
func (v *Validator) ValidateSlackToken(token string) error {
	if token == "" {
		return fmt.Errorf("slack bot token is required (set chat.slack.bot_token or SLACK_BOT_TOKEN)")
	}
	if !slackBotTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Slack bot token format (should start with xoxb-)")
	}
	return nil
}

// ValidateDiscordToken validates a Discord bot token
func (v *Validator) ValidateDiscordToken(token string) error {
	if token == "" {
		return fmt.Errorf("discord bot token is required (set chat.discord.bot_token or DISCORD_BOT_TOKEN)")
	}
	// Tokens are stored without the "Bot " header prefix
	if strings.HasPrefix(token, "Bot ") {
		return fmt.Errorf("discord bot token must not include the \"Bot \" prefix")
	}
	if !discordBotTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Discord bot token format")
	}
	return nil
}

// ValidatePositiveDuration rejects zero and negative durations
func (v *Validator) ValidatePositiveDuration(key string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return nil
}

// ValidateMaxRetries validates the agent retry count
func (v *Validator) ValidateMaxRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("agent.max_retries must not be negative, got %d", n)
	}
	if n > 10 {
		return fmt.Errorf("agent.max_retries too large (max 10), got %d", n)
	}
	return nil
}

// ValidateSchedule parses a cron expression or @every descriptor
func (v *Validator) ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid poll.schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateListenAddr validates a host:port listen address
func (v *Validator) ValidateListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid metrics.addr %q: %w", addr, err)
	}
	return nil
}
