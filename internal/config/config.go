package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Supported chat platforms
const (
	PlatformSlack   = "slack"
	PlatformDiscord = "discord"
)

// Config represents the chanbridge configuration
type Config struct {
	// Chat platform and credentials
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// External agent CLI
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Poll scheduling
	Poll PollConfig `json:"poll" mapstructure:"poll"`

	// Project directory resolution
	Projects ProjectsConfig `json:"projects" mapstructure:"projects"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Cursors, sessions, pid file and default log location
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ChatConfig selects the platform adapter
type ChatConfig struct {
	Platform string        `json:"platform" mapstructure:"platform"` // slack, discord
	Slack    SlackConfig   `json:"slack" mapstructure:"slack"`
	Discord  DiscordConfig `json:"discord" mapstructure:"discord"`
}

// SlackConfig holds Slack bot configuration
type SlackConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
}

// DiscordConfig holds Discord bot configuration
type DiscordConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
	// Restricts polling to these guilds; empty means every guild the bot is in.
	GuildIDs []string `json:"guild_ids" mapstructure:"guild_ids"`
}

// AgentConfig describes how the agent CLI is spawned
type AgentConfig struct {
	Command       string            `json:"command" mapstructure:"command"`
	Args          []string          `json:"args" mapstructure:"args"`
	Timeout       time.Duration     `json:"timeout" mapstructure:"timeout"`
	MaxRetries    int               `json:"max_retries" mapstructure:"max_retries"`
	SessionPrompt string            `json:"session_prompt" mapstructure:"session_prompt"`
	Env           map[string]string `json:"env" mapstructure:"env"`
}

// PollConfig controls the poll cycle timing
type PollConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	// Cron expression; takes precedence over Interval when set.
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

// ProjectsConfig holds project directory settings
type ProjectsConfig struct {
	BasePath    string        `json:"base_path" mapstructure:"base_path"`
	DiffTimeout time.Duration `json:"diff_timeout" mapstructure:"diff_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Chat: ChatConfig{
			Platform: PlatformSlack,
		},
		Agent: AgentConfig{
			Command:       "claude",
			Args:          []string{},
			Timeout:       5 * time.Minute,
			MaxRetries:    3,
			SessionPrompt: "Session started from chat. Reply with a one-line acknowledgement.",
			Env:           map[string]string{},
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
		},
		Projects: ProjectsConfig{
			DiffTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// String returns a JSON representation of the config with tokens masked
func (c *Config) String() string {
	masked := *c
	masked.Chat.Slack.BotToken = maskToken(c.Chat.Slack.BotToken)
	masked.Chat.Discord.BotToken = maskToken(c.Chat.Discord.BotToken)
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****"
}

// BotToken returns the token of the selected platform
func (c *Config) BotToken() string {
	switch c.Chat.Platform {
	case PlatformDiscord:
		return c.Chat.Discord.BotToken
	default:
		return c.Chat.Slack.BotToken
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidatePlatform(c.Chat.Platform); err != nil {
		return err
	}

	switch c.Chat.Platform {
	case PlatformSlack:
		if err := v.ValidateSlackToken(c.Chat.Slack.BotToken); err != nil {
			return err
		}
	case PlatformDiscord:
		if err := v.ValidateDiscordToken(c.Chat.Discord.BotToken); err != nil {
			return err
		}
	}

	if c.Agent.Command == "" {
		return fmt.Errorf("agent command is required")
	}
	if err := v.ValidatePositiveDuration("agent.timeout", c.Agent.Timeout); err != nil {
		return err
	}
	if err := v.ValidateMaxRetries(c.Agent.MaxRetries); err != nil {
		return err
	}

	if c.Poll.Schedule != "" {
		if err := v.ValidateSchedule(c.Poll.Schedule); err != nil {
			return err
		}
	} else if err := v.ValidatePositiveDuration("poll.interval", c.Poll.Interval); err != nil {
		return err
	}

	if err := v.ValidatePositiveDuration("projects.diff_timeout", c.Projects.DiffTimeout); err != nil {
		return err
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		if err := v.ValidateListenAddr(c.Metrics.Addr); err != nil {
			return err
		}
	}

	return nil
}
