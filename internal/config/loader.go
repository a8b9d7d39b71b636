package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
)

const (
	envPrefix      = "CHANBRIDGE"
	configDirName  = ".chanbridge"
	configFileName = "chanbridge.json"
	logFileName    = "chanbridge.log"
)

// envKeys are the settings that can be overridden as CHANBRIDGE_<KEY> with
// dots replaced by underscores.
var envKeys = []string{
	"chat.platform",
	"chat.discord.guild_ids",
	"agent.command",
	"agent.args",
	"agent.timeout",
	"agent.max_retries",
	"agent.session_prompt",
	"poll.interval",
	"poll.schedule",
	"projects.base_path",
	"projects.diff_timeout",
	"logging.level",
	"logging.file",
	"logging.console",
	"logging.pretty",
	"logging.redaction",
	"metrics.enabled",
	"metrics.addr",
	"data_dir",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file (comments allowed), applies environment
// overrides and fills derived paths. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON(raw))); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	case os.IsNotExist(err):
		// defaults plus environment
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, configDirName)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, logFileName)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Conventional token variables are honoured alongside the prefixed ones
	if err := v.BindEnv("chat.slack.bot_token", envPrefix+"_CHAT_SLACK_BOT_TOKEN", "SLACK_BOT_TOKEN"); err != nil {
		return fmt.Errorf("failed to bind slack token: %w", err)
	}
	if err := v.BindEnv("chat.discord.bot_token", envPrefix+"_CHAT_DISCORD_BOT_TOKEN", "DISCORD_BOT_TOKEN"); err != nil {
		return fmt.Errorf("failed to bind discord token: %w", err)
	}

	return nil
}

// Save writes cfg as JSON, creating the file when needed
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("chat.platform", cfg.Chat.Platform)
	v.Set("chat.slack.bot_token", cfg.Chat.Slack.BotToken)
	v.Set("chat.discord.bot_token", cfg.Chat.Discord.BotToken)
	v.Set("chat.discord.guild_ids", cfg.Chat.Discord.GuildIDs)
	v.Set("agent.command", cfg.Agent.Command)
	v.Set("agent.args", cfg.Agent.Args)
	v.Set("agent.timeout", cfg.Agent.Timeout.String())
	v.Set("agent.max_retries", cfg.Agent.MaxRetries)
	v.Set("agent.session_prompt", cfg.Agent.SessionPrompt)
	v.Set("agent.env", cfg.Agent.Env)
	v.Set("poll.interval", cfg.Poll.Interval.String())
	v.Set("poll.schedule", cfg.Poll.Schedule)
	v.Set("projects.base_path", cfg.Projects.BasePath)
	v.Set("projects.diff_timeout", cfg.Projects.DiffTimeout.String())
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return os.Chmod(configPath, 0o600)
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
