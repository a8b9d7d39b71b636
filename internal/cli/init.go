package cli

import (
	"fmt"
	"os"

	"github.com/harun/chanbridge/internal/config"
	"github.com/spf13/cobra"
)

var (
	initPlatform     string
	initToken        string
	initBasePath     string
	initAgentCommand string
	initForce        bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with default settings.
Tokens may also be supplied later through SLACK_BOT_TOKEN or DISCORD_BOT_TOKEN.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPlatform, "platform", config.PlatformSlack, "chat platform (slack, discord)")
	initCmd.Flags().StringVar(&initToken, "token", "", "bot token for the selected platform")
	initCmd.Flags().StringVar(&initBasePath, "base-path", "", "directory that holds the projects")
	initCmd.Flags().StringVar(&initAgentCommand, "agent-command", "", "agent CLI executable (default claude)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	v := config.NewValidator()
	if err := v.ValidatePlatform(initPlatform); err != nil {
		return err
	}

	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("cannot determine config path")
	}
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.Chat.Platform = initPlatform
	cfg.Projects.BasePath = initBasePath
	if initAgentCommand != "" {
		cfg.Agent.Command = initAgentCommand
	}

	if initToken != "" {
		switch initPlatform {
		case config.PlatformDiscord:
			if err := v.ValidateDiscordToken(initToken); err != nil {
				return err
			}
			cfg.Chat.Discord.BotToken = initToken
		default:
			if err := v.ValidateSlackToken(initToken); err != nil {
				return err
			}
			cfg.Chat.Slack.BotToken = initToken
		}
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, "Start the bridge with: chanbridge start")

	return nil
}
