package cli

import (
	"os"
	"path/filepath"

	"github.com/harun/chanbridge/internal/config"
	"github.com/harun/chanbridge/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chanbridge",
	Short: "chanbridge - chat channel bridge for coding agents",
	Long: `chanbridge polls the chat channels a bot belongs to and relays messages
addressed to the bot to an agent CLI session bound to a project directory.
Replies, diffs and project listings are posted back to the channel.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chanbridge/chanbridge.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file and applies an explicit --log-level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func getPIDFilePath() string {
	cfg, err := loadConfig()
	if err == nil {
		return daemon.PIDFilePath(cfg.DataDir)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chanbridge.pid")
	}
	return daemon.PIDFilePath(filepath.Join(home, ".chanbridge"))
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessRunning(pid)
}

// quietLogs keeps store chatter out of one-shot command output
func quietLogs() {
	log.Logger = log.Logger.Level(zerolog.WarnLevel)
}
