package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/chanbridge/internal/config"
	"github.com/harun/chanbridge/internal/daemon"
	"github.com/spf13/cobra"
)

// stopMargin covers tracing shutdown and PID file removal after the
// daemon's wait ends.
const stopMargin = 10 * time.Second

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the chanbridge daemon service",
	Long: `Stop the chanbridge daemon service gracefully.
Sends SIGTERM and waits for the in-flight poll cycle, including any running
agent call and its retries, to finish before the timeout forces SIGKILL.
Without --timeout the wait is derived from the agent timeout and retries.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 0, "seconds to wait for daemon to stop (0 derives it from the agent config)")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	out := cmd.OutOrStdout()

	pid, err := stopDaemon(pidFile)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(stopWait())
	for time.Now().Before(deadline) {
		if !daemon.ProcessRunning(pid) {
			fmt.Fprintln(out, "Daemon stopped successfully")
			_ = os.Remove(pidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	_ = os.Remove(pidFile)
	fmt.Fprintln(out, "Daemon killed")
	return nil
}

// stopWait outlasts the daemon's own shutdown wait unless --timeout is set
func stopWait() time.Duration {
	if stopTimeout > 0 {
		return time.Duration(stopTimeout) * time.Second
	}
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	return daemon.StopTimeout(cfg) + stopMargin
}

// stopDaemon sends SIGTERM to the daemon recorded in pidFile
func stopDaemon(pidFile string) (int, error) {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("daemon is not running (no PID file at %s)", pidFile)
		}
		return 0, err
	}

	if !daemon.ProcessRunning(pid) {
		_ = os.Remove(pidFile)
		return 0, fmt.Errorf("daemon is not running (removed stale PID file for %d)", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return 0, fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	return pid, nil
}
