package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// waitDelay bounds how long Run waits for output pipes after the process is
// killed, in case it left children holding them open.
const waitDelay = 5 * time.Second

// HostRunner runs commands directly on the host
type HostRunner struct {
	logger zerolog.Logger
}

var _ Runner = (*HostRunner)(nil)

// NewHostRunner creates a host runner
func NewHostRunner() *HostRunner {
	return &HostRunner{
		logger: log.With().Str("component", "process").Logger(),
	}
}

// Run executes req and waits for it to exit or for req.Timeout to pass.
func (h *HostRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Command == "" {
		return Result{}, ErrEmptyCommand
	}

	execCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = buildEnvironment(req.Env)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: duration,
	}

	// Deadline first: a killed process also reports an ExitError
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.ExitCode = -1
		h.logger.Warn().
			Str("command", req.Command).
			Dur("timeout", req.Timeout).
			Msg("Process killed after timeout")
		return result, ErrTimeout
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("failed to run %s: %w", req.Command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	h.logger.Debug().
		Str("command", req.Command).
		Str("dir", req.Dir).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Process finished")

	return result, nil
}

// buildEnvironment appends extra to the daemon's environment. Keys are
// sorted so the resulting slice is stable.
func buildEnvironment(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
