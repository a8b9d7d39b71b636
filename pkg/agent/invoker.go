// Package agent drives the external agent CLI: one invocation creates a
// session bound to a project directory, later invocations resume that
// session with a prompt. Prompts are retried with exponential backoff when
// the failure looks transient.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/chanbridge/internal/observability"
	"github.com/harun/chanbridge/internal/tracing"
	"github.com/harun/chanbridge/pkg/process"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	opCreate = "create"
	opPrompt = "prompt"

	tracerName = "chanbridge.agent"

	// DefaultTimeout bounds a single agent invocation
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxRetries gives four attempts in total
	DefaultMaxRetries = 3

	defaultSessionPrompt = "Session started from chat. Reply with a one-line acknowledgement."
)

// Config describes how the agent CLI is spawned
type Config struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	MaxRetries    int
	SessionPrompt string
	Env           map[string]string
}

// PromptRequest is one prompt for an existing session
type PromptRequest struct {
	SessionID   string
	ProjectPath string
	Prompt      string
}

// Invoker spawns the agent CLI through a process.Runner
type Invoker struct {
	cfg    Config
	runner process.Runner
	sleep  SleepFunc
	logger zerolog.Logger
}

// Option configures an Invoker
type Option func(*Invoker)

// WithSleep replaces the backoff sleep
func WithSleep(sleep SleepFunc) Option {
	return func(i *Invoker) {
		i.sleep = sleep
	}
}

// WithLogger sets the base logger
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// NewInvoker creates an invoker. Zero Timeout and negative MaxRetries fall
// back to the defaults.
func NewInvoker(cfg Config, runner process.Runner, opts ...Option) *Invoker {
	observability.EnsureRegistered()

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.SessionPrompt == "" {
		cfg.SessionPrompt = defaultSessionPrompt
	}

	inv := &Invoker{
		cfg:    cfg,
		runner: runner,
		sleep:  sleepContext,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.logger = inv.logger.With().Str("component", "agent").Logger()

	return inv
}

// CreateSession starts a new agent session in projectPath and returns its
// identifier. It is attempted once; every failure is fatal.
func (i *Invoker) CreateSession(ctx context.Context, projectPath string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.create_session",
		attribute.String("project_path", projectPath))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, i.logger)

	args := i.baseArgs(i.cfg.SessionPrompt)

	resp, agentErr := i.attempt(ctx, opCreate, 0, projectPath, args)
	if agentErr == nil && resp.sessionID == "" {
		agentErr = &Error{
			Kind:   KindFatal,
			Op:     opCreate,
			Detail: ErrEmptySessionID.Error(),
			Err:    ErrEmptySessionID,
		}
	}
	if agentErr != nil {
		// Session creation is never retried
		agentErr.Kind = KindFatal
		observability.RecordAgentInvocation(opCreate, false)
		span.RecordError(agentErr)
		span.SetStatus(codes.Error, agentErr.Detail)
		logger.Error().Err(agentErr).Str("project_path", projectPath).Msg("Agent session creation failed")
		return "", agentErr
	}

	observability.RecordAgentInvocation(opCreate, true)
	span.SetAttributes(attribute.String("session_id", resp.sessionID))
	logger.Info().
		Str("project_path", projectPath).
		Str("session_id", resp.sessionID).
		Msg("Agent session created")

	return resp.sessionID, nil
}

// SendPrompt sends req.Prompt to the session and returns the agent's reply.
// Retryable failures are retried up to MaxRetries times with Backoff
// between attempts. The last error is returned once attempts run out or a
// fatal failure occurs.
func (i *Invoker) SendPrompt(ctx context.Context, req PromptRequest) (string, error) {
	ctx = tracing.WithSessionID(ctx, req.SessionID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.send_prompt",
		attribute.Int("prompt_length", len(req.Prompt)))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, i.logger)

	if req.SessionID == "" {
		return "", &Error{Kind: KindFatal, Op: opPrompt, Detail: ErrEmptySessionID.Error(), Err: ErrEmptySessionID}
	}

	args := i.baseArgs("--resume", req.SessionID, req.Prompt)

	var lastErr *Error
	for attempt := 0; attempt <= i.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt)
			observability.RecordAgentRetry(opPrompt)
			logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("detail", lastErr.Detail).
				Msg("Retrying agent prompt")

			if err := i.sleep(ctx, delay); err != nil {
				observability.RecordAgentInvocation(opPrompt, false)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return "", fmt.Errorf("agent retry interrupted: %w", err)
			}
		}

		resp, agentErr := i.attempt(ctx, opPrompt, attempt, req.ProjectPath, args)
		if agentErr == nil {
			observability.RecordAgentInvocation(opPrompt, true)
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			logger.Info().
				Int("attempts", attempt+1).
				Int("response_length", len(resp.text())).
				Msg("Agent prompt completed")
			return resp.text(), nil
		}

		lastErr = agentErr
		if !agentErr.Retryable() {
			break
		}
	}

	observability.RecordAgentInvocation(opPrompt, false)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Detail)
	logger.Error().
		Err(lastErr).
		Int("attempts", lastErr.Attempt+1).
		Msg("Agent prompt failed")

	return "", lastErr
}

// attempt runs the agent once and classifies the outcome.
func (i *Invoker) attempt(ctx context.Context, op string, attempt int, dir string, args []string) (response, *Error) {
	res, err := i.runner.Run(ctx, process.Request{
		Command: i.cfg.Command,
		Args:    args,
		Dir:     dir,
		Env:     i.cfg.Env,
		Timeout: i.cfg.Timeout,
	})

	fail := func(detail string, cause error) (response, *Error) {
		kind := Classify(detail)
		observability.RecordAgentAttempt(op, kind.String(), res.Duration)
		return response{}, &Error{Kind: kind, Op: op, Attempt: attempt, Detail: detail, Err: cause}
	}

	switch {
	case errors.Is(err, process.ErrTimeout):
		return fail("timeout", err)
	case err != nil:
		return fail(err.Error(), err)
	case res.ExitCode != 0:
		return fail(exitDetail(res), nil)
	}

	resp := parseResponse(res.Stdout)
	if resp.structured && resp.isError {
		detail := resp.result
		if detail == "" {
			detail = "agent reported an error"
		}
		return fail(detail, nil)
	}
	if !resp.structured && resp.raw == "" {
		return fail("empty response", nil)
	}

	observability.RecordAgentAttempt(op, "success", res.Duration)
	return resp, nil
}

// baseArgs builds the argument list on a fresh slice so cfg.Args is never
// aliased between invocations.
func (i *Invoker) baseArgs(tail ...string) []string {
	args := make([]string, 0, len(i.cfg.Args)+3+len(tail))
	args = append(args, i.cfg.Args...)
	args = append(args, "--print", "--output-format", "json")
	return append(args, tail...)
}

func exitDetail(res process.Result) string {
	if stderr := strings.TrimSpace(string(res.Stderr)); stderr != "" {
		return stderr
	}
	if resp := parseResponse(res.Stdout); resp.structured && resp.result != "" {
		return resp.result
	}
	if stdout := strings.TrimSpace(string(res.Stdout)); stdout != "" {
		return stdout
	}
	return fmt.Sprintf("exit status %d", res.ExitCode)
}

// text is what the user sees: the structured result, or the raw output
// when the agent did not print JSON.
func (r response) text() string {
	if r.structured {
		return r.result
	}
	return r.raw
}
