package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/harun/chanbridge/pkg/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner replays one step per Run call and records every request.
type scriptedRunner struct {
	mu       sync.Mutex
	steps    []step
	requests []process.Request
}

type step struct {
	result process.Result
	err    error
}

func (s *scriptedRunner) Run(ctx context.Context, req process.Request) (process.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return process.Result{}, fmt.Errorf("unexpected call %d", len(s.requests))
	}
	next := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return next.result, next.err
}

func (s *scriptedRunner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func ok(stdout string) step {
	return step{result: process.Result{Stdout: []byte(stdout)}}
}

func exit(code int, stderr string) step {
	return step{result: process.Result{ExitCode: code, Stderr: []byte(stderr)}}
}

// recordSleep captures backoff delays without waiting.
type recordSleep struct {
	delays []time.Duration
}

func (r *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestInvoker(runner process.Runner, maxRetries int, sleeper *recordSleep) *Invoker {
	return NewInvoker(Config{
		Command:    "agent-cli",
		Args:       []string{"--model", "test"},
		Timeout:    time.Second,
		MaxRetries: maxRetries,
	}, runner, WithSleep(sleeper.sleep))
}

func TestSendPrompt_Success(t *testing.T) {
	runner := &scriptedRunner{steps: []step{ok(`{"type":"result","is_error":false,"result":"done","session_id":"s-1"}`)}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	out, err := inv.SendPrompt(context.Background(), PromptRequest{
		SessionID:   "s-1",
		ProjectPath: "/src/app",
		Prompt:      "fix the tests",
	})

	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 1, runner.calls())
	assert.Empty(t, sleeper.delays)

	req := runner.requests[0]
	assert.Equal(t, "agent-cli", req.Command)
	assert.Equal(t, []string{"--model", "test", "--print", "--output-format", "json", "--resume", "s-1", "fix the tests"}, req.Args)
	assert.Equal(t, "/src/app", req.Dir)
	assert.Equal(t, time.Second, req.Timeout)
}

func TestSendPrompt_RetriesUntilExhausted(t *testing.T) {
	runner := &scriptedRunner{steps: []step{exit(1, "Error: 429 Too Many Requests")}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 4, runner.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)

	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, 3, agentErr.Attempt)
	assert.Equal(t, "Error: 429 Too Many Requests", agentErr.Detail)
}

func TestSendPrompt_SucceedsAfterRetry(t *testing.T) {
	runner := &scriptedRunner{steps: []step{
		exit(1, "rate limit exceeded"),
		exit(1, "503 Service Unavailable"),
		ok(`{"is_error":false,"result":"third time lucky"}`),
	}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	out, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "third time lucky", out)
	assert.Equal(t, 3, runner.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestSendPrompt_FatalIsNotRetried(t *testing.T) {
	runner := &scriptedRunner{steps: []step{exit(2, "invalid api key")}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 1, runner.calls())
	assert.Empty(t, sleeper.delays)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestSendPrompt_EmbeddedErrorFlag(t *testing.T) {
	runner := &scriptedRunner{steps: []step{
		ok(`{"is_error":true,"result":"resource_exhausted: quota"}`),
		ok(`{"is_error":false,"result":"recovered"}`),
	}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	out, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 2, runner.calls())
	assert.Equal(t, []time.Duration{time.Second}, sleeper.delays)
}

func TestSendPrompt_EmbeddedFatalError(t *testing.T) {
	runner := &scriptedRunner{steps: []step{ok(`{"is_error":true,"result":"session not found"}`)}}
	inv := newTestInvoker(runner, 3, &recordSleep{})

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, KindFatal, agentErr.Kind)
	assert.Equal(t, "session not found", agentErr.Detail)
	assert.Equal(t, 1, runner.calls())
}

func TestSendPrompt_TimeoutIsRetryable(t *testing.T) {
	runner := &scriptedRunner{steps: []step{
		{err: process.ErrTimeout},
		ok(`{"result":"finally"}`),
	}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	out, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "finally", out)
	assert.Equal(t, []time.Duration{time.Second}, sleeper.delays)
}

func TestSendPrompt_TimeoutExhausted(t *testing.T) {
	runner := &scriptedRunner{steps: []step{{err: process.ErrTimeout}}}
	inv := newTestInvoker(runner, 1, &recordSleep{})

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.Error(t, err)
	assert.ErrorIs(t, err, process.ErrTimeout)
	assert.Equal(t, 2, runner.calls())

	var agentErr *Error
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, "timeout", agentErr.Detail)
}

func TestSendPrompt_RawTextFallback(t *testing.T) {
	runner := &scriptedRunner{steps: []step{ok("plain text answer\n")}}
	inv := newTestInvoker(runner, 3, &recordSleep{})

	out, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "plain text answer", out)
}

func TestSendPrompt_EmptyOutputIsFatal(t *testing.T) {
	runner := &scriptedRunner{steps: []step{ok("  \n")}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 3, sleeper)

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "empty response")
	assert.Equal(t, 1, runner.calls())
}

func TestSendPrompt_StreamedEvents(t *testing.T) {
	stream := `[
		{"type":"system","subtype":"init","session_id":"s-1"},
		{"type":"assistant","message":{"content":"thinking"}},
		{"type":"result","is_error":false,"result":"streamed answer","session_id":"s-1"}
	]`
	runner := &scriptedRunner{steps: []step{ok(stream)}}
	inv := newTestInvoker(runner, 0, &recordSleep{})

	out, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "streamed answer", out)
}

func TestSendPrompt_ZeroRetries(t *testing.T) {
	runner := &scriptedRunner{steps: []step{exit(1, "rate_limit")}}
	sleeper := &recordSleep{}
	inv := newTestInvoker(runner, 0, sleeper)

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	assert.True(t, IsRetryable(err))
	assert.Equal(t, 1, runner.calls())
	assert.Empty(t, sleeper.delays)
}

func TestSendPrompt_SleepInterrupted(t *testing.T) {
	runner := &scriptedRunner{steps: []step{exit(1, "rate limit")}}
	inv := NewInvoker(Config{Command: "agent-cli", MaxRetries: 3}, runner,
		WithSleep(func(ctx context.Context, d time.Duration) error { return context.Canceled }))

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "hi"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.calls())
}

func TestSendPrompt_RequiresSessionID(t *testing.T) {
	runner := &scriptedRunner{}
	inv := newTestInvoker(runner, 3, &recordSleep{})

	_, err := inv.SendPrompt(context.Background(), PromptRequest{Prompt: "hi"})

	assert.ErrorIs(t, err, ErrEmptySessionID)
	assert.Equal(t, 0, runner.calls())
}

func TestCreateSession(t *testing.T) {
	t.Run("returns the session id", func(t *testing.T) {
		runner := &scriptedRunner{steps: []step{ok(`{"type":"result","is_error":false,"result":"ready","session_id":"abc-123"}`)}}
		inv := NewInvoker(Config{Command: "agent-cli", SessionPrompt: "hello"}, runner)

		id, err := inv.CreateSession(context.Background(), "/src/app")

		require.NoError(t, err)
		assert.Equal(t, "abc-123", id)

		req := runner.requests[0]
		assert.Equal(t, []string{"--print", "--output-format", "json", "hello"}, req.Args)
		assert.Equal(t, "/src/app", req.Dir)
		assert.Equal(t, DefaultTimeout, req.Timeout)
	})

	t.Run("retryable-looking failure is still fatal", func(t *testing.T) {
		runner := &scriptedRunner{steps: []step{exit(1, "rate limit exceeded")}}
		sleeper := &recordSleep{}
		inv := newTestInvoker(runner, 3, sleeper)

		_, err := inv.CreateSession(context.Background(), "/src/app")

		require.Error(t, err)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, 1, runner.calls())
		assert.Empty(t, sleeper.delays)
	})

	t.Run("empty session id", func(t *testing.T) {
		runner := &scriptedRunner{steps: []step{ok(`{"is_error":false,"result":"ready"}`)}}
		inv := newTestInvoker(runner, 3, &recordSleep{})

		_, err := inv.CreateSession(context.Background(), "/src/app")

		assert.ErrorIs(t, err, ErrEmptySessionID)
	})

	t.Run("error flag", func(t *testing.T) {
		runner := &scriptedRunner{steps: []step{ok(`{"is_error":true,"result":"not logged in","session_id":"abc"}`)}}
		inv := newTestInvoker(runner, 3, &recordSleep{})

		_, err := inv.CreateSession(context.Background(), "/src/app")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not logged in")
	})

	t.Run("timeout", func(t *testing.T) {
		runner := &scriptedRunner{steps: []step{{err: process.ErrTimeout}}}
		inv := newTestInvoker(runner, 3, &recordSleep{})

		_, err := inv.CreateSession(context.Background(), "/src/app")

		assert.ErrorIs(t, err, process.ErrTimeout)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, 1, runner.calls())
	})
}

func TestArgsAreNotAliased(t *testing.T) {
	base := make([]string, 1, 8)
	base[0] = "--verbose"
	runner := &scriptedRunner{steps: []step{ok(`{"result":"a"}`)}}
	inv := NewInvoker(Config{Command: "agent-cli", Args: base}, runner)

	_, err := inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-1", Prompt: "first"})
	require.NoError(t, err)
	_, err = inv.SendPrompt(context.Background(), PromptRequest{SessionID: "s-2", Prompt: "second"})
	require.NoError(t, err)

	assert.Equal(t, "first", runner.requests[0].Args[len(runner.requests[0].Args)-1])
	assert.Equal(t, "second", runner.requests[1].Args[len(runner.requests[1].Args)-1])
}
