package agent

import (
	"context"
	"time"
)

const (
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// Backoff returns the wait before the given zero-based attempt:
// none for the first, then 1s, 2s, 4s... capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Past 2^5 the cap applies anyway; stop shifting before it overflows
	if attempt > 6 {
		return maxBackoff
	}
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// PromptBudget is the longest SendPrompt can run: every attempt hitting
// timeout plus the backoff between them. Non-positive timeout and negative
// maxRetries take the defaults, as in NewInvoker.
func PromptBudget(timeout time.Duration, maxRetries int) time.Duration {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	budget := time.Duration(maxRetries+1) * timeout
	for attempt := 1; attempt <= maxRetries; attempt++ {
		budget += Backoff(attempt)
	}
	return budget
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
