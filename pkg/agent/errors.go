package agent

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrEmptySessionID is returned when the agent starts a session but reports
// no identifier for it
var ErrEmptySessionID = errors.New("agent returned an empty session id")

// Kind classifies an agent failure
type Kind int

const (
	// KindFatal failures are returned immediately
	KindFatal Kind = iota
	// KindRetryable failures are retried with backoff while attempts remain
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// retryablePattern matches transient conditions reported by the agent or
// its upstream model provider.
var retryablePattern = regexp.MustCompile(`(?i)resource[_ -]?exhausted|rate[_ -]?limit|too many requests|service unavailable|timeout|timed out`)

// Error is a classified failure of one agent operation
type Error struct {
	Kind Kind
	// Op is "create" or "prompt"
	Op string
	// Attempt is the zero-based attempt that produced this error
	Attempt int
	// Detail is the failure text: stderr, the embedded result or "timeout"
	Detail string
	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s failed (%s): %s", e.Op, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient
func (e *Error) Retryable() bool {
	return e.Kind == KindRetryable
}

// IsRetryable reports whether err is a retryable agent failure
func IsRetryable(err error) bool {
	var agentErr *Error
	return errors.As(err, &agentErr) && agentErr.Retryable()
}

// Classify maps a failure text to its Kind
func Classify(detail string) Kind {
	if retryablePattern.MatchString(detail) {
		return KindRetryable
	}
	return KindFatal
}
