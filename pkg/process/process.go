// Package process runs external programs with a deadline and captures their
// output. The agent CLI and git both go through a Runner so tests can swap
// in a scripted fake.
package process

import (
	"context"
	"time"
)

// Request describes one process execution
type Request struct {
	Command string
	Args    []string
	// Working directory; empty inherits the daemon's.
	Dir string
	// Added on top of the daemon's own environment.
	Env     map[string]string
	Timeout time.Duration
}

// Result holds what the process produced. A non-zero ExitCode is not an
// error by itself.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes a Request
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, req Request) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
