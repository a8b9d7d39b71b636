package process

import "errors"

var (
	// ErrTimeout is returned when the process outlives its deadline and is killed
	ErrTimeout = errors.New("process timed out")

	// ErrEmptyCommand is returned when a request names no command
	ErrEmptyCommand = errors.New("command cannot be empty")
)
