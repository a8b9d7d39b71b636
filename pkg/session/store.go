package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSessionNotFound is returned when a channel has no active session
	ErrSessionNotFound = errors.New("session not found")

	// ErrCursorNotFound is returned when a channel has never been polled
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrInvalidChannel is returned for empty or path-unsafe channel keys
	ErrInvalidChannel = errors.New("invalid channel key")

	// ErrEmptySessionID is returned when storing a session without an id
	ErrEmptySessionID = errors.New("session id cannot be empty")
)

// Session binds a channel to one agent session in one project directory.
type Session struct {
	ProjectPath string    `json:"projectPath"`
	SessionID   string    `json:"sessionId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is the durable channel → session/cursor mapping.
type Store interface {
	// GetCursor returns the last seen message timestamp, or ErrCursorNotFound.
	GetCursor(ctx context.Context, channel string) (string, error)

	// AdvanceCursor overwrites the stored cursor with ts.
	AdvanceCursor(ctx context.Context, channel, ts string) error

	// GetSession returns the channel's session, or ErrSessionNotFound.
	GetSession(ctx context.Context, channel string) (Session, error)

	// PutSession replaces any existing session for the channel.
	PutSession(ctx context.Context, channel string, sess Session) error

	// DeleteSession removes the channel's session. Missing sessions are not an error.
	DeleteSession(ctx context.Context, channel string) error

	// ListSessions returns every stored session keyed by channel.
	ListSessions(ctx context.Context) (map[string]Session, error)
}

// ValidateChannel rejects keys that cannot be used as a file name.
func ValidateChannel(channel string) error {
	if channel == "" {
		return fmt.Errorf("%w: channel cannot be empty", ErrInvalidChannel)
	}
	if strings.Contains(channel, "..") {
		return fmt.Errorf("%w: channel cannot contain '..'", ErrInvalidChannel)
	}
	if strings.ContainsAny(channel, "/\\") {
		return fmt.Errorf("%w: channel cannot contain path separators", ErrInvalidChannel)
	}
	if strings.Contains(channel, "\x00") {
		return fmt.Errorf("%w: channel cannot contain null bytes", ErrInvalidChannel)
	}
	return nil
}
