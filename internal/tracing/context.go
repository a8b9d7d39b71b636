package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// CycleIDKey is the context key for the poll cycle ID
	CycleIDKey ContextKey = "cycle_id"
	// ChannelKey is the context key for the chat channel ID
	ChannelKey ContextKey = "channel"
	// SessionIDKey is the context key for the agent session ID
	SessionIDKey ContextKey = "session_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	CycleID   string
	Channel   string
	SessionID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithCycleID adds a poll cycle ID to the context
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// WithChannel adds a channel ID to the context
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ChannelKey, channel)
}

// WithSessionID adds an agent session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

// GetCycleID retrieves the poll cycle ID from the context
func GetCycleID(ctx context.Context) string { return stringValue(ctx, CycleIDKey) }

// GetChannel retrieves the channel ID from the context
func GetChannel(ctx context.Context) string { return stringValue(ctx, ChannelKey) }

// GetSessionID retrieves the agent session ID from the context
func GetSessionID(ctx context.Context) string { return stringValue(ctx, SessionIDKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		CycleID:   GetCycleID(ctx),
		Channel:   GetChannel(ctx),
		SessionID: GetSessionID(ctx),
	}
}

// NewCycleContext starts a poll cycle: a fresh trace ID shared by every
// channel polled in it, plus a cycle ID.
func NewCycleContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithCycleID(ctx, uuid.New().String())
}
