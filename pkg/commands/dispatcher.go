// Package commands interprets channel messages: /projects, /new <path> and
// /diff are handled locally, anything else goes to the channel's agent
// session as a prompt.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/chanbridge/internal/observability"
	"github.com/harun/chanbridge/internal/tracing"
	"github.com/harun/chanbridge/pkg/agent"
	"github.com/harun/chanbridge/pkg/chat"
	"github.com/harun/chanbridge/pkg/process"
	"github.com/harun/chanbridge/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName = "chanbridge.commands"

	cmdProjects = "/projects"
	cmdNew      = "/new"
	cmdDiff     = "/diff"

	defaultDiffTimeout = 30 * time.Second
)

// Agent is the part of agent.Invoker the dispatcher uses
type Agent interface {
	CreateSession(ctx context.Context, projectPath string) (string, error)
	SendPrompt(ctx context.Context, req agent.PromptRequest) (string, error)
}

// Config holds dispatcher settings
type Config struct {
	// BasePath anchors relative /new paths and is listed by /projects
	BasePath    string
	DiffTimeout time.Duration
}

// Dispatcher routes one message to the matching command
type Dispatcher struct {
	client chat.Client
	store  session.Store
	agent  Agent
	runner process.Runner
	cfg    Config
	logger zerolog.Logger
}

// New creates a dispatcher. runner executes git for /diff.
func New(client chat.Client, store session.Store, ag Agent, runner process.Runner, cfg Config) *Dispatcher {
	observability.EnsureRegistered()

	if cfg.DiffTimeout <= 0 {
		cfg.DiffTimeout = defaultDiffTimeout
	}

	return &Dispatcher{
		client: client,
		store:  store,
		agent:  ag,
		runner: runner,
		cfg:    cfg,
		logger: log.With().Str("component", "commands").Logger(),
	}
}

// Dispatch handles msg from channelID. User mistakes are answered in the
// channel and are not errors; a returned error means the chat platform or
// the store failed.
func (d *Dispatcher) Dispatch(ctx context.Context, channelID string, msg chat.Message) error {
	ctx = tracing.WithChannel(ctx, channelID)
	text := d.client.StripBotAddress(msg.Text)
	name, arg := splitCommand(text)

	command := "prompt"
	switch name {
	case cmdProjects, cmdNew, cmdDiff:
		command = strings.TrimPrefix(name, "/")
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "dispatch",
		attribute.String("command", command),
		attribute.String("ts", msg.Timestamp))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordDispatch(command, time.Since(start))
	}()

	logger := tracing.LoggerFromContext(ctx, d.logger)
	logger.Debug().
		Str("command", command).
		Str("ts", msg.Timestamp).
		Msg("Dispatching message")

	switch name {
	case cmdProjects:
		return d.listProjects(ctx, channelID)
	case cmdNew:
		return d.startSession(ctx, channelID, arg)
	case cmdDiff:
		return d.showDiff(ctx, channelID)
	}

	sess, err := d.store.GetSession(ctx, channelID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return d.post(ctx, channelID, usageText)
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if text == "" {
		return d.post(ctx, channelID, "Nothing to send. Write your prompt after the mention.")
	}

	return d.prompt(ctx, channelID, msg, sess, text)
}

// splitCommand separates the first word from the rest of text
func splitCommand(text string) (string, string) {
	name, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(name, "\n\t"); i >= 0 {
		rest = name[i:] + " " + rest
		name = name[:i]
	}
	return name, strings.TrimSpace(rest)
}

func (d *Dispatcher) post(ctx context.Context, channelID, text string) error {
	if _, err := d.client.PostMessage(ctx, channelID, text); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

func (d *Dispatcher) sessionOrHint(ctx context.Context, channelID string) (session.Session, bool, error) {
	sess, err := d.store.GetSession(ctx, channelID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return session.Session{}, false, d.post(ctx, channelID, noSessionText)
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, true, nil
}
