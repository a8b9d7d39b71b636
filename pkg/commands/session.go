package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harun/chanbridge/internal/tracing"
	"github.com/harun/chanbridge/pkg/session"
)

// startSession handles /new <path>. Nothing changes unless the directory
// exists and the agent hands back a session id.
func (d *Dispatcher) startSession(ctx context.Context, channelID, arg string) error {
	logger := tracing.LoggerFromContext(ctx, d.logger)

	if arg == "" {
		return d.post(ctx, channelID, "Usage: `/new <path>`")
	}

	path, err := d.resolveProjectPath(arg)
	if err != nil {
		return d.post(ctx, channelID, fmt.Sprintf("Cannot resolve `%s`: %s", arg, err))
	}

	info, err := os.Stat(path)
	if err != nil {
		return d.post(ctx, channelID, fmt.Sprintf("Path not found: `%s`", path))
	}
	if !info.IsDir() {
		return d.post(ctx, channelID, fmt.Sprintf("Not a directory: `%s`", path))
	}

	handle, err := d.client.PostMessage(ctx, channelID, fmt.Sprintf("Starting a new agent session in `%s`...", path))
	if err != nil {
		return fmt.Errorf("failed to post status message: %w", err)
	}

	sessionID, err := d.agent.CreateSession(ctx, path)
	if err != nil {
		logger.Warn().Err(err).Str("project_path", path).Msg("Session start failed")
		return d.update(ctx, channelID, handle, "Failed to start a session.\n"+codeBlock(truncate(err.Error(), maxErrorLength)))
	}

	sess := session.Session{
		ProjectPath: path,
		SessionID:   sessionID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.PutSession(ctx, channelID, sess); err != nil {
		_ = d.update(ctx, channelID, handle, "The agent started a session but it could not be saved.")
		return fmt.Errorf("failed to save session: %w", err)
	}

	logger.Info().
		Str("project_path", path).
		Str("session_id", sessionID).
		Msg("Channel session started")

	return d.update(ctx, channelID, handle, fmt.Sprintf(
		"Session started in `%s` (id `%s`).\nEvery message in this channel now goes to the agent.", path, sessionID))
}

func (d *Dispatcher) update(ctx context.Context, channelID, handle, text string) error {
	if err := d.client.UpdateMessage(ctx, channelID, handle, text); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}
