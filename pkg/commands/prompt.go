package commands

import (
	"context"
	"fmt"

	"github.com/harun/chanbridge/internal/tracing"
	"github.com/harun/chanbridge/pkg/agent"
	"github.com/harun/chanbridge/pkg/chat"
	"github.com/harun/chanbridge/pkg/session"
)

const emptyResponseText = "(the agent returned an empty response)"

// prompt forwards text to the channel's session and posts the reply. The
// triggering message carries a pending reaction while the agent works.
func (d *Dispatcher) prompt(ctx context.Context, channelID string, msg chat.Message, sess session.Session, text string) error {
	ctx = tracing.WithSessionID(ctx, sess.SessionID)
	logger := tracing.LoggerFromContext(ctx, d.logger)

	d.react(ctx, channelID, msg.Timestamp, chat.ReactionPending, true)

	reply, err := d.agent.SendPrompt(ctx, agent.PromptRequest{
		SessionID:   sess.SessionID,
		ProjectPath: sess.ProjectPath,
		Prompt:      text,
	})

	d.react(ctx, channelID, msg.Timestamp, chat.ReactionPending, false)

	if err != nil {
		d.react(ctx, channelID, msg.Timestamp, chat.ReactionFailure, true)
		logger.Warn().Err(err).Bool("retryable", agent.IsRetryable(err)).Msg("Prompt failed")
		return d.post(ctx, channelID, formatAgentError(err))
	}

	d.react(ctx, channelID, msg.Timestamp, chat.ReactionSuccess, true)

	if reply == "" {
		reply = emptyResponseText
	}
	for i, chunk := range chat.SplitMessage(reply, d.client.MaxMessageLength()) {
		if err := d.post(ctx, channelID, chunk); err != nil {
			return fmt.Errorf("failed to post reply chunk %d: %w", i+1, err)
		}
	}
	return nil
}

// react adds or removes a reaction. Failures only cost the visual cue, so
// they are logged and dropped.
func (d *Dispatcher) react(ctx context.Context, channelID, handle, emoji string, add bool) {
	var err error
	if add {
		err = d.client.AddReaction(ctx, channelID, handle, emoji)
	} else {
		err = d.client.RemoveReaction(ctx, channelID, handle, emoji)
	}
	if err != nil {
		logger := tracing.LoggerFromContext(ctx, d.logger)
		logger.Debug().
			Err(err).
			Str("emoji", emoji).
			Bool("add", add).
			Msg("Reaction update failed")
	}
}
