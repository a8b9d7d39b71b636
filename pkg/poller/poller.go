// Package poller turns channel history into dispatched commands. Each
// channel's cursor is advanced before the message it names is handled, so
// a crash mid-dispatch drops that message instead of replaying it.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/chanbridge/internal/observability"
	"github.com/harun/chanbridge/internal/tracing"
	"github.com/harun/chanbridge/pkg/chat"
	"github.com/harun/chanbridge/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "chanbridge.poller"

// Message outcomes recorded per observed message
const (
	outcomeBot         = "bot"
	outcomeUnaddressed = "unaddressed"
	outcomeDispatched  = "dispatched"
	outcomeFailed      = "dispatch_error"
)

// Dispatcher handles one message that warrants a response
type Dispatcher interface {
	Dispatch(ctx context.Context, channelID string, msg chat.Message) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, channelID string, msg chat.Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, channelID string, msg chat.Message) error {
	return f(ctx, channelID, msg)
}

// Poller runs poll cycles over every channel the bot is in
type Poller struct {
	client     chat.Client
	store      session.Store
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// New creates a poller
func New(client chat.Client, store session.Store, dispatcher Dispatcher) *Poller {
	observability.EnsureRegistered()

	return &Poller{
		client:     client,
		store:      store,
		dispatcher: dispatcher,
		logger:     log.With().Str("component", "poller").Logger(),
	}
}

// PollOnce polls every member channel in turn. A failing channel is logged
// and skipped; only a failure to list channels is returned.
func (p *Poller) PollOnce(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "poll.cycle")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	start := time.Now()
	defer func() {
		observability.RecordPollCycle(time.Since(start))
	}()

	channels, err := p.client.ListMemberChannels(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to list channels: %w", err)
	}
	span.SetAttributes(attribute.Int("channels", len(channels)))

	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		if err := p.pollChannel(ctx, ch.ID); err != nil {
			logger.Error().Err(err).Str("channel", ch.ID).Msg("Channel poll failed")
		}
	}

	logger.Debug().
		Int("channels", len(channels)).
		Dur("duration", time.Since(start)).
		Msg("Poll cycle completed")

	return nil
}

func (p *Poller) pollChannel(ctx context.Context, channelID string) error {
	ctx = tracing.WithChannel(ctx, channelID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "poll.channel")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	fail := func(stage string, err error) error {
		observability.RecordChannelPollError(stage)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cursor, err := p.store.GetCursor(ctx, channelID)
	if errors.Is(err, session.ErrCursorNotFound) {
		if err := p.baseline(ctx, channelID); err != nil {
			return fail("history", err)
		}
		return nil
	}
	if err != nil {
		return fail("cursor", fmt.Errorf("failed to read cursor: %w", err))
	}

	msgs, err := p.client.FetchHistory(ctx, channelID, cursor)
	if err != nil {
		return fail("history", fmt.Errorf("failed to fetch history: %w", err))
	}
	if len(msgs) == 0 {
		return nil
	}

	chat.SortChronological(msgs)
	span.SetAttributes(attribute.Int("messages", len(msgs)))

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return nil
		}

		// At-most-once: the cursor moves before the message is handled
		if err := p.store.AdvanceCursor(ctx, channelID, msg.Timestamp); err != nil {
			return fail("advance", fmt.Errorf("failed to advance cursor: %w", err))
		}

		p.handle(ctx, logger, channelID, msg)
	}

	return nil
}

// baseline records the newest existing message as the cursor without
// handling anything, so joining a busy channel does not replay it.
func (p *Poller) baseline(ctx context.Context, channelID string) error {
	msgs, err := p.client.FetchHistory(ctx, channelID, "")
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}

	newest, ok := chat.Newest(msgs)
	if !ok {
		return nil
	}
	if err := p.store.AdvanceCursor(ctx, channelID, newest.Timestamp); err != nil {
		return fmt.Errorf("failed to set baseline cursor: %w", err)
	}

	logger := tracing.LoggerFromContext(ctx, p.logger)
	logger.Info().
		Str("cursor", newest.Timestamp).
		Int("skipped", len(msgs)).
		Msg("Channel baseline recorded")
	return nil
}

func (p *Poller) handle(ctx context.Context, logger zerolog.Logger, channelID string, msg chat.Message) {
	logger = logger.With().Str("ts", msg.Timestamp).Logger()

	if msg.IsBot {
		observability.RecordMessage(outcomeBot)
		return
	}

	_, err := p.store.GetSession(ctx, channelID)
	hasSession := err == nil
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		logger.Warn().Err(err).Msg("Failed to read session, treating channel as idle")
	}

	if !hasSession && !p.client.IsAddressedToBot(msg.Text) {
		observability.RecordMessage(outcomeUnaddressed)
		return
	}

	// Shutdown must not cut an agent call short; the agent timeout bounds it
	dispatchCtx := context.WithoutCancel(ctx)
	if err := p.dispatcher.Dispatch(dispatchCtx, channelID, msg); err != nil {
		observability.RecordMessage(outcomeFailed)
		logger.Error().Err(err).Msg("Dispatch failed")
		return
	}
	observability.RecordMessage(outcomeDispatched)
}
