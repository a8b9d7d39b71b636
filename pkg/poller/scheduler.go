package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/chanbridge/internal/tracing"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CycleRunner runs one poll cycle
type CycleRunner interface {
	PollOnce(ctx context.Context) error
}

// Scheduler re-runs poll cycles on a cron schedule. The next start is
// computed from the previous start, so a cycle that overruns its slot is
// followed immediately by the next one and cycles never overlap.
type Scheduler struct {
	runner   CycleRunner
	schedule cron.Schedule
	now      func() time.Time
	logger   zerolog.Logger
}

// ParseSchedule returns the cron schedule for expr, or a fixed interval
// when expr is empty.
func ParseSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr != "" {
		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid poll schedule %q: %w", expr, err)
		}
		return schedule, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	return cron.Every(interval), nil
}

// NewScheduler creates a scheduler
func NewScheduler(runner CycleRunner, schedule cron.Schedule) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		now:      time.Now,
		logger:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Run polls until ctx is canceled. An in-flight cycle is allowed to finish
// before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Msg("Poll scheduler started")
	defer s.logger.Info().Msg("Poll scheduler stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		start := s.now()
		s.runCycle(ctx)

		wait := s.schedule.Next(start).Sub(s.now())
		if wait <= 0 {
			s.logger.Debug().Msg("Poll cycle overran its slot, starting next cycle now")
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx := tracing.NewCycleContext(ctx)
	if err := s.runner.PollOnce(cycleCtx); err != nil {
		logger := tracing.LoggerFromContext(cycleCtx, s.logger)
		logger.Error().Err(err).Msg("Poll cycle failed")
	}
}
