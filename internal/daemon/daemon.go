package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/chanbridge/internal/config"
	"github.com/harun/chanbridge/internal/discord"
	"github.com/harun/chanbridge/internal/logger"
	"github.com/harun/chanbridge/internal/observability"
	"github.com/harun/chanbridge/internal/slack"
	"github.com/harun/chanbridge/internal/tracing"
	"github.com/harun/chanbridge/pkg/agent"
	"github.com/harun/chanbridge/pkg/chat"
	"github.com/harun/chanbridge/pkg/commands"
	"github.com/harun/chanbridge/pkg/poller"
	"github.com/harun/chanbridge/pkg/process"
	"github.com/harun/chanbridge/pkg/session"
	"github.com/rs/zerolog"
)

const (
	serviceName = "chanbridge"

	// Extra time granted on top of the prompt retry budget for the
	// in-flight cycle to finish during shutdown.
	shutdownGrace = 30 * time.Second
)

// Version is reported to tracing; the CLI overrides it at startup.
var Version = "dev"

// Daemon wires the chat client, session store, agent invoker, command
// dispatcher and poll scheduler into one long-running service.
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	client     chat.Client
	store      session.Store
	runner     process.Runner
	invoker    *agent.Invoker
	dispatcher *commands.Dispatcher
	poller     *poller.Poller
	scheduler  *poller.Scheduler

	metricsServer *http.Server
	lifecycle     *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// newChatClient connects to the configured platform; tests replace it.
var newChatClient = func(ctx context.Context, cfg *config.Config) (chat.Client, error) {
	switch cfg.Chat.Platform {
	case config.PlatformDiscord:
		return discord.New(ctx, cfg.Chat.Discord.BotToken, cfg.Chat.Discord.GuildIDs)
	case config.PlatformSlack:
		return slack.New(ctx, cfg.Chat.Slack.BotToken)
	default:
		return nil, fmt.Errorf("unsupported chat platform %q", cfg.Chat.Platform)
	}
}

// New creates a daemon. It authenticates against the chat platform, so it
// fails fast on a bad token.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.Component("daemon"),
		ctx:    ctx,
		cancel: cancel,
	}

	observability.EnsureRegistered()
	if err := tracing.InitOpenTelemetry(serviceName, Version); err != nil {
		d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initializeModules(); err != nil {
		cancel()
		d.shutdownTracing()
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) initializeModules() error {
	store, err := session.NewFileStore(d.config.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	d.store = store

	connectCtx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()
	client, err := newChatClient(connectCtx, d.config)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.config.Chat.Platform, err)
	}
	d.client = client
	d.log.Info().Str("platform", d.config.Chat.Platform).Msg("Chat client initialized")

	d.runner = process.NewHostRunner()

	d.invoker = agent.NewInvoker(agent.Config{
		Command:       d.config.Agent.Command,
		Args:          d.config.Agent.Args,
		Timeout:       d.config.Agent.Timeout,
		MaxRetries:    d.config.Agent.MaxRetries,
		SessionPrompt: d.config.Agent.SessionPrompt,
		Env:           d.config.Agent.Env,
	}, d.runner, agent.WithLogger(d.logger.GetZerolog()))
	d.log.Info().
		Str("command", d.config.Agent.Command).
		Dur("timeout", d.config.Agent.Timeout).
		Int("max_retries", d.config.Agent.MaxRetries).
		Msg("Agent invoker initialized")

	d.dispatcher = commands.New(d.client, d.store, d.invoker, d.runner, commands.Config{
		BasePath:    d.config.Projects.BasePath,
		DiffTimeout: d.config.Projects.DiffTimeout,
	})

	d.poller = poller.New(d.client, d.store, d.dispatcher)

	schedule, err := poller.ParseSchedule(d.config.Poll.Schedule, d.config.Poll.Interval)
	if err != nil {
		return err
	}
	d.scheduler = poller.NewScheduler(d.poller, schedule)

	if d.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsServer = &http.Server{
			Addr:              d.config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return nil
}

// Start writes the PID file and launches the poll scheduler
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting chanbridge daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.metricsServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			logger.Info().Str("addr", d.metricsServer.Addr).Msg("Metrics server listening")
			if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.scheduler.Run(d.ctx); err != nil {
			logger.Error().Err(err).Msg("Poll scheduler exited")
		}
	}()

	logger.Info().
		Str("platform", d.config.Chat.Platform).
		Str("schedule", d.scheduleDescription()).
		Msg("Daemon started")

	return nil
}

// Stop cancels the scheduler and waits for the in-flight cycle to finish.
// The cycle stops after the message it is handling, so the wait is bounded
// by one prompt with all of its retries (see StopTimeout).
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping chanbridge daemon")

	d.cancel()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	wait := d.stopTimeout()
	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(wait):
		logger.Warn().Dur("waited", wait).Msg("Timeout waiting for the in-flight poll cycle")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	logger.Info().Msg("Daemon stopped")

	return nil
}

func (d *Daemon) stopTimeout() time.Duration {
	return StopTimeout(d.config)
}

// StopTimeout is how long Stop waits for the in-flight cycle under cfg
func StopTimeout(cfg *config.Config) time.Duration {
	return agent.PromptBudget(cfg.Agent.Timeout, cfg.Agent.MaxRetries) + shutdownGrace
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.log.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

func (d *Daemon) scheduleDescription() string {
	if d.config.Poll.Schedule != "" {
		return d.config.Poll.Schedule
	}
	return "every " + d.config.Poll.Interval.String()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Platform: d.config.Chat.Platform,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.log.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status represents daemon status
type Status struct {
	Running   bool
	Platform  string
	Uptime    time.Duration
	StartTime time.Time
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetStore returns the session store
func (d *Daemon) GetStore() session.Store {
	return d.store
}

// GetChatClient returns the platform client
func (d *Daemon) GetChatClient() chat.Client {
	return d.client
}
