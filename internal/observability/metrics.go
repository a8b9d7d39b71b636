package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	pollCyclesTotal       prometheus.Counter
	pollCycleDuration     prometheus.Histogram
	channelPollErrors     *prometheus.CounterVec
	messagesTotal         *prometheus.CounterVec
	dispatchDuration      *prometheus.HistogramVec
	activeSessions        prometheus.Gauge
	sessionLoadDuration   prometheus.Histogram
	sessionSaveDuration   prometheus.Histogram
	agentAttemptsTotal    *prometheus.CounterVec
	agentAttemptDuration  *prometheus.HistogramVec
	agentRetriesTotal     *prometheus.CounterVec
	agentInvocationsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			pollCyclesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "chanbridge_poll_cycles_total",
					Help: "Total completed poll cycles.",
				},
			),
			pollCycleDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chanbridge_poll_cycle_duration_seconds",
					Help:    "Poll cycle duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			channelPollErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chanbridge_channel_poll_errors_total",
					Help: "Per-channel poll failures by stage.",
				},
				[]string{"stage"},
			),
			messagesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chanbridge_messages_total",
					Help: "Observed channel messages by outcome.",
				},
				[]string{"outcome"},
			),
			dispatchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chanbridge_dispatch_duration_seconds",
					Help:    "Command dispatch duration in seconds by command.",
					Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
				},
				[]string{"command"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "chanbridge_active_sessions",
					Help: "Channels with a stored agent session.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chanbridge_session_load_duration_seconds",
					Help:    "Session record load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chanbridge_session_save_duration_seconds",
					Help:    "Session record save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			agentAttemptsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chanbridge_agent_attempts_total",
					Help: "Agent subprocess attempts by operation and outcome.",
				},
				[]string{"operation", "outcome"},
			),
			agentAttemptDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "chanbridge_agent_attempt_duration_seconds",
					Help:    "Agent subprocess attempt duration in seconds by operation.",
					Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
				},
				[]string{"operation"},
			),
			agentRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chanbridge_agent_retries_total",
					Help: "Agent retries after a retryable failure by operation.",
				},
				[]string{"operation"},
			),
			agentInvocationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chanbridge_agent_invocations_total",
					Help: "Agent invocations (all attempts included) by operation and status.",
				},
				[]string{"operation", "status"},
			),
		}

		prometheus.MustRegister(
			m.pollCyclesTotal,
			m.pollCycleDuration,
			m.channelPollErrors,
			m.messagesTotal,
			m.dispatchDuration,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.agentAttemptsTotal,
			m.agentAttemptDuration,
			m.agentRetriesTotal,
			m.agentInvocationsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordPollCycle(duration time.Duration) {
	m := getMetrics()
	m.pollCyclesTotal.Inc()
	m.pollCycleDuration.Observe(duration.Seconds())
}

// RecordChannelPollError counts a per-channel failure; stage is "cursor",
// "history" or "advance".
func RecordChannelPollError(stage string) {
	getMetrics().channelPollErrors.WithLabelValues(stage).Inc()
}

// RecordMessage counts an observed message by what the poll loop did with it.
func RecordMessage(outcome string) {
	getMetrics().messagesTotal.WithLabelValues(outcome).Inc()
}

func RecordDispatch(command string, duration time.Duration) {
	getMetrics().dispatchDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

// RecordAgentAttempt records one subprocess attempt. outcome is "success",
// "retryable" or "fatal".
func RecordAgentAttempt(operation, outcome string, duration time.Duration) {
	m := getMetrics()
	m.agentAttemptsTotal.WithLabelValues(operation, outcome).Inc()
	m.agentAttemptDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordAgentRetry(operation string) {
	getMetrics().agentRetriesTotal.WithLabelValues(operation).Inc()
}

func RecordAgentInvocation(operation string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().agentInvocationsTotal.WithLabelValues(operation, status).Inc()
}
