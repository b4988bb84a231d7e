// Package scheduler runs the periodic background jobs of allocdesk.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/config"
)

// Prober checks whether the remote allocation service is reachable.
type Prober interface {
	ProbeAvailability(ctx context.Context) bool
	BaseURL() string
}

// Reaper closes sessions that have been idle for longer than ttl.
type Reaper interface {
	ReapIdle(ttl time.Duration) int
}

// StatusPublisher announces availability transitions.
type StatusPublisher interface {
	PublishBackendStatus(available bool, baseURL string) error
}

// StatusListener is called with the new availability after every transition,
// and once after the first probe.
type StatusListener func(available bool)

// Monitor probes the remote service and reaps idle sessions on cron schedules.
// It never mutates existing sessions; they keep the mode chosen at start.
type Monitor struct {
	cron      *cron.Cron
	prober    Prober
	reaper    Reaper
	publisher StatusPublisher
	idleTTL   time.Duration
	listeners []StatusListener
	logger    *zap.Logger

	mu        sync.RWMutex
	available bool
	probed    bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithStatusListener registers a listener for availability transitions.
func WithStatusListener(l StatusListener) MonitorOption {
	return func(m *Monitor) {
		m.listeners = append(m.listeners, l)
	}
}

// WithPublisher sets the publisher used for availability transitions.
func WithPublisher(p StatusPublisher) MonitorOption {
	return func(m *Monitor) {
		m.publisher = p
	}
}

// NewMonitor registers the availability and reaper jobs. Jobs do not run until Start.
func NewMonitor(cfg *config.SchedulerConfig, idleTTL time.Duration, prober Prober, reaper Reaper, logger *zap.Logger, opts ...MonitorOption) (*Monitor, error) {
	m := &Monitor{
		prober:  prober,
		reaper:  reaper,
		idleTTL: idleTTL,
		logger:  logger.Named("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}

	cronLogger := zapCronLogger{logger: m.logger}
	m.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := m.cron.AddFunc(cfg.AvailabilityCron, func() {
		m.CheckAvailability(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid availability schedule %q: %w", cfg.AvailabilityCron, err)
	}

	if _, err := m.cron.AddFunc(cfg.ReaperCron, func() {
		m.ReapIdle()
	}); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", cfg.ReaperCron, err)
	}

	return m, nil
}

// Start runs one availability probe synchronously, then starts the cron jobs.
func (m *Monitor) Start(ctx context.Context) {
	m.CheckAvailability(ctx)
	m.cron.Start()
	m.logger.Info("Monitor started", zap.Int("jobs", len(m.cron.Entries())))
}

// Stop stops scheduling and waits for running jobs until ctx expires.
func (m *Monitor) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.logger.Info("Monitor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitor stop: %w", ctx.Err())
	}
}

// Available reports the result of the latest probe.
func (m *Monitor) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// CheckAvailability probes the remote service and notifies on transitions.
func (m *Monitor) CheckAvailability(ctx context.Context) bool {
	available := m.prober.ProbeAvailability(ctx)

	m.mu.Lock()
	first := !m.probed
	changed := first || m.available != available
	m.available = available
	m.probed = true
	m.mu.Unlock()

	if !changed {
		return available
	}

	m.logger.Info("Remote availability changed",
		zap.Bool("available", available),
		zap.String("base_url", m.prober.BaseURL()),
	)

	for _, l := range m.listeners {
		l(available)
	}

	if !first && m.publisher != nil {
		if err := m.publisher.PublishBackendStatus(available, m.prober.BaseURL()); err != nil {
			m.logger.Warn("Failed to publish backend status", zap.Error(err))
		}
	}

	return available
}

// ReapIdle closes idle sessions and returns how many were closed.
func (m *Monitor) ReapIdle() int {
	if m.reaper == nil {
		return 0
	}
	n := m.reaper.ReapIdle(m.idleTTL)
	if n > 0 {
		m.logger.Debug("Reaper pass", zap.Int("closed", n))
	}
	return n
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = zapCronLogger{}
