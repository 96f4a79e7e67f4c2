package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mailwatch/internal/engine"
	"mailwatch/internal/notify"
	"mailwatch/internal/state"
)

const errorCooldown = 60 * time.Second

// Engine is the per-cycle dedup/delivery logic driven by a Monitor.
type Engine interface {
	RunCycle(ctx context.Context) int
	Initialize(ctx context.Context) error
}

// Config wires up a Monitor for one account.
type Config struct {
	Account   string
	Engine    Engine
	Notifier  engine.Notifier
	StatePath string
	Interval  time.Duration
	Senders   []string
	KeepAlive bool
	Logger    *slog.Logger
}

// Monitor drives the engine on a fixed interval until its context is
// cancelled. A failing cycle never stops the loop: panics are
// recovered here, reported best-effort to the chat, and followed by a
// cooldown before the next attempt.
type Monitor struct {
	cfg      Config
	cooldown time.Duration
	logger   *slog.Logger
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg, cooldown: errorCooldown, logger: cfg.Logger}
}

// Run executes the monitoring lifecycle: first-run initialization if
// no persisted state exists yet, a one-time startup notification, then
// the polling loop. It returns nil after a clean shutdown on context
// cancellation, or an error if first-run initialization fails.
func (m *Monitor) Run(ctx context.Context) error {
	if !state.Exists(m.cfg.StatePath) {
		m.logger.Info("first run, establishing baseline", "account", m.cfg.Account)
		if err := m.cfg.Engine.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize monitoring: %w", err)
		}
	}

	if p, ok := m.cfg.Notifier.(interface{ Preflight(context.Context) bool }); ok {
		p.Preflight(ctx)
	}
	if !m.cfg.Notifier.Deliver(ctx, notify.Startup(m.cfg.Account, m.cfg.Interval, m.cfg.Senders, m.cfg.KeepAlive)) {
		m.logger.Warn("startup notification failed, continuing", "account", m.cfg.Account)
	}

	m.logger.Info("polling started",
		"account", m.cfg.Account,
		"interval", m.cfg.Interval,
		"senders", len(m.cfg.Senders),
	)

	for {
		if err := m.safeCycle(ctx); err != nil {
			m.logger.Error("cycle failed", "account", m.cfg.Account, "error", err)
			m.cfg.Notifier.Deliver(ctx, notify.CycleError(err.Error()))
			if stopped := m.sleep(ctx, m.cooldown); stopped {
				return m.shutdown()
			}
			continue
		}

		if stopped := m.sleep(ctx, m.cfg.Interval); stopped {
			return m.shutdown()
		}
	}
}

// RunOnce announces and executes a single cycle.
func (m *Monitor) RunOnce(ctx context.Context) error {
	m.cfg.Notifier.Deliver(ctx, notify.TestRun())
	return m.safeCycle(ctx)
}

// safeCycle contains one cycle's panics so a single bad message or a
// misbehaving dependency cannot kill the process.
func (m *Monitor) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from cycle panic: %v", r)
		}
	}()
	m.cfg.Engine.RunCycle(ctx)
	return nil
}

// sleep waits for d or until ctx is cancelled, reporting cancellation.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}

// shutdown sends the best-effort stop notice. The run context is
// already cancelled at this point, so the notice gets its own bounded
// context.
func (m *Monitor) shutdown() error {
	m.logger.Info("monitoring stopped", "account", m.cfg.Account)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m.cfg.Notifier.Deliver(ctx, notify.Shutdown())
	return nil
}
