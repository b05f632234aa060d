package daemon

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/winvd/internal/journal"
)

// Prober is the call the monitor uses to check the shell.
type Prober interface {
	Count() (uint32, error)
}

// MonitorConfig holds configuration for the monitor.
type MonitorConfig struct {
	Interval time.Duration
	Journal  *journal.Journal
	Logger   *slog.Logger
}

// Probe is the outcome of one health check.
type Probe struct {
	Time      time.Time `json:"time"`
	Connected bool      `json:"connected"`
	Count     uint32    `json:"count"`
	Error     string    `json:"error,omitempty"`
}

// Monitor periodically probes the shell and logs when it goes away or comes
// back.
type Monitor struct {
	interval time.Duration
	prober   Prober
	journal  *journal.Journal
	logger   *slog.Logger

	mu     sync.Mutex
	last   Probe
	probed bool
	downs  int
}

// NewMonitor creates a monitor probing p.
func NewMonitor(cfg MonitorConfig, p Prober) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		interval: interval,
		prober:   p,
		journal:  cfg.Journal,
		logger:   logger,
	}
}

// Run probes once immediately and then every interval. Blocks until context
// is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("monitor started", "interval", m.interval)
	m.ProbeNow()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.ProbeNow()
		}
	}
}

// ProbeNow performs a single probe and returns its result.
func (m *Monitor) ProbeNow() (p Probe) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			m.logger.Error("monitor panic recovered", "error", err)
		}
	}()

	n, err := m.prober.Count()
	p = Probe{Time: time.Now(), Connected: err == nil, Count: n}
	if err != nil {
		p.Error = err.Error()
	}

	m.mu.Lock()
	prev, had := m.last, m.probed
	m.last, m.probed = p, true
	if had && prev.Connected && !p.Connected {
		m.downs++
	}
	m.mu.Unlock()

	switch {
	case had && prev.Connected && !p.Connected:
		m.logger.Warn("monitor: shell unavailable", "error", err)
	case had && !prev.Connected && p.Connected:
		m.logger.Info("monitor: shell available again", "count", n)
		m.journal.Record(journal.ActionReconnect, "", map[string]any{"count": n})
	case !had && !p.Connected:
		m.logger.Warn("monitor: shell unavailable at startup", "error", err)
	default:
		m.logger.Debug("monitor probe", "connected", p.Connected, "count", n)
	}
	return p
}

// Last returns the most recent probe, zero before the first one.
func (m *Monitor) Last() Probe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Outages returns how many times the shell went from reachable to
// unreachable.
func (m *Monitor) Outages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downs
}
