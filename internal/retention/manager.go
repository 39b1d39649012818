// Package retention bounds the in-memory stores by age and records periodic
// metric snapshots.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/betpulse/internal/logger"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/telemetry"
	"github.com/rewired-gh/betpulse/internal/timeseries"
)

type Config struct {
	Period           time.Duration // entries older than now-Period are evicted
	SnapshotInterval time.Duration
	CleanupInterval  time.Duration
	MaxSnapshots     int
}

func DefaultConfig() Config {
	return Config{
		Period:           90 * 24 * time.Hour,
		SnapshotInterval: time.Hour,
		CleanupInterval:  time.Hour,
		MaxSnapshots:     2160,
	}
}

// BetStore is the bet set subject to retention.
type BetStore interface {
	EvictBefore(cutoff time.Time) ([]models.BetRecord, int)
	ComputeMetrics(tr *models.TimeRange) models.PerformanceMetrics
}

// Evictor is any time-ordered store that can drop old entries.
type Evictor interface {
	EvictBefore(cutoff time.Time) (evicted, skipped int)
}

// Archive persists snapshot points outside the process.
type Archive interface {
	SaveTimeSeries(p models.TimeSeriesData) error
	LoadTimeSeries(since time.Time) ([]models.TimeSeriesData, error)
	Prune(cutoff time.Time) (int64, error)
}

// Report summarizes one cleanup pass.
type Report struct {
	Cutoff   time.Time
	Evicted  map[string]int
	Skipped  int
	Archived int64
}

type Manager struct {
	config   Config
	bets     BetStore
	stores   map[string]Evictor
	points   *timeseries.Series[models.TimeSeriesData]
	archive  Archive
	metrics  *telemetry.Metrics
	now      func() time.Time
	mu       sync.Mutex // serializes Snapshot and Cleanup

	life   sync.Mutex // guards cancel and done
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a manager. stores maps a label used in logs and metrics to
// each additional store; archive and metrics may be nil.
func New(config Config, bets BetStore, stores map[string]Evictor,
	points *timeseries.Series[models.TimeSeriesData], archive Archive, metrics *telemetry.Metrics) *Manager {
	def := DefaultConfig()
	if config.Period <= 0 {
		config.Period = def.Period
	}
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = def.SnapshotInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &Manager{
		config:  config,
		bets:    bets,
		stores:  stores,
		points:  points,
		archive: archive,
		metrics: metrics,
		now:     time.Now,
	}
}

// Restore reloads archived snapshot points still inside the retention period.
func (m *Manager) Restore(now time.Time) int {
	if m.archive == nil {
		return 0
	}
	points, err := m.archive.LoadTimeSeries(now.Add(-m.config.Period))
	if err != nil {
		logger.Warn("Failed to restore time series: %v", err)
		return 0
	}
	for _, p := range points {
		m.points.Put(p)
	}
	if m.config.MaxSnapshots > 0 {
		m.points.TrimTo(m.config.MaxSnapshots)
	}
	return len(points)
}

// Snapshot computes the current metrics and appends them as a time series point.
func (m *Manager) Snapshot(now time.Time) models.TimeSeriesData {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.bets.ComputeMetrics(nil)
	p := models.NewTimeSeriesData(now, metrics)
	m.points.Put(p)
	if m.config.MaxSnapshots > 0 {
		m.points.TrimTo(m.config.MaxSnapshots)
	}
	m.metrics.UpdatePerformance(metrics)

	if m.archive != nil {
		if err := m.archive.SaveTimeSeries(p); err != nil {
			logger.Warn("Failed to archive snapshot: %v", err)
		}
	}
	logger.Debug("Snapshot at %s: %d bets, P&L %.2f, ROI %.4f",
		now.Format(time.RFC3339), p.Bets, p.ProfitLoss, p.ROI)
	return p
}

// Cleanup evicts everything older than now minus the retention period.
// It never fails; problems are logged and the pass continues.
func (m *Manager) Cleanup(now time.Time) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.config.Period)
	report := Report{Cutoff: cutoff, Evicted: make(map[string]int)}

	evicted, skipped := m.bets.EvictBefore(cutoff)
	report.Evicted["bets"] = len(evicted)
	report.Skipped += skipped
	if skipped > 0 {
		logger.Warn("Retention kept %d bets without a placement time", skipped)
	}

	for name, store := range m.stores {
		n, skipped := store.EvictBefore(cutoff)
		report.Evicted[name] = n
		report.Skipped += skipped
		if skipped > 0 {
			logger.Warn("Retention kept %d %s without a timestamp", skipped, name)
		}
	}

	n, _ := m.points.EvictBefore(cutoff)
	if m.config.MaxSnapshots > 0 {
		n += m.points.TrimTo(m.config.MaxSnapshots)
	}
	report.Evicted["time_series"] = n

	if m.archive != nil {
		archived, err := m.archive.Prune(cutoff)
		if err != nil {
			logger.Warn("Failed to prune archive: %v", err)
		}
		report.Archived = archived
	}

	total := 0
	for kind, n := range report.Evicted {
		m.metrics.RecordEviction(kind, n)
		total += n
	}
	if total > 0 || report.Archived > 0 {
		logger.Info("Retention cleanup before %s: evicted %v, archive rows %d",
			cutoff.Format(time.RFC3339), report.Evicted, report.Archived)
	}
	return report
}

// Start runs Snapshot and Cleanup on their intervals until Stop or ctx ends.
// Calling Start while the loop runs does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.life.Lock()
	defer m.life.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		snapshotTicker := time.NewTicker(m.config.SnapshotInterval)
		defer snapshotTicker.Stop()
		cleanupTicker := time.NewTicker(m.config.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-snapshotTicker.C:
				m.Snapshot(m.now())
			case <-cleanupTicker.C:
				m.Cleanup(m.now())
			}
		}
	}(m.done)
}

// Stop halts the background loop and waits for it to exit. Safe to call
// more than once, or without Start; a later Start runs a fresh loop.
func (m *Manager) Stop() {
	m.life.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.life.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
