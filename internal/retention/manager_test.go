package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/betpulse/internal/accumulator"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/storage"
	"github.com/rewired-gh/betpulse/internal/timeseries"
)

const day = 24 * time.Hour

var now = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func pointSeries() *timeseries.Series[models.TimeSeriesData] {
	return timeseries.New(func(p models.TimeSeriesData) time.Time { return p.Timestamp }, nil)
}

func oppSeries() *timeseries.Series[models.BettingOpportunity] {
	return timeseries.New(
		func(o models.BettingOpportunity) time.Time { return o.Timestamp },
		func(o models.BettingOpportunity) string { return o.ID },
	)
}

type failingArchive struct{}

func (failingArchive) SaveTimeSeries(models.TimeSeriesData) error { return errors.New("disk full") }
func (failingArchive) LoadTimeSeries(time.Time) ([]models.TimeSeriesData, error) {
	return nil, errors.New("disk full")
}
func (failingArchive) Prune(time.Time) (int64, error) { return 0, errors.New("disk full") }

func TestCleanup_EvictsOldEntries(t *testing.T) {
	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	require.NoError(t, acc.RecordBet(models.BetRecord{ID: "old", Stake: 10, Odds: 2, PlacedAt: now.Add(-91 * day)}))
	require.NoError(t, acc.RecordBet(models.BetRecord{ID: "recent", Stake: 10, Odds: 2, PlacedAt: now.Add(-89 * day)}))
	require.NoError(t, acc.RecordBet(models.BetRecord{ID: "undated", Stake: 10, Odds: 2}))

	opps := oppSeries()
	opps.Put(models.BettingOpportunity{ID: "o-old", Timestamp: now.Add(-100 * day)})
	opps.Put(models.BettingOpportunity{ID: "o-new", Timestamp: now.Add(-time.Hour)})

	points := pointSeries()
	points.Put(models.TimeSeriesData{Timestamp: now.Add(-95 * day)})
	points.Put(models.TimeSeriesData{Timestamp: now.Add(-day)})

	m := New(DefaultConfig(), acc, map[string]Evictor{"opportunities": opps}, points, nil, nil)
	report := m.Cleanup(now)

	assert.Equal(t, 1, report.Evicted["bets"])
	assert.Equal(t, 1, report.Evicted["opportunities"])
	assert.Equal(t, 1, report.Evicted["time_series"])
	assert.Equal(t, 1, report.Skipped)

	_, ok := acc.Get("old")
	assert.False(t, ok)
	_, ok = acc.Get("recent")
	assert.True(t, ok)
	_, ok = acc.Get("undated")
	assert.True(t, ok)

	// idempotent
	again := m.Cleanup(now)
	assert.Equal(t, 0, again.Evicted["bets"])
	assert.Equal(t, 2, acc.Len())
}

func TestCleanup_EmptyStores(t *testing.T) {
	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	m := New(Config{}, acc, nil, pointSeries(), nil, nil)
	report := m.Cleanup(now)
	assert.Equal(t, 0, report.Evicted["bets"])
	assert.Equal(t, now.Add(-90*day), report.Cutoff)
}

func TestSnapshot_AppendsAndCaps(t *testing.T) {
	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	require.NoError(t, acc.RecordBet(models.BetRecord{
		ID: "b1", Stake: 100, Odds: 2, Result: models.ResultWin, ProfitLoss: 100, PlacedAt: now.Add(-time.Hour),
	}))

	points := pointSeries()
	m := New(Config{MaxSnapshots: 3}, acc, nil, points, nil, nil)
	for i := 0; i < 5; i++ {
		m.Snapshot(now.Add(time.Duration(i) * time.Hour))
	}

	all := points.All()
	require.Len(t, all, 3)
	assert.Equal(t, now.Add(2*time.Hour), all[0].Timestamp)
	assert.Equal(t, 1, all[2].Bets)
	assert.Equal(t, 100.0, all[2].ProfitLoss)
	assert.Equal(t, 1.0, all[2].ROI)
}

func TestArchiveFailuresAreNotFatal(t *testing.T) {
	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	points := pointSeries()
	m := New(DefaultConfig(), acc, nil, points, failingArchive{}, nil)

	m.Snapshot(now)
	assert.Equal(t, 1, points.Len())

	report := m.Cleanup(now)
	assert.Equal(t, int64(0), report.Archived)
	assert.Equal(t, 0, m.Restore(now))
}

func TestSnapshot_ArchiveAndRestore(t *testing.T) {
	store, err := storage.New(100, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	m := New(DefaultConfig(), acc, nil, pointSeries(), store, nil)
	m.Snapshot(now.Add(-100 * day))
	m.Snapshot(now.Add(-time.Hour))

	restored := pointSeries()
	fresh := New(DefaultConfig(), acc, nil, restored, store, nil)
	assert.Equal(t, 1, fresh.Restore(now))
	assert.Equal(t, 1, restored.Len())

	report := fresh.Cleanup(now)
	assert.Equal(t, int64(1), report.Archived)
}

func TestStartStop(t *testing.T) {
	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	points := pointSeries()
	m := New(Config{SnapshotInterval: 5 * time.Millisecond, CleanupInterval: 5 * time.Millisecond}, acc, nil, points, nil, nil)
	m.now = func() time.Time { return now }

	m.Start(context.Background())
	require.Eventually(t, func() bool { return points.Len() > 0 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	n := points.Len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, points.Len(), "no snapshots after Stop")
}

func TestStopWithoutStart(t *testing.T) {
	m := New(DefaultConfig(), accumulator.New(nil, accumulator.BreakdownFilter{}), nil, pointSeries(), nil, nil)
	m.Stop()
}

func TestStopBeforeStartStillStopsLaterLoop(t *testing.T) {
	acc := accumulator.New(nil, accumulator.BreakdownFilter{})
	points := pointSeries()
	m := New(Config{SnapshotInterval: 5 * time.Millisecond, CleanupInterval: time.Hour}, acc, nil, points, nil, nil)
	tick := now
	var mu sync.Mutex
	m.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}

	m.Stop()
	m.Start(context.Background())
	m.Start(context.Background())
	require.Eventually(t, func() bool { return points.Len() > 0 }, time.Second, 5*time.Millisecond)
	m.Stop()

	n := points.Len()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, points.Len(), "a single Stop ends the loop even after repeated Start")
}
