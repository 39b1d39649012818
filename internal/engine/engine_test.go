package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/betpulse/internal/events"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/retention"
	"github.com/rewired-gh/betpulse/internal/storage"
	"github.com/rewired-gh/betpulse/internal/telegram"
)

var clock = time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

type sink struct {
	mu   sync.Mutex
	seen []models.Anomaly
}

func (s *sink) Notify(ctx context.Context, anomalies []models.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, anomalies...)
	return nil
}

func newEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	if deps.Now == nil {
		deps.Now = func() time.Time { return clock }
	}
	return New(Config{Retention: retention.DefaultConfig()}, deps)
}

func handle(t *testing.T, e *Engine, typ events.Type, key string, payload any) error {
	t.Helper()
	ev, err := events.New(typ, key, payload)
	require.NoError(t, err)
	return e.Handle(context.Background(), ev)
}

func TestHandle_PlaceAndSettle(t *testing.T) {
	e := newEngine(t, Deps{})

	require.NoError(t, handle(t, e, events.BetPlaced, "a", models.BetRecord{
		ID: "a", Stake: 100, Odds: 2.0, PlacedAt: clock.Add(-2 * time.Hour),
	}))
	require.NoError(t, handle(t, e, events.BetSettled, "a", events.Settlement{
		ID: "a", Result: models.ResultWin, ProfitLoss: 100,
	}))

	m := e.Metrics(nil)
	assert.Equal(t, 1, m.TotalBets)
	assert.Equal(t, 1, m.WinningBets)
	assert.Equal(t, 1.0, m.WinRate)
	assert.Equal(t, 1.0, m.ROI)
	assert.Equal(t, 100.0, m.ProfitLoss)
	assert.InDelta(t, 2.0, m.TimeInMarket, 1e-9, "settlement time defaults to the engine clock")
}

func TestHandle_SettlementReplayRejected(t *testing.T) {
	e := newEngine(t, Deps{})
	require.NoError(t, handle(t, e, events.BetPlaced, "a", models.BetRecord{ID: "a", Stake: 100, Odds: 2.0, PlacedAt: clock}))
	require.NoError(t, handle(t, e, events.BetSettled, "a", events.Settlement{ID: "a", Result: models.ResultLoss, ProfitLoss: -100}))

	err := handle(t, e, events.BetSettled, "a", events.Settlement{ID: "a", Result: models.ResultWin, ProfitLoss: 100})
	var serr *models.InvalidStateError
	require.ErrorAs(t, err, &serr)

	bet, ok := e.Bet("a")
	require.True(t, ok)
	assert.Equal(t, models.ResultLoss, bet.Result)
	assert.Equal(t, -100.0, e.Metrics(nil).ProfitLoss)
}

func TestHandle_Rejections(t *testing.T) {
	e := newEngine(t, Deps{})

	var verr *models.ValidationError
	assert.ErrorAs(t, handle(t, e, events.BetPlaced, "", models.BetRecord{Stake: 10}), &verr)
	assert.ErrorAs(t, handle(t, e, events.PredictionUpdate, "", models.BettingOpportunity{}), &verr)
	assert.ErrorAs(t, handle(t, e, events.OddsUpdate, "m1", models.OddsSnapshot{MarketID: "m1"}), &verr)
	assert.ErrorAs(t, e.Handle(context.Background(), events.Event{Type: "bet:voided", Data: []byte(`{}`)}), &verr)

	var nerr *models.NotFoundError
	assert.ErrorAs(t, handle(t, e, events.BetSettled, "x", events.Settlement{ID: "x", Result: models.ResultWin}), &nerr)

	assert.Equal(t, 0, e.Metrics(nil).TotalBets)
}

func TestHandle_EdgeRetentionFromOpportunity(t *testing.T) {
	e := newEngine(t, Deps{})
	require.NoError(t, handle(t, e, events.PredictionUpdate, "o1", models.BettingOpportunity{ID: "o1", MarketID: "m1", Edge: 50}))
	require.NoError(t, handle(t, e, events.BetPlaced, "a", models.BetRecord{ID: "a", OpportunityID: "o1", Stake: 100, Odds: 2, PlacedAt: clock}))
	require.NoError(t, handle(t, e, events.BetSettled, "a", events.Settlement{ID: "a", Result: models.ResultWin, ProfitLoss: 100}))

	assert.InDelta(t, 2.0, e.Metrics(nil).EdgeRetention, 1e-9)

	opp, ok := e.Opportunity("o1")
	require.True(t, ok)
	assert.Equal(t, clock, opp.Timestamp, "missing timestamps default to the engine clock")
}

func TestHandle_RiskAssessments(t *testing.T) {
	e := newEngine(t, Deps{})
	require.NoError(t, handle(t, e, events.DataUpdated, "r1", models.RiskAssessment{ID: "r1", Score: 0.3, Timestamp: clock}))
	require.NoError(t, handle(t, e, events.RiskAssessed, "r2", models.RiskAssessment{ID: "r2", Score: 0.7, Timestamp: clock.Add(time.Minute)}))
	require.NoError(t, handle(t, e, events.DataUpdated, "r1", models.RiskAssessment{ID: "r1", Score: 0.4, Timestamp: clock.Add(2 * time.Minute)}))

	got := e.RiskAssessments()
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID)
	assert.Equal(t, 0.4, got[1].Score)
}

func odds(market string, at time.Time, volume float64) models.OddsSnapshot {
	return models.OddsSnapshot{
		MarketID:  market,
		Timestamp: at,
		Quotes: []models.OddsQuote{
			{Bookmaker: "a", Odds: 1.9, Volume: volume, MaxStake: 500},
			{Bookmaker: "b", Odds: 2.0, Volume: 0, MaxStake: 500},
		},
	}
}

func TestHandle_OddsTrendAndAnomalies(t *testing.T) {
	alerts := &sink{}
	archive, err := storage.New(100, ":memory:")
	require.NoError(t, err)
	defer archive.Close()

	e := newEngine(t, Deps{Alerts: alerts, Archive: archive})

	require.NoError(t, handle(t, e, events.OddsUpdate, "m1", odds("m1", clock, 1000)))
	assert.Empty(t, e.Anomalies("m1"))

	require.NoError(t, handle(t, e, events.OddsUpdate, "m1", odds("m1", clock.Add(time.Minute), 1200)))
	mm, ok := e.MarketMetrics("m1")
	require.True(t, ok)
	assert.Greater(t, mm.Trend, 0.0)
	assert.Len(t, mm.VolumeHistory, 2)

	for i := 2; i < 6; i++ {
		require.NoError(t, handle(t, e, events.OddsUpdate, "m1", odds("m1", clock.Add(time.Duration(i)*time.Minute), 1100)))
	}
	require.NoError(t, handle(t, e, events.OddsUpdate, "m1", odds("m1", clock.Add(10*time.Minute), 9000)))

	found := e.Anomalies("m1")
	require.Len(t, found, 1)
	assert.Equal(t, models.AnomalyVolume, found[0].Type)

	alerts.mu.Lock()
	require.NotEmpty(t, alerts.seen)
	assert.Equal(t, found[0].ID, alerts.seen[len(alerts.seen)-1].ID)
	alerts.mu.Unlock()

	archived, err := archive.RecentAnomalies("m1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, archived)
	assert.Equal(t, found[0].ID, archived[0].ID)

	eff, ok := e.MarketEfficiency("m1")
	require.True(t, ok)
	assert.Equal(t, 1000.0, eff.MarketDepth)
	assert.Equal(t, []string{"m1"}, e.Markets())
}

func TestTimeSeries(t *testing.T) {
	e := newEngine(t, Deps{})
	require.NoError(t, handle(t, e, events.BetPlaced, "a", models.BetRecord{ID: "a", Stake: 10, Odds: 2, PlacedAt: clock}))

	r := e.Retention()
	r.Snapshot(clock)
	r.Snapshot(clock.Add(20 * time.Minute))
	r.Snapshot(clock.Add(90 * time.Minute))

	hourly, err := e.TimeSeries("1h")
	require.NoError(t, err)
	assert.Len(t, hourly, 2)

	daily, err := e.TimeSeries("1d")
	require.NoError(t, err)
	assert.Len(t, daily, 1)
	assert.Equal(t, clock.Add(90*time.Minute), daily[0].Timestamp)

	_, err = e.TimeSeries("5m")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCleanup_ThroughEngine(t *testing.T) {
	e := newEngine(t, Deps{})
	day := 24 * time.Hour
	require.NoError(t, handle(t, e, events.BetPlaced, "old", models.BetRecord{ID: "old", Stake: 10, Odds: 2, PlacedAt: clock.Add(-91 * day)}))
	require.NoError(t, handle(t, e, events.BetPlaced, "new", models.BetRecord{ID: "new", Stake: 10, Odds: 2, PlacedAt: clock.Add(-89 * day)}))

	e.Retention().Cleanup(clock)

	_, ok := e.Bet("old")
	assert.False(t, ok)
	_, ok = e.Bet("new")
	assert.True(t, ok)
}

type stalledSender struct {
	release chan struct{}
	sent    chan string
}

func (s *stalledSender) SendMarkdown(ctx context.Context, text string) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.sent <- text
	return nil
}

func TestHandle_AlertDeliveryDoesNotBlock(t *testing.T) {
	sender := &stalledSender{release: make(chan struct{}), sent: make(chan string, 4)}
	notifier := telegram.NewNotifier(sender, telegram.NotifierConfig{}, nil, nil)
	notifier.Start(context.Background())
	defer notifier.Stop()

	e := newEngine(t, Deps{Alerts: notifier})

	for _, market := range []string{"m1", "m2"} {
		require.NoError(t, handle(t, e, events.OddsUpdate, market, odds(market, clock, 1000)))
		require.NoError(t, handle(t, e, events.OddsUpdate, market, odds(market, clock.Add(time.Minute), 1200)))
		for i := 2; i < 6; i++ {
			require.NoError(t, handle(t, e, events.OddsUpdate, market, odds(market, clock.Add(time.Duration(i)*time.Minute), 1100)))
		}
	}

	for _, market := range []string{"m1", "m2"} {
		start := time.Now()
		require.NoError(t, handle(t, e, events.OddsUpdate, market, odds(market, clock.Add(10*time.Minute), 9000)))
		assert.Less(t, time.Since(start), 500*time.Millisecond, "spike on %s waited for alert delivery", market)
		require.Len(t, e.Anomalies(market), 1)
	}

	close(sender.release)
	select {
	case msg := <-sender.sent:
		assert.Contains(t, msg, "m1")
	case <-time.After(2 * time.Second):
		t.Fatal("alert was never delivered")
	}
}
