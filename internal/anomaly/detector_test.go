package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/betpulse/internal/market"
	"github.com/rewired-gh/betpulse/internal/models"
)

var start = time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

func feed(t *testing.T, e *market.Engine, id string, volumes []float64, spread float64) {
	t.Helper()
	for i, v := range volumes {
		_, err := e.Update(models.OddsSnapshot{
			MarketID:  id,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Quotes: []models.OddsQuote{
				{Bookmaker: "a", Odds: 2.0, Volume: v, MaxStake: 100},
				{Bookmaker: "b", Odds: 2.0 + spread, Volume: 0, MaxStake: 100},
			},
		})
		require.NoError(t, err)
	}
}

func TestDetect_InsufficientHistory(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, DefaultConfig())

	feed(t, e, "m1", []float64{1000}, 0.1)
	assert.Empty(t, d.Detect("m1"))
	assert.NotNil(t, d.Detect("m1"))
	assert.Empty(t, d.Detect("unknown"))
}

func TestDetect_StableMarket(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, DefaultConfig())

	feed(t, e, "m1", []float64{1000, 1010, 990, 1005, 995, 1002}, 0.1)
	assert.Empty(t, d.Detect("m1"))
}

func TestDetect_VolumeSpike(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, DefaultConfig())

	feed(t, e, "m1", []float64{1000, 1000, 1000, 1000, 3000}, 0.1)
	got := d.Detect("m1")
	require.Len(t, got, 1)

	a := got[0]
	assert.Equal(t, models.AnomalyVolume, a.Type)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	assert.Equal(t, 3000.0, a.Value)
	assert.Equal(t, 1000.0, a.Baseline)
	// σ floored at 5% of the mean: threshold = 1000 + 2.5·50
	assert.InDelta(t, 1125.0, a.Threshold, 1e-9)
	assert.Equal(t, "m1", a.MarketID)
	assert.Equal(t, start.Add(4*time.Minute), a.DetectedAt)
}

func TestDetect_SpreadDislocation(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, DefaultConfig())

	feed(t, e, "m1", []float64{100, 100, 100, 100}, 0.10)
	feed(t, e, "m1", []float64{100}, 0.2)

	got := d.Detect("m1")
	require.Len(t, got, 1)
	assert.Equal(t, models.AnomalySpread, got[0].Type)
}

func TestDetect_SeverityTiers(t *testing.T) {
	d := New(nil, Config{Threshold: 2, MinHistory: 2, Window: 10})
	assert.Equal(t, models.SeverityLow, d.severity(2.1))
	assert.Equal(t, models.SeverityMedium, d.severity(3.2))
	assert.Equal(t, models.SeverityHigh, d.severity(4))
}

func TestDetect_DropBelowBaseline(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, DefaultConfig())

	feed(t, e, "m1", []float64{1000, 1000, 1000, 100}, 0.1)
	got := d.Detect("m1")
	require.Len(t, got, 1)
	assert.Less(t, got[0].Threshold, got[0].Baseline, "threshold sits on the side that was crossed")
}

func TestDetect_Deterministic(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, DefaultConfig())

	feed(t, e, "m1", []float64{10, 10, 10, 90}, 0.1)
	first := d.Detect("m1")
	require.NotEmpty(t, first)
	assert.Equal(t, first, d.Detect("m1"))
}

func TestDetect_WindowLimitsBaseline(t *testing.T) {
	e := market.New(market.DefaultConfig())
	d := New(e, Config{Threshold: 2.5, MinHistory: 3, Window: 3, SigmaFloor: 0.05})

	// the early spike falls outside the 3-sample window
	feed(t, e, "m1", []float64{5000, 100, 100, 100, 400}, 0.1)
	got := d.Detect("m1")
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Baseline)
}
