// Package market maintains rolling per-market statistics from successive
// odds snapshots.
package market

import (
	"math"
	"sort"
	"sync"

	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/stats"
)

// DefaultLiquidityCap is the liquidity reported when every bookmaker quotes
// the same price.
const DefaultLiquidityCap = 1e9

type Config struct {
	MaxHistory   int
	LiquidityCap float64
}

func DefaultConfig() Config {
	return Config{
		MaxHistory:   100,
		LiquidityCap: DefaultLiquidityCap,
	}
}

type state struct {
	metrics models.MarketMetrics
	odds    []float64
	spread  float64
	depth   float64
}

// Engine is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	markets map[string]*state
	config  Config
}

func New(config Config) *Engine {
	switch {
	case config.MaxHistory <= 0:
		config.MaxHistory = DefaultConfig().MaxHistory
	case config.MaxHistory < 2:
		config.MaxHistory = 2
	}
	if config.LiquidityCap <= 0 {
		config.LiquidityCap = DefaultLiquidityCap
	}
	return &Engine{
		markets: make(map[string]*state),
		config:  config,
	}
}

// Update folds one odds snapshot into the market's rolling statistics.
func (e *Engine) Update(snap models.OddsSnapshot) (models.MarketMetrics, error) {
	if err := snap.Validate(); err != nil {
		return models.MarketMetrics{}, err
	}

	var volume, depth float64
	lo, hi := math.Inf(1), math.Inf(-1)
	odds := make([]float64, len(snap.Quotes))
	for i, q := range snap.Quotes {
		volume += q.Volume
		depth += q.MaxStake
		lo = math.Min(lo, q.Odds)
		hi = math.Max(hi, q.Odds)
		odds[i] = q.Odds
	}
	spread := hi - lo

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.markets[snap.MarketID]
	if !ok {
		s = &state{metrics: models.MarketMetrics{MarketID: snap.MarketID}}
		e.markets[snap.MarketID] = s
	}
	m := &s.metrics

	if n := len(m.VolumeHistory); n > 0 {
		m.Trend = volume - m.VolumeHistory[n-1]
	} else {
		m.Trend = 0
	}

	m.TotalVolume += volume
	m.VolumeHistory = appendBounded(m.VolumeHistory, volume, e.config.MaxHistory)
	m.SpreadHistory = appendBounded(m.SpreadHistory, spread, e.config.MaxHistory)
	m.Volatility = stats.StdDev(stats.Deltas(m.VolumeHistory))
	m.Liquidity = Liquidity(depth, spread, e.config.LiquidityCap)
	m.Snapshots++
	m.LastUpdated = snap.Timestamp

	s.odds = odds
	s.spread = spread
	s.depth = depth

	return cloneMetrics(*m), nil
}

// Get returns a copy of the market's metrics.
func (e *Engine) Get(marketID string) (models.MarketMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.markets[marketID]
	if !ok {
		return models.MarketMetrics{}, false
	}
	return cloneMetrics(s.metrics), true
}

// Efficiency reports how tightly the latest snapshot is priced.
func (e *Engine) Efficiency(marketID string) (models.MarketEfficiency, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.markets[marketID]
	if !ok || len(s.odds) == 0 {
		return models.MarketEfficiency{}, false
	}

	hi, lo := s.odds[0], s.odds[0]
	for _, o := range s.odds {
		hi = math.Max(hi, o)
		lo = math.Min(lo, o)
	}
	mid := (hi + lo) / 2

	var peak float64
	for _, v := range s.metrics.VolumeHistory {
		peak = math.Max(peak, v)
	}
	current := s.metrics.VolumeHistory[len(s.metrics.VolumeHistory)-1]

	return models.MarketEfficiency{
		SpreadEfficiency: stats.Clamp01(1 - stats.SafeDiv(s.spread, mid, 1)),
		VolumeEfficiency: stats.Clamp01(stats.SafeDiv(current, peak, 0)),
		PriceDiscovery:   stats.Clamp01(1 - stats.SafeDiv(stats.StdDev(s.odds), stats.Mean(s.odds), 1)),
		MarketDepth:      math.Max(s.depth, 0),
	}, true
}

// History returns copies of the volume and spread samples, oldest first.
func (e *Engine) History(marketID string) (volumes, spreads []float64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.markets[marketID]
	if !ok {
		return nil, nil, false
	}
	m := cloneMetrics(s.metrics)
	return m.VolumeHistory, m.SpreadHistory, true
}

// Markets returns the tracked market ids in sorted order.
func (e *Engine) Markets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.markets))
	for id := range e.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Liquidity is stake capacity over spread. A zero spread reports cap, and
// the result never exceeds cap or drops below zero.
func Liquidity(totalStake, spread, cap float64) float64 {
	if totalStake <= 0 {
		return 0
	}
	if spread <= stats.Epsilon {
		return cap
	}
	return stats.Clamp(totalStake/spread, 0, cap)
}

func appendBounded(xs []float64, v float64, limit int) []float64 {
	xs = append(xs, v)
	if over := len(xs) - limit; over > 0 {
		xs = append(xs[:0], xs[over:]...)
	}
	return xs
}

func cloneMetrics(m models.MarketMetrics) models.MarketMetrics {
	m.VolumeHistory = append([]float64(nil), m.VolumeHistory...)
	m.SpreadHistory = append([]float64(nil), m.SpreadHistory...)
	return m
}
