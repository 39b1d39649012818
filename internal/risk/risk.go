// Package risk derives risk-adjusted performance ratios from a bet set.
//
// Every function is pure and total: empty or degenerate input yields 0
// instead of an error, so callers always get a renderable number.
package risk

import (
	"math"
	"sort"

	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/stats"
)

// EdgeSource resolves the predicted edge of an opportunity.
type EdgeSource interface {
	Edge(opportunityID string) (float64, bool)
}

// EdgeMap is an in-memory EdgeSource.
type EdgeMap map[string]float64

func (m EdgeMap) Edge(id string) (float64, bool) {
	e, ok := m[id]
	return e, ok
}

// settledInOrder returns settled bets ordered by settlement time; input order breaks ties.
func settledInOrder(bets []models.BetRecord) []models.BetRecord {
	out := make([]models.BetRecord, 0, len(bets))
	for _, b := range bets {
		if b.IsSettled() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SettledTime().Before(out[j].SettledTime())
	})
	return out
}

// MaxDrawdown is the largest drop of cumulative profit/loss below its running peak.
// The peak starts at zero, so an initial losing run counts as drawdown.
func MaxDrawdown(bets []models.BetRecord) float64 {
	var cum, peak, maxDD float64
	for _, b := range settledInOrder(bets) {
		cum += b.ProfitLoss
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return stats.Finite(maxDD, 0)
}

// SharpeRatio is mean per-bet profit/loss over its population standard deviation.
func SharpeRatio(bets []models.BetRecord) float64 {
	var w stats.Welford
	for _, b := range bets {
		if b.IsSettled() {
			w.Add(b.ProfitLoss)
		}
	}
	if w.Count < 2 {
		return 0
	}
	return stats.SafeDiv(w.Mean, w.StdDev(), 0)
}

// KellyMultiplier is f = (b·p - q) / b with b = averageOdds-1, clamped to [0,1].
func KellyMultiplier(winRate, averageOdds float64) float64 {
	if math.IsNaN(winRate) || math.IsNaN(averageOdds) || winRate <= 0 || averageOdds <= 1 {
		return 0
	}
	p := math.Min(winRate, 1)
	q := 1 - p
	b := averageOdds - 1
	return stats.Clamp01(stats.SafeDiv(b*p-q, b, 0))
}

// EdgeRetention is realized profit/loss over the summed predicted edge of the
// opportunities the settled bets reference. Bets without a resolvable
// opportunity are skipped.
func EdgeRetention(bets []models.BetRecord, edges EdgeSource) float64 {
	if edges == nil {
		return 0
	}
	var realized, predicted float64
	for _, b := range bets {
		if !b.IsSettled() || b.OpportunityID == "" {
			continue
		}
		edge, ok := edges.Edge(b.OpportunityID)
		if !ok {
			continue
		}
		realized += b.ProfitLoss
		predicted += edge
	}
	return stats.SafeDiv(realized, predicted, 0)
}

// CLVAverage averages closing line value over bets that carry one.
func CLVAverage(bets []models.BetRecord) float64 {
	var sum float64
	var n int
	for _, b := range bets {
		if b.Metadata.CLV == nil {
			continue
		}
		sum += *b.Metadata.CLV
		n++
	}
	return stats.SafeDiv(sum, float64(n), 0)
}

// TimeInMarket is the mean hours between placement and settlement.
func TimeInMarket(bets []models.BetRecord) float64 {
	var hours float64
	var n int
	for _, b := range bets {
		if !b.IsSettled() || b.Metadata.SettledAt == nil {
			continue
		}
		d := b.Metadata.SettledAt.Sub(b.PlacedAt)
		if d < 0 {
			continue
		}
		hours += d.Hours()
		n++
	}
	return stats.SafeDiv(hours, float64(n), 0)
}

// CLV is the relative move from placed odds to closing odds.
func CLV(placedOdds, closingOdds float64) float64 {
	return stats.SafeDiv(closingOdds-placedOdds, placedOdds, 0)
}
