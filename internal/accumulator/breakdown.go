package accumulator

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/stats"
)

// BreakdownFilter drops thin groups from breakdowns.
type BreakdownFilter struct {
	MinBets       int
	MinStake      float64
	MinConfidence float64 // percent; bets below it are left out of the confidence breakdown
}

// ConfidenceBucket labels a percent confidence with its 10-wide bucket, e.g. "70-79".
// 100 falls into "90-100".
func ConfidenceBucket(confidence float64) string {
	lo := int(math.Floor(confidence/10)) * 10
	lo = max(0, min(lo, 90))
	if lo == 90 {
		return "90-100"
	}
	return fmt.Sprintf("%d-%d", lo, lo+9)
}

type group struct {
	entry   models.BreakdownEntry
	oddsSum float64
}

func (g *group) add(b models.BetRecord) {
	g.entry.Bets++
	g.entry.Stake += b.Stake
	g.oddsSum += b.Odds
	switch b.Result {
	case models.ResultWin:
		g.entry.Wins++
	case models.ResultLoss:
		g.entry.Losses++
	case models.ResultPush:
		g.entry.Pushes++
	}
	g.entry.ProfitLoss += b.ProfitLoss
}

func (g *group) finish() models.BreakdownEntry {
	e := g.entry
	e.ROI = stats.SafeDiv(e.ProfitLoss, e.Stake, 0)
	e.WinRate = stats.SafeDiv(float64(e.Wins), float64(e.Bets), 0)
	e.AverageOdds = stats.SafeDiv(g.oddsSum, float64(e.Bets), 0)
	return e
}

// groupBy aggregates settled bets by key; an empty key drops the bet.
func groupBy(bets []models.BetRecord, f BreakdownFilter, key func(models.BetRecord) string) []models.BreakdownEntry {
	groups := make(map[string]*group)
	for _, b := range bets {
		if !b.IsSettled() {
			continue
		}
		k := key(b)
		if k == "" {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = &group{entry: models.BreakdownEntry{Key: k}}
			groups[k] = g
		}
		g.add(b)
	}

	out := make([]models.BreakdownEntry, 0, len(groups))
	for _, g := range groups {
		e := g.finish()
		if e.Bets < f.MinBets || e.Stake < f.MinStake {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Breakdown groups settled bets by confidence bucket, sport and market type.
// Bets without confidence data are left out of the confidence grouping only.
func Breakdown(bets []models.BetRecord, f BreakdownFilter) models.MetricBreakdown {
	return models.MetricBreakdown{
		ByConfidence: groupBy(bets, f, func(b models.BetRecord) string {
			c := b.Metadata.Confidence
			if c == nil || *c < f.MinConfidence {
				return ""
			}
			return ConfidenceBucket(*c)
		}),
		BySport: groupBy(bets, f, func(b models.BetRecord) string {
			return b.Metadata.Sport
		}),
		ByMarketType: groupBy(bets, f, func(b models.BetRecord) string {
			return b.Metadata.MarketType
		}),
	}
}

// PlayerBreakdown groups settled bets by player.
func PlayerBreakdown(bets []models.BetRecord, f BreakdownFilter) []models.BreakdownEntry {
	return groupBy(bets, f, func(b models.BetRecord) string {
		return b.Metadata.Player
	})
}

// MetricBreakdown applies the configured filters to the current bet set.
func (a *Accumulator) MetricBreakdown() models.MetricBreakdown {
	return Breakdown(a.Bets(nil), a.filters)
}

// PlayerBreakdown applies the configured filters to the current bet set.
func (a *Accumulator) PlayerBreakdown() []models.BreakdownEntry {
	return PlayerBreakdown(a.Bets(nil), a.filters)
}
