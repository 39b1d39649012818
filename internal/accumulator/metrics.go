package accumulator

import (
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/risk"
	"github.com/rewired-gh/betpulse/internal/stats"
)

// Totals are the order-independent sums behind PerformanceMetrics. They are
// kept in decimal so adding and removing a bet restores the exact prior state.
type Totals struct {
	Bets     int
	Wins     int
	Losses   int
	Pushes   int
	Pending  int
	AllStake decimal.Decimal
	OddsSum  decimal.Decimal
	Settled  decimal.Decimal // stake of settled bets
	Open     decimal.Decimal // stake of pending bets
	PL       decimal.Decimal
}

func (t *Totals) apply(b models.BetRecord, sign int) {
	stake := decimal.NewFromFloat(b.Stake)
	odds := decimal.NewFromFloat(b.Odds)
	if sign < 0 {
		stake = stake.Neg()
		odds = odds.Neg()
	}

	t.Bets += sign
	t.AllStake = t.AllStake.Add(stake)
	t.OddsSum = t.OddsSum.Add(odds)

	switch b.Result {
	case models.ResultWin:
		t.Wins += sign
	case models.ResultLoss:
		t.Losses += sign
	case models.ResultPush:
		t.Pushes += sign
	default:
		t.Pending += sign
		t.Open = t.Open.Add(stake)
		return
	}

	pl := decimal.NewFromFloat(b.ProfitLoss)
	if sign < 0 {
		pl = pl.Neg()
	}
	t.Settled = t.Settled.Add(stake)
	t.PL = t.PL.Add(pl)
}

func (t *Totals) add(b models.BetRecord)    { t.apply(b, 1) }
func (t *Totals) remove(b models.BetRecord) { t.apply(b, -1) }

// SettledCount is the number of bets with a terminal result.
func (t Totals) SettledCount() int {
	return t.Wins + t.Losses + t.Pushes
}

// Fill writes the total-derived fields of m.
func (t Totals) Fill(m *models.PerformanceMetrics) {
	m.TotalBets = t.Bets
	m.WinningBets = t.Wins
	m.LosingBets = t.Losses
	m.PushBets = t.Pushes
	m.PendingBets = t.Pending

	settled := t.Settled.InexactFloat64()
	pl := t.PL.InexactFloat64()

	m.TotalStake = settled
	m.PendingStake = t.Open.InexactFloat64()
	m.ProfitLoss = pl
	m.TotalReturn = t.Settled.Add(t.PL).InexactFloat64()
	m.ROI = stats.SafeDiv(pl, settled, 0)
	m.WinRate = stats.SafeDiv(float64(t.Wins), float64(t.SettledCount()), 0)
	m.AverageOdds = stats.SafeDiv(t.OddsSum.InexactFloat64(), float64(t.Bets), 0)
	m.AverageStake = stats.SafeDiv(t.AllStake.InexactFloat64(), float64(t.Bets), 0)
}

// Compute derives PerformanceMetrics from bets ordered by placement time.
func Compute(bets []models.BetRecord, edges risk.EdgeSource) models.PerformanceMetrics {
	var t Totals
	for _, b := range bets {
		t.add(b)
	}

	var m models.PerformanceMetrics
	t.Fill(&m)

	m.MaxDrawdown = risk.MaxDrawdown(bets)
	m.SharpeRatio = risk.SharpeRatio(bets)
	m.KellyMultiplier = risk.KellyMultiplier(m.WinRate, m.AverageOdds)
	m.CLVAverage = risk.CLVAverage(bets)
	m.EdgeRetention = risk.EdgeRetention(bets, edges)
	m.TimeInMarket = risk.TimeInMarket(bets)

	m.LongestWinStreak, m.LongestLossStreak, m.CurrentStreak = Streaks(bets)
	return m
}

// Streaks scans bets in the given order. Pending bets and pushes neither
// extend nor break a streak. current is positive for wins, negative for losses.
func Streaks(bets []models.BetRecord) (longestWin, longestLoss, current int) {
	for _, b := range bets {
		switch b.Result {
		case models.ResultWin:
			if current > 0 {
				current++
			} else {
				current = 1
			}
			longestWin = max(longestWin, current)
		case models.ResultLoss:
			if current < 0 {
				current--
			} else {
				current = -1
			}
			longestLoss = max(longestLoss, -current)
		}
	}
	return longestWin, longestLoss, current
}
