// Package report renders the analytics state as console tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rewired-gh/betpulse/internal/models"
)

// Source is the subset of the engine a report reads.
type Source interface {
	Metrics(tr *models.TimeRange) models.PerformanceMetrics
	MetricBreakdown() models.MetricBreakdown
	PlayerBreakdown() []models.BreakdownEntry
	TimeSeries(interval string) ([]models.TimeSeriesData, error)
	Markets() []string
	MarketMetrics(marketID string) (models.MarketMetrics, bool)
}

// Console writes reports to out.
type Console struct {
	out      io.Writer
	interval string
	points   int
}

// NewConsole creates a report writer that shows the last points snapshots
// downsampled to interval.
func NewConsole(out io.Writer, interval string, points int) *Console {
	return &Console{out: out, interval: interval, points: points}
}

// Print writes the full report generated at now.
func (c *Console) Print(src Source, now time.Time) error {
	m := src.Metrics(nil)

	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  BETPULSE PERFORMANCE REPORT\n")
	fmt.Fprintf(c.out, "  generated %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(c.out, "========================================================\n\n")

	c.printSummary(m)

	b := src.MetricBreakdown()
	c.printBreakdown("BY CONFIDENCE", b.ByConfidence)
	c.printBreakdown("BY SPORT", b.BySport)
	c.printBreakdown("BY MARKET TYPE", b.ByMarketType)
	c.printBreakdown("BY PLAYER", src.PlayerBreakdown())

	points, err := src.TimeSeries(c.interval)
	if err != nil {
		return err
	}
	c.printTimeSeries(points)
	c.printMarkets(src)
	return nil
}

func (c *Console) printSummary(m models.PerformanceMetrics) {
	fmt.Fprintf(c.out, "  --- SUMMARY ---\n")
	fmt.Fprintf(c.out, "  Bets:            %d (W:%d L:%d P:%d open:%d)\n",
		m.TotalBets, m.WinningBets, m.LosingBets, m.PushBets, m.PendingBets)
	fmt.Fprintf(c.out, "  Settled stake:   $%.2f (open $%.2f)\n", m.TotalStake, m.PendingStake)
	fmt.Fprintf(c.out, "  Profit/loss:     $%.2f\n", m.ProfitLoss)
	fmt.Fprintf(c.out, "  ROI:             %.2f%%\n", m.ROI*100)
	fmt.Fprintf(c.out, "  Win rate:        %.2f%%\n", m.WinRate*100)
	fmt.Fprintf(c.out, "  Max drawdown:    $%.2f\n", m.MaxDrawdown)
	fmt.Fprintf(c.out, "  Sharpe:          %.3f\n", m.SharpeRatio)
	fmt.Fprintf(c.out, "  Kelly mult:      %.3f\n", m.KellyMultiplier)
	fmt.Fprintf(c.out, "  Avg CLV:         %.2f%%\n", m.CLVAverage*100)
	fmt.Fprintf(c.out, "  Edge retention:  %.2f\n", m.EdgeRetention)
	fmt.Fprintf(c.out, "  Streaks:         best W%d worst L%d current %+d\n",
		m.LongestWinStreak, m.LongestLossStreak, m.CurrentStreak)
	fmt.Fprintln(c.out)
}

func (c *Console) printBreakdown(title string, entries []models.BreakdownEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(c.out, "  --- %s ---\n", title)

	table := tablewriter.NewWriter(c.out)
	table.Header("Key", "Bets", "W", "L", "P", "Stake", "P/L", "ROI", "Win%", "Avg odds")
	for _, e := range entries {
		table.Append(
			e.Key,
			fmt.Sprintf("%d", e.Bets),
			fmt.Sprintf("%d", e.Wins),
			fmt.Sprintf("%d", e.Losses),
			fmt.Sprintf("%d", e.Pushes),
			fmt.Sprintf("$%.2f", e.Stake),
			fmt.Sprintf("$%.2f", e.ProfitLoss),
			fmt.Sprintf("%.1f%%", e.ROI*100),
			fmt.Sprintf("%.1f%%", e.WinRate*100),
			fmt.Sprintf("%.2f", e.AverageOdds),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

func (c *Console) printTimeSeries(points []models.TimeSeriesData) {
	if len(points) == 0 {
		return
	}
	if c.points > 0 && len(points) > c.points {
		points = points[len(points)-c.points:]
	}
	fmt.Fprintf(c.out, "  --- HISTORY (%s) ---\n", c.interval)

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Bets", "Stake", "P/L", "ROI", "Win%", "CLV")
	for _, p := range points {
		table.Append(
			p.Timestamp.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", p.Bets),
			fmt.Sprintf("$%.2f", p.Stake),
			fmt.Sprintf("$%.2f", p.ProfitLoss),
			fmt.Sprintf("%.1f%%", p.ROI*100),
			fmt.Sprintf("%.1f%%", p.WinRate*100),
			fmt.Sprintf("%.2f%%", p.CLV*100),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

func (c *Console) printMarkets(src Source) {
	ids := src.Markets()
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(c.out, "  --- MARKETS ---\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Snapshots", "Volume", "Liquidity", "Trend", "Volatility", "Updated")
	for _, id := range ids {
		mm, ok := src.MarketMetrics(id)
		if !ok {
			continue
		}
		table.Append(
			id,
			fmt.Sprintf("%d", mm.Snapshots),
			fmt.Sprintf("%.0f", mm.TotalVolume),
			fmt.Sprintf("%.0f", mm.Liquidity),
			fmt.Sprintf("%+.3f", mm.Trend),
			fmt.Sprintf("%.1f", mm.Volatility),
			mm.LastUpdated.UTC().Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}
