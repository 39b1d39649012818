package engine

import (
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/timeseries"
)

// Metrics returns the performance metrics over every live bet, or over the
// bets placed inside tr when it is non-nil.
func (e *Engine) Metrics(tr *models.TimeRange) models.PerformanceMetrics {
	return e.bets.ComputeMetrics(tr)
}

func (e *Engine) MetricBreakdown() models.MetricBreakdown {
	return e.bets.MetricBreakdown()
}

func (e *Engine) PlayerBreakdown() []models.BreakdownEntry {
	return e.bets.PlayerBreakdown()
}

// TimeSeries returns the recorded snapshots, keeping the latest point of each
// interval bucket. interval is one of 1h, 1d, 7d, 30d.
func (e *Engine) TimeSeries(interval string) ([]models.TimeSeriesData, error) {
	d, err := timeseries.ParseInterval(interval)
	if err != nil {
		return nil, &models.ValidationError{Field: "interval", Reason: err.Error()}
	}
	return timeseries.Downsample(e.points.All(), d), nil
}

func (e *Engine) MarketMetrics(marketID string) (models.MarketMetrics, bool) {
	return e.markets.Get(marketID)
}

func (e *Engine) MarketEfficiency(marketID string) (models.MarketEfficiency, bool) {
	return e.markets.Efficiency(marketID)
}

// Anomalies evaluates the latest sample of a market against its baseline.
func (e *Engine) Anomalies(marketID string) []models.Anomaly {
	return e.detector.Detect(marketID)
}

func (e *Engine) Markets() []string {
	return e.markets.Markets()
}

func (e *Engine) Bet(id string) (models.BetRecord, bool) {
	return e.bets.Get(id)
}

func (e *Engine) Opportunity(id string) (models.BettingOpportunity, bool) {
	return e.opportunities.Get(id)
}

// RiskAssessments returns the live assessments, oldest first.
func (e *Engine) RiskAssessments() []models.RiskAssessment {
	return e.assessments.All()
}
