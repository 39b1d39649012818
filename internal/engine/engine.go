// Package engine wires the analytics components together: it applies bus
// events to them and answers read-only queries.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/betpulse/internal/accumulator"
	"github.com/rewired-gh/betpulse/internal/anomaly"
	"github.com/rewired-gh/betpulse/internal/events"
	"github.com/rewired-gh/betpulse/internal/logger"
	"github.com/rewired-gh/betpulse/internal/market"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/retention"
	"github.com/rewired-gh/betpulse/internal/telemetry"
	"github.com/rewired-gh/betpulse/internal/timeseries"
)

// AlertSink receives newly detected anomalies. Notify runs on an ingestion
// worker and must not wait on delivery.
type AlertSink interface {
	Notify(ctx context.Context, anomalies []models.Anomaly) error
}

// Archive persists snapshots and anomalies.
type Archive interface {
	retention.Archive
	AddAnomaly(a models.Anomaly) error
}

type Config struct {
	Breakdown accumulator.BreakdownFilter
	Market    market.Config
	Anomaly   anomaly.Config
	Retention retention.Config
}

// Deps are optional collaborators; any field may be nil.
type Deps struct {
	Archive Archive
	Alerts  AlertSink
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

type Engine struct {
	bets          *accumulator.Accumulator
	markets       *market.Engine
	detector      *anomaly.Detector
	opportunities *timeseries.Series[models.BettingOpportunity]
	assessments   *timeseries.Series[models.RiskAssessment]
	points        *timeseries.Series[models.TimeSeriesData]
	retention     *retention.Manager

	archive Archive
	alerts  AlertSink
	metrics *telemetry.Metrics
	now     func() time.Time
}

// opportunityEdges resolves predicted edges from the opportunity store.
type opportunityEdges struct {
	series *timeseries.Series[models.BettingOpportunity]
}

func (o opportunityEdges) Edge(id string) (float64, bool) {
	opp, ok := o.series.Get(id)
	if !ok {
		return 0, false
	}
	return opp.Edge, true
}

func New(config Config, deps Deps) *Engine {
	e := &Engine{
		opportunities: timeseries.New(
			func(o models.BettingOpportunity) time.Time { return o.Timestamp },
			func(o models.BettingOpportunity) string { return o.ID },
		),
		assessments: timeseries.New(
			func(r models.RiskAssessment) time.Time { return r.Timestamp },
			func(r models.RiskAssessment) string { return r.ID },
		),
		points: timeseries.New(
			func(p models.TimeSeriesData) time.Time { return p.Timestamp },
			nil,
		),
		markets: market.New(config.Market),
		archive: deps.Archive,
		alerts:  deps.Alerts,
		metrics: deps.Metrics,
		now:     deps.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.bets = accumulator.New(opportunityEdges{e.opportunities}, config.Breakdown)
	e.detector = anomaly.New(e.markets, config.Anomaly)

	e.retention = retention.New(config.Retention, e.bets, map[string]retention.Evictor{
		"opportunities":    e.opportunities,
		"risk_assessments": e.assessments,
	}, e.points, e.archive, e.metrics)
	return e
}

// Retention exposes the retention manager for scheduling.
func (e *Engine) Retention() *retention.Manager {
	return e.retention
}

// Handle applies one event. Malformed or out-of-lifecycle events return a
// typed error from models and leave state untouched.
func (e *Engine) Handle(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.BetPlaced:
		var bet models.BetRecord
		if err := ev.Decode(&bet); err != nil {
			return err
		}
		return e.bets.RecordBet(bet)

	case events.BetSettled:
		var s events.Settlement
		if err := ev.Decode(&s); err != nil {
			return err
		}
		settlement := accumulator.Settlement{
			ID:          s.ID,
			Result:      s.Result,
			ProfitLoss:  s.ProfitLoss,
			ClosingOdds: s.ClosingOdds,
			SettledAt:   e.now(),
		}
		if s.SettledAt != nil {
			settlement.SettledAt = *s.SettledAt
		}
		bet, err := e.bets.SettleBet(settlement)
		if err != nil {
			return err
		}
		logger.Debug("Settled bet %s as %s (P&L %.2f)", bet.ID, bet.Result, bet.ProfitLoss)
		return nil

	case events.PredictionUpdate:
		var opp models.BettingOpportunity
		if err := ev.Decode(&opp); err != nil {
			return err
		}
		if err := opp.Validate(); err != nil {
			return err
		}
		if opp.Timestamp.IsZero() {
			opp.Timestamp = e.now()
		}
		e.opportunities.Put(opp)
		return nil

	case events.DataUpdated, events.RiskAssessed:
		var ra models.RiskAssessment
		if err := ev.Decode(&ra); err != nil {
			return err
		}
		if err := ra.Validate(); err != nil {
			return err
		}
		if ra.Timestamp.IsZero() {
			ra.Timestamp = e.now()
		}
		e.assessments.Put(ra)
		return nil

	case events.OddsUpdate:
		var snap models.OddsSnapshot
		if err := ev.Decode(&snap); err != nil {
			return err
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = e.now()
		}
		return e.applyOdds(ctx, snap)
	}
	return &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", ev.Type)}
}

func (e *Engine) applyOdds(ctx context.Context, snap models.OddsSnapshot) error {
	if _, err := e.markets.Update(snap); err != nil {
		return err
	}
	e.metrics.UpdateMarkets(len(e.markets.Markets()))

	found := e.detector.Detect(snap.MarketID)
	if len(found) == 0 {
		return nil
	}
	e.metrics.RecordAnomalies(found)
	for _, a := range found {
		logger.Info("Anomaly on market %s: %s %s (value %.4f, baseline %.4f, %.1fσ)",
			a.MarketID, a.Severity, a.Type, a.Value, a.Baseline, a.Deviations)
		if e.archive != nil {
			if err := e.archive.AddAnomaly(a); err != nil {
				logger.Warn("Failed to archive anomaly %s: %v", a.ID, err)
			}
		}
	}
	if e.alerts != nil {
		if err := e.alerts.Notify(ctx, found); err != nil {
			logger.Warn("Failed to deliver anomaly alert for %s: %v", snap.MarketID, err)
		}
	}
	return nil
}
