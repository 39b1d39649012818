// Package telemetry exposes analytics state as Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rewired-gh/betpulse/internal/models"
)

// Metrics collects betpulse Prometheus metrics on a private registry.
// Recording methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	EventsTotal   *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec

	// Performance
	Bets        *prometheus.GaugeVec
	Stake       *prometheus.GaugeVec
	ProfitLoss  prometheus.Gauge
	ROI         prometheus.Gauge
	WinRate     prometheus.Gauge
	Drawdown    prometheus.Gauge
	Sharpe      prometheus.Gauge
	Kelly       prometheus.Gauge
	CLV         prometheus.Gauge
	Retention   prometheus.Gauge
	CurrentRun  prometheus.Gauge
	Markets     prometheus.Gauge

	// Anomalies and housekeeping
	AnomaliesTotal *prometheus.CounterVec
	EvictedTotal   *prometheus.CounterVec
	AlertsTotal    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betpulse_events_total",
				Help: "Events processed by type and outcome",
			},
			[]string{"type", "status"},
		),
		EventDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betpulse_event_duration_seconds",
				Help:    "Time spent applying one event",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
			},
			[]string{"type"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betpulse_ingest_queue_depth",
				Help: "Events waiting per ingestion shard",
			},
			[]string{"shard"},
		),

		Bets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betpulse_bets",
				Help: "Live bets by result",
			},
			[]string{"result"},
		),
		Stake: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "betpulse_stake",
				Help: "Stake by state (settled or pending)",
			},
			[]string{"state"},
		),
		ProfitLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_profit_loss",
			Help: "Realized profit and loss",
		}),
		ROI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_roi",
			Help: "Return on settled stake",
		}),
		WinRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_win_rate",
			Help: "Share of settled bets won",
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_max_drawdown",
			Help: "Largest peak-to-trough drop of cumulative P&L",
		}),
		Sharpe: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_sharpe_ratio",
			Help: "Mean over population standard deviation of settled P&L",
		}),
		Kelly: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_kelly_multiplier",
			Help: "Kelly stake fraction clamped to [0,1]",
		}),
		CLV: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_clv_average",
			Help: "Mean closing line value",
		}),
		Retention: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_edge_retention",
			Help: "Realized P&L over predicted edge",
		}),
		CurrentRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_current_streak",
			Help: "Signed current streak (positive wins, negative losses)",
		}),
		Markets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "betpulse_markets",
			Help: "Markets with at least one odds snapshot",
		}),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betpulse_anomalies_total",
				Help: "Anomalies detected by type and severity",
			},
			[]string{"type", "severity"},
		),

		EvictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betpulse_evicted_total",
				Help: "Entries removed by retention cleanup",
			},
			[]string{"kind"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betpulse_alerts_total",
				Help: "Alert deliveries by outcome",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.EventsTotal,
		m.EventDuration,
		m.QueueDepth,
		m.Bets,
		m.Stake,
		m.ProfitLoss,
		m.ROI,
		m.WinRate,
		m.Drawdown,
		m.Sharpe,
		m.Kelly,
		m.CLV,
		m.Retention,
		m.CurrentRun,
		m.Markets,
		m.AnomaliesTotal,
		m.EvictedTotal,
		m.AlertsTotal,
	)
	return m
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordEvent records one processed event.
func (m *Metrics) RecordEvent(eventType, status string, durationSec float64) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, status).Inc()
	if durationSec >= 0 {
		m.EventDuration.WithLabelValues(eventType).Observe(durationSec)
	}
}

// SetQueueDepth updates the backlog of one ingestion shard.
func (m *Metrics) SetQueueDepth(shard string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(shard).Set(float64(depth))
}

// UpdatePerformance mirrors a metrics snapshot into the gauges.
func (m *Metrics) UpdatePerformance(p models.PerformanceMetrics) {
	if m == nil {
		return
	}
	m.Bets.WithLabelValues("win").Set(float64(p.WinningBets))
	m.Bets.WithLabelValues("loss").Set(float64(p.LosingBets))
	m.Bets.WithLabelValues("push").Set(float64(p.PushBets))
	m.Bets.WithLabelValues("pending").Set(float64(p.PendingBets))
	m.Stake.WithLabelValues("settled").Set(p.TotalStake)
	m.Stake.WithLabelValues("pending").Set(p.PendingStake)
	m.ProfitLoss.Set(p.ProfitLoss)
	m.ROI.Set(p.ROI)
	m.WinRate.Set(p.WinRate)
	m.Drawdown.Set(p.MaxDrawdown)
	m.Sharpe.Set(p.SharpeRatio)
	m.Kelly.Set(p.KellyMultiplier)
	m.CLV.Set(p.CLVAverage)
	m.Retention.Set(p.EdgeRetention)
	m.CurrentRun.Set(float64(p.CurrentStreak))
}

// UpdateMarkets sets the tracked market count.
func (m *Metrics) UpdateMarkets(count int) {
	if m == nil {
		return
	}
	m.Markets.Set(float64(count))
}

// RecordAnomalies counts detected anomalies.
func (m *Metrics) RecordAnomalies(anomalies []models.Anomaly) {
	if m == nil {
		return
	}
	for _, a := range anomalies {
		m.AnomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
}

// RecordEviction counts entries removed by retention.
func (m *Metrics) RecordEviction(kind string, n int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.EvictedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordAlert counts one alert delivery attempt.
func (m *Metrics) RecordAlert(status string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(status).Inc()
}
