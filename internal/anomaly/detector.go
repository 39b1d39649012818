// Package anomaly flags market samples that deviate from their rolling baseline.
package anomaly

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/stats"
)

// namespace seeds deterministic anomaly ids.
var namespace = uuid.MustParse("6f1c2b8e-3d4a-5e6f-8a9b-0c1d2e3f4a5b")

type Config struct {
	Threshold  float64 // k: deviations from the baseline mean before a sample is flagged
	MinHistory int     // samples required, latest included
	Window     int     // baseline samples preceding the latest
	SigmaFloor float64 // σ is at least SigmaFloor·|mean|
}

func DefaultConfig() Config {
	return Config{
		Threshold:  2.5,
		MinHistory: 3,
		Window:     20,
		SigmaFloor: 0.05,
	}
}

// Source exposes the rolling market history the detector reads.
type Source interface {
	Get(marketID string) (models.MarketMetrics, bool)
}

type Detector struct {
	source Source
	config Config
}

func New(source Source, config Config) *Detector {
	def := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.MinHistory < 2 {
		config.MinHistory = 2
	}
	if config.Window < 1 {
		config.Window = def.Window
	}
	if config.SigmaFloor < 0 {
		config.SigmaFloor = 0
	}
	return &Detector{source: source, config: config}
}

// Detect compares the latest volume and spread samples of a market with the
// preceding window. It reads only; repeated calls without new snapshots
// return identical anomalies.
func (d *Detector) Detect(marketID string) []models.Anomaly {
	out := []models.Anomaly{}
	m, ok := d.source.Get(marketID)
	if !ok {
		return out
	}
	if a, ok := d.check(m, models.AnomalyVolume, m.VolumeHistory); ok {
		out = append(out, a)
	}
	if a, ok := d.check(m, models.AnomalySpread, m.SpreadHistory); ok {
		out = append(out, a)
	}
	return out
}

func (d *Detector) check(m models.MarketMetrics, typ models.AnomalyType, series []float64) (models.Anomaly, bool) {
	n := len(series)
	if n < d.config.MinHistory {
		return models.Anomaly{}, false
	}
	latest := series[n-1]
	baseline := series[max(0, n-1-d.config.Window) : n-1]

	var w stats.Welford
	for _, v := range baseline {
		w.Add(v)
	}
	sigma := w.Sigma(d.config.SigmaFloor * math.Abs(w.Mean))
	if sigma <= stats.Epsilon {
		return models.Anomaly{}, false
	}

	deviation := latest - w.Mean
	z := math.Abs(deviation) / sigma
	if z < d.config.Threshold {
		return models.Anomaly{}, false
	}

	threshold := w.Mean + math.Copysign(d.config.Threshold*sigma, deviation)
	return models.Anomaly{
		ID:         anomalyID(m.MarketID, typ, m),
		MarketID:   m.MarketID,
		Type:       typ,
		Severity:   d.severity(z),
		Value:      latest,
		Baseline:   w.Mean,
		Threshold:  threshold,
		Deviations: z,
		DetectedAt: m.LastUpdated,
	}, true
}

func (d *Detector) severity(z float64) models.Severity {
	k := d.config.Threshold
	switch {
	case z >= 2*k:
		return models.SeverityHigh
	case z >= 1.5*k:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// anomalyID is stable for a given market, type and snapshot.
func anomalyID(marketID string, typ models.AnomalyType, m models.MarketMetrics) string {
	key := fmt.Sprintf("%s|%s|%d|%d", marketID, typ, m.Snapshots, m.LastUpdated.UnixNano())
	return uuid.NewSHA1(namespace, []byte(key)).String()
}
