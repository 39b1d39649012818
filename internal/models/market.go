package models

import (
	"fmt"
	"time"
)

// OddsQuote is one bookmaker's price for a market at one instant.
type OddsQuote struct {
	Bookmaker string  `json:"bookmaker"`
	Odds      float64 `json:"odds"`
	Volume    float64 `json:"volume"`
	MaxStake  float64 `json:"max_stake"`
}

// OddsSnapshot is the set of quotes for one market at one instant.
type OddsSnapshot struct {
	MarketID  string      `json:"market_id"`
	Timestamp time.Time   `json:"timestamp"`
	Quotes    []OddsQuote `json:"quotes"`
}

// Validate checks snapshot field constraints.
func (s *OddsSnapshot) Validate() error {
	if s.MarketID == "" {
		return &ValidationError{Field: "market_id", Reason: "must not be empty"}
	}
	if len(s.Quotes) == 0 {
		return &ValidationError{Field: "quotes", Reason: "must contain at least one quote"}
	}
	for i, q := range s.Quotes {
		if !finite(q.Odds) || !finite(q.Volume) || !finite(q.MaxStake) {
			return &ValidationError{Field: fmt.Sprintf("quotes[%d]", i), Reason: "odds, volume and max_stake must be finite numbers"}
		}
		if q.Odds <= 0 {
			return &ValidationError{Field: fmt.Sprintf("quotes[%d].odds", i), Reason: "must be positive"}
		}
		if q.Volume < 0 {
			return &ValidationError{Field: fmt.Sprintf("quotes[%d].volume", i), Reason: "must not be negative"}
		}
		if q.MaxStake < 0 {
			return &ValidationError{Field: fmt.Sprintf("quotes[%d].max_stake", i), Reason: "must not be negative"}
		}
	}
	return nil
}

// MarketMetrics holds rolling statistics for one market instance.
type MarketMetrics struct {
	MarketID      string    `json:"market_id"`
	TotalVolume   float64   `json:"total_volume"`
	VolumeHistory []float64 `json:"volume_history"`
	SpreadHistory []float64 `json:"spread_history"`
	Liquidity     float64   `json:"liquidity"`
	Trend         float64   `json:"trend"`
	Volatility    float64   `json:"volatility"`
	Snapshots     int       `json:"snapshots"`
	LastUpdated   time.Time `json:"last_updated"`
}

// MarketEfficiency describes how tightly and deeply a market is priced.
// All fields except MarketDepth are proportions in [0,1].
type MarketEfficiency struct {
	SpreadEfficiency float64 `json:"spread_efficiency"`
	VolumeEfficiency float64 `json:"volume_efficiency"`
	PriceDiscovery   float64 `json:"price_discovery"`
	MarketDepth      float64 `json:"market_depth"`
}

// AnomalyType names the quantity that deviated.
type AnomalyType string

const (
	AnomalyVolume AnomalyType = "volume"
	AnomalySpread AnomalyType = "spread"
)

// Severity is the tier of an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Anomaly is a flagged deviation of a market sample from its rolling baseline.
type Anomaly struct {
	ID         string      `json:"id"`
	MarketID   string      `json:"market_id"`
	Type       AnomalyType `json:"type"`
	Severity   Severity    `json:"severity"`
	Value      float64     `json:"value"`
	Baseline   float64     `json:"baseline"`
	Threshold  float64     `json:"threshold"`
	Deviations float64     `json:"deviations"`
	DetectedAt time.Time   `json:"detected_at"`
}
