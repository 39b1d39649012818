// Package models defines the core domain entities: bets, opportunities, market
// snapshots, derived metrics and anomalies.
package models

import (
	"math"
	"time"
)

// BetResult is the settlement state of a bet.
type BetResult string

const (
	ResultPending BetResult = "PENDING"
	ResultWin     BetResult = "WIN"
	ResultLoss    BetResult = "LOSS"
	ResultPush    BetResult = "PUSH"
)

// IsTerminal reports whether the result can no longer change.
func (r BetResult) IsTerminal() bool {
	return r == ResultWin || r == ResultLoss || r == ResultPush
}

// Valid reports whether r is one of the known results.
func (r BetResult) Valid() bool {
	return r == ResultPending || r.IsTerminal()
}

// BetMetadata carries optional data attached to a bet.
// Pointers distinguish "absent" from zero.
type BetMetadata struct {
	ClosingOdds *float64   `json:"closing_odds,omitempty"`
	CLV         *float64   `json:"clv,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"` // model confidence, percent [0,100]
	Player      string     `json:"player,omitempty"`
	Sport       string     `json:"sport,omitempty"`
	MarketType  string     `json:"market_type,omitempty"`
	Bookmaker   string     `json:"bookmaker,omitempty"`
}

// BetRecord is a single wager. Core fields are immutable once placed;
// Result, ProfitLoss and Metadata change exactly once on settlement.
type BetRecord struct {
	ID            string      `json:"id"`
	OpportunityID string      `json:"opportunity_id,omitempty"`
	MarketID      string      `json:"market_id,omitempty"`
	Stake         float64     `json:"stake"`
	Odds          float64     `json:"odds"`
	Result        BetResult   `json:"result"`
	ProfitLoss    float64     `json:"profit_loss"`
	PlacedAt      time.Time   `json:"placed_at"`
	Metadata      BetMetadata `json:"metadata"`
}

// Validate checks bet field constraints.
func (b *BetRecord) Validate() error {
	if b.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if !finite(b.Stake) {
		return &ValidationError{Field: "stake", Reason: "must be a finite number"}
	}
	if b.Stake < 0 {
		return &ValidationError{Field: "stake", Reason: "must not be negative"}
	}
	if !finite(b.Odds) {
		return &ValidationError{Field: "odds", Reason: "must be a finite number"}
	}
	if !finite(b.ProfitLoss) {
		return &ValidationError{Field: "profit_loss", Reason: "must be a finite number"}
	}
	if b.Result != "" && !b.Result.Valid() {
		return &ValidationError{Field: "result", Reason: "unknown result " + string(b.Result)}
	}
	if c := b.Metadata.ClosingOdds; c != nil && (!finite(*c) || *c <= 0) {
		return &ValidationError{Field: "metadata.closing_odds", Reason: "must be a positive finite number"}
	}
	if c := b.Metadata.CLV; c != nil && !finite(*c) {
		return &ValidationError{Field: "metadata.clv", Reason: "must be a finite number"}
	}
	if c := b.Metadata.Confidence; c != nil && !(*c >= 0 && *c <= 100) {
		return &ValidationError{Field: "metadata.confidence", Reason: "must be between 0 and 100"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsSettled reports whether the bet has a terminal result.
func (b *BetRecord) IsSettled() bool {
	return b.Result.IsTerminal()
}

// SettledTime returns the settlement time if known, otherwise the placement time.
func (b *BetRecord) SettledTime() time.Time {
	if b.Metadata.SettledAt != nil {
		return *b.Metadata.SettledAt
	}
	return b.PlacedAt
}

// Clone returns a deep copy so callers cannot mutate stored metadata pointers.
func (b BetRecord) Clone() BetRecord {
	out := b
	out.Metadata.ClosingOdds = cloneFloat(b.Metadata.ClosingOdds)
	out.Metadata.CLV = cloneFloat(b.Metadata.CLV)
	out.Metadata.Confidence = cloneFloat(b.Metadata.Confidence)
	if b.Metadata.SettledAt != nil {
		t := *b.Metadata.SettledAt
		out.Metadata.SettledAt = &t
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// BettingOpportunity is a candidate position produced by a prediction signal.
type BettingOpportunity struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Edge      float64   `json:"edge"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks opportunity field constraints.
func (o *BettingOpportunity) Validate() error {
	if o.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	return nil
}

// RiskAssessment is a point-in-time risk evaluation tied to an opportunity.
type RiskAssessment struct {
	ID            string             `json:"id"`
	OpportunityID string             `json:"opportunity_id,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	RiskLevel     string             `json:"risk_level,omitempty"`
	Score         float64            `json:"score"`
	Factors       map[string]float64 `json:"factors,omitempty"`
}

// Validate checks assessment field constraints.
func (r *RiskAssessment) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	return nil
}

// TimeRange is an inclusive [Start, End] window on placement time.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
