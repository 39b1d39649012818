// Package events defines the event envelope consumed by the analytics core and
// the sources that deliver it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/betpulse/internal/models"
)

// Type names an event kind on the bus.
type Type string

const (
	BetPlaced        Type = "bet:placed"
	BetSettled       Type = "bet:settled"
	PredictionUpdate Type = "prediction:update"
	DataUpdated      Type = "data:updated"
	RiskAssessed     Type = "risk:assessed"
	OddsUpdate       Type = "odds:update"
)

// Known reports whether t is an event type the core handles.
func (t Type) Known() bool {
	switch t {
	case BetPlaced, BetSettled, PredictionUpdate, DataUpdated, RiskAssessed, OddsUpdate:
		return true
	}
	return false
}

// Event is one message from the bus. Key identifies the entity the event
// applies to (bet id, opportunity id, assessment id or market id); events
// sharing a key are applied in arrival order.
type Event struct {
	ID   string          `json:"id"`
	Type Type            `json:"type"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`

	ack func(context.Context) error
}

// New builds an event with a fresh id and a JSON-encoded payload.
func New(typ Type, key string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Event{ID: uuid.NewString(), Type: typ, Key: key, Data: data}, nil
}

// Ack confirms delivery to the source, if the source requires it.
func (e Event) Ack(ctx context.Context) error {
	if e.ack == nil {
		return nil
	}
	return e.ack(ctx)
}

// RoutingKey returns Key, falling back to the id or market_id field of the payload.
func (e Event) RoutingKey() string {
	if e.Key != "" {
		return e.Key
	}
	var head struct {
		ID       string `json:"id"`
		MarketID string `json:"market_id"`
	}
	if err := json.Unmarshal(e.Data, &head); err != nil {
		return ""
	}
	if e.Type == OddsUpdate && head.MarketID != "" {
		return head.MarketID
	}
	if head.ID != "" {
		return head.ID
	}
	return head.MarketID
}

// Settlement is the bet:settled payload.
type Settlement struct {
	ID          string           `json:"id"`
	Result      models.BetResult `json:"result"`
	ProfitLoss  float64          `json:"profit_loss"`
	ClosingOdds *float64         `json:"closing_odds,omitempty"`
	SettledAt   *time.Time       `json:"settled_at,omitempty"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return &models.ValidationError{Field: "data", Reason: "must not be empty"}
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return &models.ValidationError{Field: "data", Reason: fmt.Sprintf("malformed %s payload: %v", e.Type, err)}
	}
	return nil
}

// Source delivers events until ctx is cancelled or the source is exhausted.
// Both channels are closed when delivery stops.
type Source interface {
	Consume(ctx context.Context) (<-chan Event, <-chan error)
}
