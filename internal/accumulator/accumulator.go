// Package accumulator holds the authoritative bet set and derives
// PerformanceMetrics from it.
package accumulator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/risk"
)

type entry struct {
	bet models.BetRecord
	seq uint64
}

// less orders by placement time, insertion order on ties.
func (e *entry) less(o *entry) bool {
	if !e.bet.PlacedAt.Equal(o.bet.PlacedAt) {
		return e.bet.PlacedAt.Before(o.bet.PlacedAt)
	}
	return e.seq < o.seq
}

// Settlement describes the terminal transition of a pending bet.
type Settlement struct {
	ID          string
	Result      models.BetResult
	ProfitLoss  float64
	ClosingOdds *float64
	SettledAt   time.Time
}

// Accumulator is safe for concurrent use. Reads take a consistent snapshot
// under the read lock.
type Accumulator struct {
	mu      sync.RWMutex
	bets    map[string]*entry
	index   []*entry // sorted by (PlacedAt, seq)
	seq     uint64
	totals  Totals
	edges   risk.EdgeSource
	filters BreakdownFilter
}

// New creates an empty accumulator. edges may be nil, in which case edge
// retention is always 0.
func New(edges risk.EdgeSource, filters BreakdownFilter) *Accumulator {
	return &Accumulator{
		bets:    make(map[string]*entry),
		edges:   edges,
		filters: filters,
	}
}

// RecordBet inserts a bet or replaces the bet with the same id.
// A replaced bet keeps its original insertion order.
func (a *Accumulator) RecordBet(bet models.BetRecord) error {
	if err := bet.Validate(); err != nil {
		return err
	}
	if bet.Result == "" {
		bet.Result = models.ResultPending
	}
	bet = bet.Clone()

	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.bets[bet.ID]; ok {
		a.totals.remove(e.bet)
		a.removeFromIndex(e)
		e.bet = bet
		a.insertIntoIndex(e)
		a.totals.add(e.bet)
		return nil
	}

	a.seq++
	e := &entry{bet: bet, seq: a.seq}
	a.bets[bet.ID] = e
	a.insertIntoIndex(e)
	a.totals.add(bet)
	return nil
}

// SettleBet moves a PENDING bet to a terminal result and records CLV when
// closing odds are supplied.
func (a *Accumulator) SettleBet(s Settlement) (models.BetRecord, error) {
	if s.ID == "" {
		return models.BetRecord{}, &models.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if !s.Result.IsTerminal() {
		return models.BetRecord{}, &models.ValidationError{Field: "result", Reason: "must be WIN, LOSS or PUSH"}
	}
	if math.IsNaN(s.ProfitLoss) || math.IsInf(s.ProfitLoss, 0) {
		return models.BetRecord{}, &models.ValidationError{Field: "profit_loss", Reason: "must be a finite number"}
	}
	if c := s.ClosingOdds; c != nil && (math.IsNaN(*c) || math.IsInf(*c, 0) || *c <= 0) {
		return models.BetRecord{}, &models.ValidationError{Field: "closing_odds", Reason: "must be a positive finite number"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.bets[s.ID]
	if !ok {
		return models.BetRecord{}, &models.NotFoundError{Kind: "bet", ID: s.ID}
	}
	if e.bet.Result != models.ResultPending {
		return models.BetRecord{}, &models.InvalidStateError{ID: s.ID, State: e.bet.Result, Op: "settle"}
	}

	a.totals.remove(e.bet)
	e.bet.Result = s.Result
	e.bet.ProfitLoss = s.ProfitLoss
	if !s.SettledAt.IsZero() {
		at := s.SettledAt
		e.bet.Metadata.SettledAt = &at
	}
	if s.ClosingOdds != nil {
		closing := *s.ClosingOdds
		clv := risk.CLV(e.bet.Odds, closing)
		e.bet.Metadata.ClosingOdds = &closing
		e.bet.Metadata.CLV = &clv
	}
	a.totals.add(e.bet)

	return e.bet.Clone(), nil
}

// Get returns a copy of the bet with the given id.
func (a *Accumulator) Get(id string) (models.BetRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.bets[id]
	if !ok {
		return models.BetRecord{}, false
	}
	return e.bet.Clone(), true
}

// Len returns the number of stored bets.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.bets)
}

// Bets returns copies of the bets placed within tr (all bets when tr is nil),
// ordered by placement time with insertion order breaking ties.
func (a *Accumulator) Bets(tr *models.TimeRange) []models.BetRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot(tr)
}

func (a *Accumulator) snapshot(tr *models.TimeRange) []models.BetRecord {
	out := make([]models.BetRecord, 0, len(a.index))
	for _, e := range a.index {
		if tr != nil && !tr.Contains(e.bet.PlacedAt) {
			continue
		}
		out = append(out, e.bet.Clone())
	}
	return out
}

// ComputeMetrics recomputes PerformanceMetrics over the bets placed within tr,
// or over every bet when tr is nil. Same bet set, same output.
func (a *Accumulator) ComputeMetrics(tr *models.TimeRange) models.PerformanceMetrics {
	a.mu.RLock()
	bets := a.snapshot(tr)
	a.mu.RUnlock()
	return Compute(bets, a.edges)
}

// Totals returns the incrementally maintained headline totals.
func (a *Accumulator) Totals() Totals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totals
}

// EvictBefore removes bets placed strictly before cutoff and returns them.
// Bets without a placement time are never evicted; skipped reports how many.
func (a *Accumulator) EvictBefore(cutoff time.Time) (evicted []models.BetRecord, skipped int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lo := sort.Search(len(a.index), func(i int) bool {
		return !a.index[i].bet.PlacedAt.IsZero()
	})
	hi := sort.Search(len(a.index), func(i int) bool {
		return !a.index[i].bet.PlacedAt.Before(cutoff)
	})
	if hi < lo {
		hi = lo
	}

	for _, e := range a.index[lo:hi] {
		evicted = append(evicted, e.bet)
		delete(a.bets, e.bet.ID)
		a.totals.remove(e.bet)
	}
	a.index = append(a.index[:lo], a.index[hi:]...)
	return evicted, lo
}

func (a *Accumulator) insertIntoIndex(e *entry) {
	i := sort.Search(len(a.index), func(i int) bool {
		return e.less(a.index[i])
	})
	a.index = append(a.index, nil)
	copy(a.index[i+1:], a.index[i:])
	a.index[i] = e
}

func (a *Accumulator) removeFromIndex(e *entry) {
	i := sort.Search(len(a.index), func(i int) bool {
		return !a.index[i].less(e)
	})
	if i < len(a.index) && a.index[i] == e {
		a.index = append(a.index[:i], a.index[i+1:]...)
		return
	}
	// index out of sync; fall back to a scan
	for j, x := range a.index {
		if x == e {
			a.index = append(a.index[:j], a.index[j+1:]...)
			return
		}
	}
}
