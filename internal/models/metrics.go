package models

import "time"

// PerformanceMetrics is the aggregate snapshot derived from the live bet set.
// Every field is always a finite number.
type PerformanceMetrics struct {
	TotalBets   int `json:"total_bets"`
	WinningBets int `json:"winning_bets"`
	LosingBets  int `json:"losing_bets"`
	PushBets    int `json:"push_bets"`
	PendingBets int `json:"pending_bets"`

	// TotalStake and TotalReturn cover settled bets only; PendingStake is open exposure.
	TotalStake   float64 `json:"total_stake"`
	PendingStake float64 `json:"pending_stake"`
	TotalReturn  float64 `json:"total_return"`
	ProfitLoss   float64 `json:"profit_loss"`
	ROI          float64 `json:"roi"`
	WinRate      float64 `json:"win_rate"`
	AverageOdds  float64 `json:"average_odds"`
	AverageStake float64 `json:"average_stake"`

	MaxDrawdown     float64 `json:"max_drawdown"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	KellyMultiplier float64 `json:"kelly_multiplier"`
	CLVAverage      float64 `json:"clv_average"`
	EdgeRetention   float64 `json:"edge_retention"`
	TimeInMarket    float64 `json:"time_in_market_hours"`

	LongestWinStreak  int `json:"longest_win_streak"`
	LongestLossStreak int `json:"longest_loss_streak"`
	// CurrentStreak is positive for consecutive wins, negative for losses.
	CurrentStreak int `json:"current_streak"`
}

// BreakdownEntry aggregates the bets sharing one grouping key.
type BreakdownEntry struct {
	Key         string  `json:"key"`
	Bets        int     `json:"bets"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Pushes      int     `json:"pushes"`
	Stake       float64 `json:"stake"`
	ProfitLoss  float64 `json:"profit_loss"`
	ROI         float64 `json:"roi"`
	WinRate     float64 `json:"win_rate"`
	AverageOdds float64 `json:"average_odds"`
}

// MetricBreakdown groups settled bets along several dimensions.
type MetricBreakdown struct {
	ByConfidence []BreakdownEntry `json:"by_confidence"`
	BySport      []BreakdownEntry `json:"by_sport"`
	ByMarketType []BreakdownEntry `json:"by_market_type"`
}

// TimeSeriesData is one periodic snapshot of the headline metrics.
type TimeSeriesData struct {
	Timestamp  time.Time `json:"timestamp"`
	Bets       int       `json:"bets"`
	Stake      float64   `json:"stake"`
	ProfitLoss float64   `json:"profit_loss"`
	ROI        float64   `json:"roi"`
	WinRate    float64   `json:"win_rate"`
	CLV        float64   `json:"clv"`
}

// NewTimeSeriesData builds a snapshot point from metrics.
func NewTimeSeriesData(at time.Time, m PerformanceMetrics) TimeSeriesData {
	return TimeSeriesData{
		Timestamp:  at,
		Bets:       m.TotalBets,
		Stake:      m.TotalStake,
		ProfitLoss: m.ProfitLoss,
		ROI:        m.ROI,
		WinRate:    m.WinRate,
		CLV:        m.CLVAverage,
	}
}
