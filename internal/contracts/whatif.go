package contracts

import (
	"fmt"
	"time"
)

// WhatIf follows a signal the user passed on, so that passing can be
// judged against what the trade would have done.
type WhatIf struct {
	ID                 int64        `json:"id"`
	SignalID           int64        `json:"signal_id"`
	Symbol             string       `json:"symbol"`
	Action             SignalAction `json:"action"`
	Decision           SignalStatus `json:"decision"` // rejected, ignored or expired
	PriceAtPass        float64      `json:"price_at_pass"`
	CurrentPrice       *float64     `json:"current_price,omitempty"`
	HypotheticalPnL    *float64     `json:"hypothetical_pnl,omitempty"`
	HypotheticalPnLPct *float64     `json:"hypothetical_pnl_pct,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Priced reports whether a current price has been folded in.
func (w *WhatIf) Priced() bool {
	return w.HypotheticalPnL != nil
}

// IsPassDecision reports whether status counts as passing on a signal.
func IsPassDecision(status SignalStatus) bool {
	return status == SignalRejected || status == SignalIgnored || status == SignalExpired
}

// ParsePassDecision rejects statuses that are not a pass.
func ParsePassDecision(s string) (SignalStatus, error) {
	if st := SignalStatus(s); IsPassDecision(st) {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q is not a pass decision", ErrInvalidInput, s)
}

// WhatIfSummary grades past passes. A pass is "correct" when the trade
// would have lost money.
type WhatIfSummary struct {
	PassAccuracy      float64 `json:"pass_accuracy"`
	RejectAccuracy    float64 `json:"reject_accuracy"`
	IgnoreCost        float64 `json:"ignore_cost"` // mean hypothetical return of ignored/expired passes
	EngagementQuality float64 `json:"engagement_quality"`
	TotalTracked      int     `json:"total_tracked"`
}

// StrategyStats tracks realized accuracy per thesis strategy.
type StrategyStats struct {
	Strategy  Strategy  `json:"strategy"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Total     int       `json:"total"`
	AvgReturn float64   `json:"avg_return"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WinRate returns nil when there is no history.
func (s *StrategyStats) WinRate() *float64 {
	if s == nil || s.Total == 0 {
		return nil
	}
	r := float64(s.Wins) / float64(s.Total)
	return &r
}

// Pattern types reported by principle discovery.
const (
	PatternSourcePerformance   = "source_performance"
	PatternStrategyPerformance = "strategy_performance"
)

// Pattern is an outlier track record worth turning into a principle.
type Pattern struct {
	Type        string  `json:"pattern_type"`
	Subject     string  `json:"subject"`
	Description string  `json:"description"`
	WinRate     float64 `json:"win_rate"`
	SampleSize  int     `json:"sample_size"`
}
