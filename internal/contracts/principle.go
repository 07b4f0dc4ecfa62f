package contracts

import "time"

// PrincipleCondition scopes where a principle applies. Empty fields match
// anything.
type PrincipleCondition struct {
	Category string       `json:"category,omitempty"`
	Domain   string       `json:"domain,omitempty"`
	Action   SignalAction `json:"action,omitempty"`
	Source   SignalSource `json:"source,omitempty"`
}

// Principle is a learned trading rule that nudges confidence
type Principle struct {
	ID               int64              `json:"id"`
	Text             string             `json:"text"`
	Condition        PrincipleCondition `json:"condition"`
	Weight           float64            `json:"weight"` // 0.01 ~ 0.20
	ValidatedCount   int                `json:"validated_count"`
	InvalidatedCount int                `json:"invalidated_count"`
	Active           bool               `json:"active"`
	LastApplied      *time.Time         `json:"last_applied,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Samples is the number of recorded outcomes.
func (p *Principle) Samples() int {
	return p.ValidatedCount + p.InvalidatedCount
}

// SourceStats tracks realized accuracy per signal source.
type SourceStats struct {
	Source    SignalSource `json:"source"`
	Wins      int          `json:"wins"`
	Losses    int          `json:"losses"`
	Total     int          `json:"total"`
	AvgReturn float64      `json:"avg_return"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// WinRate returns nil when there is no history.
func (s *SourceStats) WinRate() *float64 {
	if s == nil || s.Total == 0 {
		return nil
	}
	r := float64(s.Wins) / float64(s.Total)
	return &r
}
