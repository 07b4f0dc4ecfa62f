// Package scoring turns a gate-approved base confidence into the final
// signal confidence. Every step is a pure function; Score applies them in a
// fixed order and clamps last.
package scoring

import (
	"math"
	"strings"

	"github.com/wonny/moves/backend/internal/contracts"
)

// Config holds the tunable multipliers.
type Config struct {
	Expertise       []string `yaml:"expertise"`
	DomainBoost     float64  `yaml:"domain_boost"`
	DomainPenalty   float64  `yaml:"domain_penalty"`
	HighAccuracy    float64  `yaml:"high_accuracy"`    // win rate at or above → boost
	NeutralAccuracy float64  `yaml:"neutral_accuracy"` // win rate at or above → 1.0
	AccuracyBoost   float64  `yaml:"accuracy_boost"`
	AccuracyPenalty float64  `yaml:"accuracy_penalty"`
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		Expertise:       []string{"AI", "semiconductors", "software", "hardware"},
		DomainBoost:     1.15,
		DomainPenalty:   0.90,
		HighAccuracy:    0.70,
		NeutralAccuracy: 0.50,
		AccuracyBoost:   1.15,
		AccuracyPenalty: 0.85,
	}
}

// thesisStrength maps status to its confidence multiplier.
var thesisStrength = map[contracts.ThesisStatus]float64{
	contracts.ThesisActive:        1.0,
	contracts.ThesisStrengthening: 1.1,
	contracts.ThesisConfirmed:     1.2,
	contracts.ThesisWeakening:     0.6,
	contracts.ThesisInvalidated:   0.0,
	contracts.ThesisArchived:      0.0,
}

// Input is everything the scorer needs. Principles must already be matched
// to the signal; SourceWinRate is nil when the source has no history.
type Input struct {
	BaseConfidence float64
	ThesisStatus   contracts.ThesisStatus
	Principles     []*contracts.Principle
	Domain         string
	Source         contracts.SignalSource
	SourceWinRate  *float64
}

// Breakdown records the value after each step.
type Breakdown struct {
	Base                float64 `json:"base"`
	ThesisMultiplier    float64 `json:"thesis_multiplier"`
	AfterThesis         float64 `json:"after_thesis"`
	PrincipleDelta      float64 `json:"principle_delta"`
	AfterPrinciples     float64 `json:"after_principles"`
	DomainMultiplier    float64 `json:"domain_multiplier"`
	AfterDomain         float64 `json:"after_domain"`
	AccuracyMultiplier  float64 `json:"accuracy_multiplier"`
	AfterAccuracy       float64 `json:"after_accuracy"`
	Final               float64 `json:"final"`
	AppliedPrincipleIDs []int64 `json:"applied_principle_ids,omitempty"`
}

// Scorer applies the pipeline with one Config.
type Scorer struct {
	cfg       Config
	expertise map[string]bool
}

// New creates a scorer.
func New(cfg Config) *Scorer {
	exp := make(map[string]bool, len(cfg.Expertise))
	for _, d := range cfg.Expertise {
		exp[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Scorer{cfg: cfg, expertise: exp}
}

// Score runs thesis strength → principles → domain → source accuracy →
// clamp. An invalidated or archived thesis always scores exactly 0.
func (s *Scorer) Score(in Input) Breakdown {
	b := Breakdown{Base: in.BaseConfidence}

	b.ThesisMultiplier = ThesisStrength(in.ThesisStatus)
	b.AfterThesis = in.BaseConfidence * b.ThesisMultiplier
	if b.ThesisMultiplier == 0 {
		b.Final = 0
		return b
	}

	b.PrincipleDelta = PrincipleAdjustment(in.Principles)
	b.AfterPrinciples = b.AfterThesis + b.PrincipleDelta
	for _, p := range in.Principles {
		b.AppliedPrincipleIDs = append(b.AppliedPrincipleIDs, p.ID)
	}

	b.DomainMultiplier = s.DomainMultiplier(in.Domain)
	b.AfterDomain = b.AfterPrinciples * b.DomainMultiplier

	b.AccuracyMultiplier = s.SourceAccuracyMultiplier(in.SourceWinRate)
	b.AfterAccuracy = b.AfterDomain * b.AccuracyMultiplier

	b.Final = Clamp(b.AfterAccuracy)
	return b
}

// ThesisStrength returns the status multiplier; unknown statuses score 0.
func ThesisStrength(status contracts.ThesisStatus) float64 {
	return thesisStrength[status]
}

// PrincipleAdjustment sums +weight for principles validated more often than
// invalidated and −weight for the reverse. Ties contribute nothing.
func PrincipleAdjustment(principles []*contracts.Principle) float64 {
	var delta float64
	for _, p := range principles {
		switch {
		case p.ValidatedCount > p.InvalidatedCount:
			delta += p.Weight
		case p.InvalidatedCount > p.ValidatedCount:
			delta -= p.Weight
		}
	}
	return delta
}

// DomainMultiplier boosts domains inside the expertise set and penalizes
// the rest. An empty domain is neutral.
func (s *Scorer) DomainMultiplier(domain string) float64 {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return 1.0
	}
	if s.expertise[domain] {
		return s.cfg.DomainBoost
	}
	return s.cfg.DomainPenalty
}

// SourceAccuracyMultiplier rewards sources with a good track record.
// No history is neutral.
func (s *Scorer) SourceAccuracyMultiplier(winRate *float64) float64 {
	if winRate == nil {
		return 1.0
	}
	switch {
	case *winRate >= s.cfg.HighAccuracy:
		return s.cfg.AccuracyBoost
	case *winRate >= s.cfg.NeutralAccuracy:
		return 1.0
	default:
		return s.cfg.AccuracyPenalty
	}
}

// Clamp bounds v to [0,1]; NaN becomes 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
