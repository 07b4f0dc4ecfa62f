package strategyconfig

import (
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/risk"
	"github.com/wonny/moves/backend/internal/scoring"
)

// Config holds every tunable threshold of the decision core
// ⭐ SSOT: gate thresholds, sizing, scoring multipliers and job schedules live here only
type Config struct {
	Meta         Meta           `yaml:"meta" json:"meta"`
	Gates        Gates          `yaml:"gates" json:"gates"`
	Sizing       Sizing         `yaml:"sizing" json:"sizing"`
	Scoring      scoring.Config `yaml:"scoring" json:"scoring"`
	Signals      Signals        `yaml:"signals" json:"signals"`
	Approval     Approval       `yaml:"approval" json:"approval"`
	Scheduler    Scheduler      `yaml:"scheduler" json:"scheduler"`
	RiskDefaults []RiskDefault  `yaml:"risk_defaults" json:"risk_defaults"`
}

// Meta identifies the configuration
type Meta struct {
	ConfigID string `yaml:"config_id" json:"config_id"`
	Version  string `yaml:"version" json:"version"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// Gates are the deterministic entry gates for opening a position.
type Gates struct {
	ConvictionThreshold  float64       `yaml:"conviction_threshold" json:"conviction_threshold"`
	MinResearchSessions  int           `yaml:"min_research_sessions" json:"min_research_sessions"`
	MinThesisAge         time.Duration `yaml:"min_thesis_age" json:"min_thesis_age"`
	EarningsBlackoutDays int           `yaml:"earnings_blackout_days" json:"earnings_blackout_days"`
	MinConfidence        float64       `yaml:"min_confidence" json:"min_confidence"` // scored floor, open path only
}

// Sizing: size = base_size × conviction × multiplier, capped by max_position_pct
type Sizing struct {
	BaseSize   float64 `yaml:"base_size" json:"base_size"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// Signals configures the generator and the pending-signal lifecycle
type Signals struct {
	Expiry          time.Duration `yaml:"expiry" json:"expiry"`
	ScanConcurrency int           `yaml:"scan_concurrency" json:"scan_concurrency"`
	DefaultHorizon  string        `yaml:"default_horizon" json:"default_horizon"`
	LockTTL         time.Duration `yaml:"lock_ttl" json:"lock_ttl"` // distributed symbol lock
}

// Approval lets small or high-confidence signals skip the human queue.
// Off unless enabled.
type Approval struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MaxValue      float64 `yaml:"max_value" json:"max_value"`           // order value (NAV × size) below this is approved
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"` // with a confirmed thesis
}

// Scheduler holds cron expressions (seconds field first)
type Scheduler struct {
	SignalScan        string `yaml:"signal_scan" json:"signal_scan"`
	SignalExpiry      string `yaml:"signal_expiry" json:"signal_expiry"`
	PrincipleLearning string `yaml:"principle_learning" json:"principle_learning"`
	WhatIfRefresh     string `yaml:"what_if_refresh" json:"what_if_refresh"`
}

// RiskDefault seeds one row of the risk limit table
type RiskDefault struct {
	Type    string  `yaml:"type" json:"type"`
	Value   float64 `yaml:"value" json:"value"`
	Floor   float64 `yaml:"floor" json:"floor"`
	Enabled bool    `yaml:"enabled" json:"enabled"`
}

// Limits converts the seed list.
func (c *Config) Limits() []contracts.RiskLimit {
	out := make([]contracts.RiskLimit, 0, len(c.RiskDefaults))
	for _, d := range c.RiskDefaults {
		out = append(out, contracts.RiskLimit{
			Type:    contracts.LimitType(d.Type),
			Value:   d.Value,
			Floor:   d.Floor,
			Enabled: d.Enabled,
		})
	}
	return out
}

// Default returns the built-in configuration. Load decodes on top of it.
func Default() *Config {
	var seeds []RiskDefault
	for _, l := range risk.DefaultLimits() {
		seeds = append(seeds, RiskDefault{Type: string(l.Type), Value: l.Value, Floor: l.Floor, Enabled: l.Enabled})
	}

	return &Config{
		Meta: Meta{
			ConfigID: "moves_default",
			Version:  "1",
			Timezone: "America/New_York",
		},
		Gates: Gates{
			ConvictionThreshold:  0.70,
			MinResearchSessions:  2,
			MinThesisAge:         168 * time.Hour,
			EarningsBlackoutDays: 5,
			MinConfidence:        0.30,
		},
		Sizing: Sizing{
			BaseSize:   0.02,
			Multiplier: 2.0,
		},
		Scoring: scoring.DefaultConfig(),
		Signals: Signals{
			Expiry:          24 * time.Hour,
			ScanConcurrency: 4,
			DefaultHorizon:  "3-6 months",
			LockTTL:         30 * time.Second,
		},
		Approval: Approval{
			Enabled:       false,
			MaxValue:      500,
			MinConfidence: 0.90,
		},
		Scheduler: Scheduler{
			SignalScan:        "0 */30 9-16 * * 1-5",
			SignalExpiry:      "0 */15 * * * *",
			PrincipleLearning: "0 0 18 * * 1-5",
			WhatIfRefresh:     "0 30 16 * * 1-5",
		},
		RiskDefaults: seeds,
	}
}

// Snapshot identifies the configuration a decision ran under
type Snapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigID   string    `json:"config_id"`
	Version    string    `json:"version"`
	LoadedAt   time.Time `json:"loaded_at"`
}
