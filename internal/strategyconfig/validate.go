package strategyconfig

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata" // meta.timezone must resolve without a system zoneinfo

	"github.com/robfig/cron/v3"

	"github.com/wonny/moves/backend/internal/contracts"
)

// ValidationError is fatal: the process must not start on it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("core config %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, contracts.ErrConfiguration) hold.
func (e *ValidationError) Is(target error) bool {
	return target == contracts.ErrConfiguration
}

// Warning flags a legal but questionable setting
type Warning struct {
	Code    string
	Message string
}

// cronParser matches the scheduler's cron.WithSeconds() layout.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ConfigID == "" {
		return &ValidationError{"meta.config_id", "required"}
	}
	if cfg.Meta.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
			return &ValidationError{"meta.timezone", err.Error()}
		}
	}

	// === Gates ===
	g := cfg.Gates
	if err := validateFraction(g.ConvictionThreshold, "gates.conviction_threshold"); err != nil {
		return err
	}
	if err := validateFraction(g.MinConfidence, "gates.min_confidence"); err != nil {
		return err
	}
	if g.MinResearchSessions < 0 {
		return &ValidationError{"gates.min_research_sessions", "must be >= 0"}
	}
	if g.MinThesisAge < 0 {
		return &ValidationError{"gates.min_thesis_age", "must be >= 0"}
	}
	if g.EarningsBlackoutDays < 0 {
		return &ValidationError{"gates.earnings_blackout_days", "must be >= 0"}
	}

	// === Sizing ===
	if cfg.Sizing.BaseSize <= 0 || cfg.Sizing.BaseSize > 1 {
		return &ValidationError{"sizing.base_size", "must be in (0, 1]"}
	}
	if cfg.Sizing.Multiplier <= 0 {
		return &ValidationError{"sizing.multiplier", "must be > 0"}
	}

	// === Scoring ===
	s := cfg.Scoring
	for field, v := range map[string]float64{
		"scoring.domain_boost":     s.DomainBoost,
		"scoring.domain_penalty":   s.DomainPenalty,
		"scoring.accuracy_boost":   s.AccuracyBoost,
		"scoring.accuracy_penalty": s.AccuracyPenalty,
	} {
		if math.IsNaN(v) || v <= 0 {
			return &ValidationError{field, "must be > 0"}
		}
	}
	if err := validateFraction(s.HighAccuracy, "scoring.high_accuracy"); err != nil {
		return err
	}
	if err := validateFraction(s.NeutralAccuracy, "scoring.neutral_accuracy"); err != nil {
		return err
	}
	if s.NeutralAccuracy > s.HighAccuracy {
		return &ValidationError{"scoring", "neutral_accuracy must be <= high_accuracy"}
	}

	// === Signals ===
	if cfg.Signals.Expiry <= 0 {
		return &ValidationError{"signals.expiry", "must be > 0"}
	}
	if cfg.Signals.ScanConcurrency < 1 {
		return &ValidationError{"signals.scan_concurrency", "must be >= 1"}
	}
	if cfg.Signals.LockTTL <= 0 {
		return &ValidationError{"signals.lock_ttl", "must be > 0"}
	}

	// === Approval ===
	if a := cfg.Approval; a.Enabled {
		if math.IsNaN(a.MaxValue) || a.MaxValue < 0 {
			return &ValidationError{"approval.max_value", "must be >= 0"}
		}
		if err := validateFraction(a.MinConfidence, "approval.min_confidence"); err != nil {
			return err
		}
	}

	// === Scheduler ===
	for field, spec := range map[string]string{
		"scheduler.signal_scan":        cfg.Scheduler.SignalScan,
		"scheduler.signal_expiry":      cfg.Scheduler.SignalExpiry,
		"scheduler.principle_learning": cfg.Scheduler.PrincipleLearning,
		"scheduler.what_if_refresh":    cfg.Scheduler.WhatIfRefresh,
	} {
		if spec == "" {
			continue // job disabled
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return &ValidationError{field, err.Error()}
		}
	}

	// === Risk defaults ===
	seen := make(map[contracts.LimitType]bool)
	for i, l := range cfg.Limits() {
		field := fmt.Sprintf("risk_defaults[%d]", i)
		if _, err := contracts.ParseLimitType(string(l.Type)); err != nil {
			return &ValidationError{field, err.Error()}
		}
		if seen[l.Type] {
			return &ValidationError{field, fmt.Sprintf("duplicate limit type %s", l.Type)}
		}
		seen[l.Type] = true
		if err := l.Validate(); err != nil {
			return &ValidationError{field, err.Error()}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Gates.ConvictionThreshold < 0.5 {
		warnings = append(warnings, Warning{
			Code:    "LOW_CONVICTION_GATE",
			Message: "conviction_threshold < 0.5: weak theses will open positions",
		})
	}

	if cfg.Gates.MinThesisAge < 24*time.Hour {
		warnings = append(warnings, Warning{
			Code:    "SHORT_COOLING_OFF",
			Message: "min_thesis_age < 24h: new theses trade before a second look",
		})
	}

	if cfg.Approval.Enabled && cfg.Approval.MinConfidence < cfg.Gates.MinConfidence {
		warnings = append(warnings, Warning{
			Code:    "AUTO_APPROVE_BELOW_FLOOR",
			Message: "approval.min_confidence < gates.min_confidence: every confirmed-thesis signal is auto-approved",
		})
	}

	maxSize := cfg.Sizing.BaseSize * cfg.Sizing.Multiplier
	for _, l := range cfg.Limits() {
		if l.Type == contracts.LimitMaxPositionPct && l.Enabled && maxSize > l.Value {
			warnings = append(warnings, Warning{
				Code:    "SIZE_ALWAYS_CAPPED",
				Message: fmt.Sprintf("full-conviction size %.2f exceeds max_position_pct %.2f", maxSize, l.Value),
			})
		}
	}

	return warnings
}

// === Helper Functions ===

func validateFraction(v float64, field string) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
