package contracts

import (
	"fmt"
	"math"
	"time"
)

// LimitType names one configurable risk limit
type LimitType string

const (
	LimitMaxPositionPct   LimitType = "max_position_pct"
	LimitMaxSectorPct     LimitType = "max_sector_pct"
	LimitMaxGrossExposure LimitType = "max_gross_exposure"
	LimitNetExposureBand  LimitType = "net_exposure_band"
	LimitMaxDrawdown      LimitType = "max_drawdown"
	LimitDailyLossLimit   LimitType = "daily_loss_limit"
)

// AllLimitTypes must all be present in the limit table.
var AllLimitTypes = []LimitType{
	LimitMaxPositionPct,
	LimitMaxSectorPct,
	LimitMaxGrossExposure,
	LimitNetExposureBand,
	LimitMaxDrawdown,
	LimitDailyLossLimit,
}

// ParseLimitType rejects unknown limit names.
func ParseLimitType(s string) (LimitType, error) {
	for _, lt := range AllLimitTypes {
		if string(lt) == s {
			return lt, nil
		}
	}
	return "", fmt.Errorf("%w: unknown limit type %q", ErrInvalidInput, s)
}

// RiskLimit is one row of the limit table. Value is the upper bound;
// Floor is the lower bound and only used by the net exposure band.
type RiskLimit struct {
	Type      LimitType `json:"type"`
	Value     float64   `json:"value"`
	Floor     float64   `json:"floor"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate rejects malformed limits.
func (l RiskLimit) Validate() error {
	if math.IsNaN(l.Value) || math.IsNaN(l.Floor) || math.IsInf(l.Value, 0) || math.IsInf(l.Floor, 0) {
		return NewConfigError(string(l.Type), "limit value is not a finite number")
	}
	if l.Type == LimitNetExposureBand {
		if l.Floor > l.Value {
			return NewConfigError(string(l.Type), fmt.Sprintf("floor %.4f above ceiling %.4f", l.Floor, l.Value))
		}
		return nil
	}
	if l.Value < 0 {
		return NewConfigError(string(l.Type), fmt.Sprintf("negative limit %.4f", l.Value))
	}
	return nil
}

// LimitSet indexes limits by type.
type LimitSet map[LimitType]RiskLimit

// NewLimitSet indexes a slice of limits.
func NewLimitSet(limits []RiskLimit) LimitSet {
	set := make(LimitSet, len(limits))
	for _, l := range limits {
		set[l.Type] = l
	}
	return set
}

// Validate requires every type to be present and well-formed.
func (s LimitSet) Validate() error {
	for _, lt := range AllLimitTypes {
		l, ok := s[lt]
		if !ok {
			return NewConfigError(string(lt), "risk limit missing from limit table")
		}
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// KillSwitch halts all opening trades while active.
type KillSwitch struct {
	Active        bool       `json:"active"`
	Reason        string     `json:"reason"`
	ActivatedBy   string     `json:"activated_by"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Candidate is a prospective trade submitted to the risk gate.
type Candidate struct {
	ThesisID   int64        `json:"thesis_id"`
	Symbol     string       `json:"symbol"`
	Action     SignalAction `json:"action"`
	SizePct    float64      `json:"size_pct"`
	Sector     string       `json:"sector"`
	InBlackout bool         `json:"in_blackout"`
}

// Risk check names, in evaluation order.
const (
	CheckKillSwitch          = "kill_switch"
	CheckPositionSize        = "position_size"
	CheckSectorConcentration = "sector_concentration"
	CheckGrossExposure       = "gross_exposure"
	CheckNetExposure         = "net_exposure"
	CheckTradingBlackout     = "trading_blackout"
	CheckDrawdown            = "drawdown"
	CheckDailyLoss           = "daily_loss"
)

// CheckResult is the verdict of one risk check. Skipped checks are neither
// passed nor failed.
type CheckResult struct {
	Check     string    `json:"check"`
	LimitType LimitType `json:"limit_type,omitempty"`
	Passed    bool      `json:"passed"`
	Skipped   bool      `json:"skipped"`
	Limit     float64   `json:"limit"`
	Actual    float64   `json:"actual"`
	Message   string    `json:"message"`
}

// Failed reports a check that ran and rejected the candidate.
func (r CheckResult) Failed() bool {
	return !r.Passed && !r.Skipped
}

// RiskDecision is the ordered result of the risk gate.
type RiskDecision struct {
	Approved bool          `json:"approved"`
	Checks   []CheckResult `json:"checks"`
	Failure  *CheckResult  `json:"failure,omitempty"`
}

// SkippedChecks lists the names of checks skipped for disabled limits.
func (d RiskDecision) SkippedChecks() []string {
	var out []string
	for _, c := range d.Checks {
		if c.Skipped {
			out = append(out, c.Check)
		}
	}
	return out
}
