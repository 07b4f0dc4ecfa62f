package signals

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/strategyconfig"
)

// =============================================================================
// Candidate selection
// =============================================================================

// Path distinguishes opening a new position from closing a held one.
type Path int

const (
	PathNone Path = iota
	PathOpen
	PathClose
)

// Selection is the action chosen for one (thesis, symbol) pair. When Path is
// PathNone, Gate and Detail say why.
type Selection struct {
	Path    Path
	Action  contracts.SignalAction
	SizePct float64 // close path only; open path sizes later
	Gate    string
	Detail  string
}

// SelectCandidate decides between the close path, the open path and no
// action from the thesis status and the held position.
func SelectCandidate(t *contracts.Thesis, symbol string, snap *contracts.PortfolioSnapshot) Selection {
	pos, held := snap.PositionFor(symbol)

	switch {
	case held && t.Status.RequiresExit():
		action := contracts.ActionSell
		if pos.Side == contracts.SideShort {
			action = contracts.ActionCover
		}
		size := 0.0
		if snap.NAV > 0 {
			size = math.Abs(pos.MarketValue) / snap.NAV
		}
		return Selection{Path: PathClose, Action: action, SizePct: size}

	case !held && t.Status.SupportsEntry():
		action := contracts.ActionBuy
		if t.Strategy == contracts.StrategyShort {
			action = contracts.ActionShort
		}
		return Selection{Path: PathOpen, Action: action}

	case held && t.Status.SupportsEntry():
		return Selection{
			Gate:   contracts.GatePositionHeld,
			Detail: fmt.Sprintf("%s already held; thesis %s", strings.ToUpper(symbol), t.Status),
		}
	}

	return Selection{
		Gate:   contracts.GateThesisStatus,
		Detail: fmt.Sprintf("thesis %s with no position in %s", t.Status, strings.ToUpper(symbol)),
	}
}

// =============================================================================
// Entry gates
// =============================================================================

// GateResult is the verdict of the deterministic entry gates. A failing gate
// is a value, never an error.
type GateResult struct {
	Passed bool   `json:"passed"`
	Gate   string `json:"gate,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func gateFail(gate, format string, args ...interface{}) GateResult {
	return GateResult{Gate: gate, Detail: fmt.Sprintf(format, args...)}
}

// EvaluateEntryGates runs the open-path gates in order; the first failure
// wins. Risk admission runs afterwards in the risk manager.
func EvaluateEntryGates(t *contracts.Thesis, mc *contracts.MarketContext, cfg strategyconfig.Gates, now time.Time) GateResult {
	if t.Conviction < cfg.ConvictionThreshold {
		return gateFail(contracts.GateConviction,
			"conviction %.2f below threshold %.2f", t.Conviction, cfg.ConvictionThreshold)
	}

	if t.ResearchSessions < cfg.MinResearchSessions {
		return gateFail(contracts.GateResearchSessions,
			"%d research sessions, %d required", t.ResearchSessions, cfg.MinResearchSessions)
	}

	if age := t.Age(now); age < cfg.MinThesisAge {
		return gateFail(contracts.GateThesisAge,
			"thesis age %s below minimum %s", age.Round(time.Minute), cfg.MinThesisAge)
	}

	if mc != nil && mc.NextEarnings != nil {
		window := now.AddDate(0, 0, cfg.EarningsBlackoutDays)
		e := *mc.NextEarnings
		if !e.Before(now) && !e.After(window) {
			return gateFail(contracts.GateEarningsBlackout,
				"earnings on %s within %d days", e.Format("2006-01-02"), cfg.EarningsBlackoutDays)
		}
	}

	if mc != nil && mc.InBlackout {
		reason := mc.BlackoutReason
		if reason == "" {
			reason = "trading window closed"
		}
		return gateFail(contracts.GateTradingBlackout, "%s", reason)
	}

	return GateResult{Passed: true}
}

// =============================================================================
// Sizing
// =============================================================================

// PositionSize is base × conviction × multiplier, capped by the enabled
// max_position_pct limit.
func PositionSize(conviction float64, cfg strategyconfig.Sizing, limits contracts.LimitSet) float64 {
	size := cfg.BaseSize * conviction * cfg.Multiplier
	if l, ok := limits[contracts.LimitMaxPositionPct]; ok && l.Enabled && size > l.Value {
		size = l.Value
	}
	if size < 0 || math.IsNaN(size) {
		return 0
	}
	return size
}

// Reasoning builds the deterministic explanation stored on a signal.
func Reasoning(t *contracts.Thesis, symbol string, action contracts.SignalAction, confidence float64) string {
	parts := []string{fmt.Sprintf("Thesis '%s' (%s)", t.Title, t.Status)}
	if action.OpensPosition() {
		parts = append(parts, fmt.Sprintf("%s not yet in portfolio", symbol))
	} else {
		parts = append(parts, fmt.Sprintf("%s held; thesis %s", symbol, t.Status))
	}
	parts = append(parts, fmt.Sprintf("Confidence %.2f", confidence))
	return strings.Join(parts, ". ") + "."
}
