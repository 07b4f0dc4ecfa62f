package risk

import (
	"fmt"
	"math"

	"github.com/wonny/moves/backend/internal/contracts"
)

// =============================================================================
// Pure risk evaluation
// =============================================================================

// Input is everything Evaluate needs. Limits and KillSwitch must be read
// fresh from the store by the caller.
type Input struct {
	Candidate  contracts.Candidate
	Snapshot   contracts.PortfolioSnapshot
	Limits     contracts.LimitSet
	KillSwitch contracts.KillSwitch
}

type checkFn func(in Input) contracts.CheckResult

// checkOrder is fixed; the first failure short-circuits.
var checkOrder = []checkFn{
	checkKillSwitch,
	checkPositionSize,
	checkSectorConcentration,
	checkGrossExposure,
	checkNetExposure,
	checkTradingBlackout,
	checkDrawdown,
	checkDailyLoss,
}

// Evaluate runs the ordered checks. It never errors: limit-table validity is
// the caller's job (see Manager.Check).
func Evaluate(in Input) contracts.RiskDecision {
	decision := contracts.RiskDecision{Approved: true}

	for _, check := range checkOrder {
		res := check(in)
		decision.Checks = append(decision.Checks, res)
		if res.Failed() {
			failed := res
			decision.Approved = false
			decision.Failure = &failed
			break
		}
	}

	return decision
}

// =============================================================================
// Helpers
// =============================================================================

func pass(check string, lt contracts.LimitType, limit, actual float64, msg string) contracts.CheckResult {
	return contracts.CheckResult{Check: check, LimitType: lt, Passed: true, Limit: limit, Actual: actual, Message: msg}
}

func fail(check string, lt contracts.LimitType, limit, actual float64, msg string) contracts.CheckResult {
	return contracts.CheckResult{Check: check, LimitType: lt, Passed: false, Limit: limit, Actual: actual, Message: msg}
}

func skip(check string, lt contracts.LimitType) contracts.CheckResult {
	return contracts.CheckResult{Check: check, LimitType: lt, Skipped: true, Message: "limit disabled"}
}

// enabledLimit returns the limit when present and enabled.
func enabledLimit(in Input, lt contracts.LimitType) (contracts.RiskLimit, bool) {
	l, ok := in.Limits[lt]
	return l, ok && l.Enabled
}

func opens(in Input) bool {
	return in.Candidate.Action.OpensPosition()
}

const navUnavailable = "net asset value unavailable"

// signedDelta is the change to net exposure (as a fraction of NAV) the
// candidate would cause.
func signedDelta(c contracts.Candidate) float64 {
	size := math.Abs(c.SizePct)
	switch c.Action {
	case contracts.ActionBuy, contracts.ActionCover:
		return size
	default:
		return -size
	}
}

// bandDistance is how far v lies outside [floor, ceiling]; 0 inside.
func bandDistance(v, floor, ceiling float64) float64 {
	switch {
	case v > ceiling:
		return v - ceiling
	case v < floor:
		return floor - v
	}
	return 0
}

// =============================================================================
// Checks
// =============================================================================

func checkKillSwitch(in Input) contracts.CheckResult {
	active := 0.0
	if in.KillSwitch.Active {
		active = 1
	}
	if in.KillSwitch.Active && opens(in) {
		return fail(contracts.CheckKillSwitch, "", 0, active,
			fmt.Sprintf("kill switch active: %s", in.KillSwitch.Reason))
	}
	if in.KillSwitch.Active {
		return pass(contracts.CheckKillSwitch, "", 0, active, "kill switch active; closing trade allowed")
	}
	return pass(contracts.CheckKillSwitch, "", 0, active, "kill switch inactive")
}

func checkPositionSize(in Input) contracts.CheckResult {
	lt := contracts.LimitMaxPositionPct
	l, ok := enabledLimit(in, lt)
	if !ok {
		return skip(contracts.CheckPositionSize, lt)
	}
	if !opens(in) {
		return pass(contracts.CheckPositionSize, lt, l.Value, 0, "closing trade")
	}
	nav := in.Snapshot.NAV
	if nav <= 0 {
		return fail(contracts.CheckPositionSize, lt, l.Value, 0, navUnavailable)
	}

	actual := in.Snapshot.SymbolExposure(in.Candidate.Symbol)/nav + in.Candidate.SizePct
	if actual > l.Value {
		return fail(contracts.CheckPositionSize, lt, l.Value, actual,
			fmt.Sprintf("position %.2f%% of NAV exceeds %.2f%%", actual*100, l.Value*100))
	}
	return pass(contracts.CheckPositionSize, lt, l.Value, actual, "within position limit")
}

func checkSectorConcentration(in Input) contracts.CheckResult {
	lt := contracts.LimitMaxSectorPct
	l, ok := enabledLimit(in, lt)
	if !ok {
		return skip(contracts.CheckSectorConcentration, lt)
	}
	if !opens(in) {
		return pass(contracts.CheckSectorConcentration, lt, l.Value, 0, "closing trade")
	}
	nav := in.Snapshot.NAV
	if nav <= 0 {
		return fail(contracts.CheckSectorConcentration, lt, l.Value, 0, navUnavailable)
	}

	actual := in.Snapshot.SectorExposure(in.Candidate.Sector)/nav + in.Candidate.SizePct
	if actual > l.Value {
		return fail(contracts.CheckSectorConcentration, lt, l.Value, actual,
			fmt.Sprintf("sector %q at %.2f%% of NAV exceeds %.2f%%", in.Candidate.Sector, actual*100, l.Value*100))
	}
	return pass(contracts.CheckSectorConcentration, lt, l.Value, actual, "within sector limit")
}

func checkGrossExposure(in Input) contracts.CheckResult {
	lt := contracts.LimitMaxGrossExposure
	l, ok := enabledLimit(in, lt)
	if !ok {
		return skip(contracts.CheckGrossExposure, lt)
	}
	if !opens(in) {
		return pass(contracts.CheckGrossExposure, lt, l.Value, 0, "closing trade")
	}
	nav := in.Snapshot.NAV
	if nav <= 0 {
		return fail(contracts.CheckGrossExposure, lt, l.Value, 0, navUnavailable)
	}

	actual := in.Snapshot.GrossExposure()/nav + in.Candidate.SizePct
	if actual > l.Value {
		return fail(contracts.CheckGrossExposure, lt, l.Value, actual,
			fmt.Sprintf("gross exposure %.2f%% exceeds %.2f%%", actual*100, l.Value*100))
	}
	return pass(contracts.CheckGrossExposure, lt, l.Value, actual, "within gross limit")
}

func checkNetExposure(in Input) contracts.CheckResult {
	lt := contracts.LimitNetExposureBand
	l, ok := enabledLimit(in, lt)
	if !ok {
		return skip(contracts.CheckNetExposure, lt)
	}
	nav := in.Snapshot.NAV
	if nav <= 0 {
		if opens(in) {
			return fail(contracts.CheckNetExposure, lt, l.Value, 0, navUnavailable)
		}
		return pass(contracts.CheckNetExposure, lt, l.Value, 0, "closing trade; net asset value unavailable")
	}

	current := in.Snapshot.NetExposure() / nav
	resulting := current + signedDelta(in.Candidate)
	before := bandDistance(current, l.Floor, l.Value)
	after := bandDistance(resulting, l.Floor, l.Value)

	if after == 0 {
		return pass(contracts.CheckNetExposure, lt, l.Value, resulting, "within net exposure band")
	}
	if !opens(in) && after <= before {
		return pass(contracts.CheckNetExposure, lt, l.Value, resulting, "closing trade narrows existing breach")
	}
	return fail(contracts.CheckNetExposure, lt, l.Value, resulting,
		fmt.Sprintf("net exposure %.2f%% outside band [%.2f%%, %.2f%%]", resulting*100, l.Floor*100, l.Value*100))
}

func checkTradingBlackout(in Input) contracts.CheckResult {
	if in.Candidate.InBlackout {
		return fail(contracts.CheckTradingBlackout, "", 0, 1,
			fmt.Sprintf("%s is in a trading blackout", in.Candidate.Symbol))
	}
	return pass(contracts.CheckTradingBlackout, "", 0, 0, "no blackout")
}

func checkDrawdown(in Input) contracts.CheckResult {
	lt := contracts.LimitMaxDrawdown
	l, ok := enabledLimit(in, lt)
	if !ok {
		return skip(contracts.CheckDrawdown, lt)
	}

	actual := in.Snapshot.Drawdown()
	if actual > l.Value && opens(in) {
		return fail(contracts.CheckDrawdown, lt, l.Value, actual,
			fmt.Sprintf("drawdown %.2f%% exceeds %.2f%%", actual*100, l.Value*100))
	}
	return pass(contracts.CheckDrawdown, lt, l.Value, actual, "within drawdown limit")
}

func checkDailyLoss(in Input) contracts.CheckResult {
	lt := contracts.LimitDailyLossLimit
	l, ok := enabledLimit(in, lt)
	if !ok {
		return skip(contracts.CheckDailyLoss, lt)
	}

	var actual float64
	if in.Snapshot.NAV > 0 {
		actual = -in.Snapshot.DailyRealizedPnL / in.Snapshot.NAV
	}
	if actual > l.Value && in.Candidate.Action == contracts.ActionBuy {
		return fail(contracts.CheckDailyLoss, lt, l.Value, actual,
			fmt.Sprintf("daily loss %.2f%% exceeds %.2f%%", actual*100, l.Value*100))
	}
	return pass(contracts.CheckDailyLoss, lt, l.Value, actual, "within daily loss limit")
}
