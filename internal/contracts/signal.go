package contracts

import (
	"fmt"
	"time"
)

// SignalAction is the trade a signal recommends
type SignalAction string

const (
	ActionBuy   SignalAction = "BUY"
	ActionSell  SignalAction = "SELL"
	ActionShort SignalAction = "SHORT"
	ActionCover SignalAction = "COVER"
)

// OpensPosition reports whether the action adds exposure.
func (a SignalAction) OpensPosition() bool {
	return a == ActionBuy || a == ActionShort
}

// Strategy is the thesis direction the action trades: BUY/SELL belong to
// long theses, SHORT/COVER to short ones.
func (a SignalAction) Strategy() Strategy {
	if a == ActionShort || a == ActionCover {
		return StrategyShort
	}
	return StrategyLong
}

// SignalStatus is the lifecycle state of a signal
type SignalStatus string

const (
	SignalPending   SignalStatus = "pending"
	SignalApproved  SignalStatus = "approved"
	SignalRejected  SignalStatus = "rejected"
	SignalIgnored   SignalStatus = "ignored"
	SignalExpired   SignalStatus = "expired"
	SignalCancelled SignalStatus = "cancelled"
	SignalExecuted  SignalStatus = "executed"
)

var signalTransitions = map[SignalStatus][]SignalStatus{
	SignalPending:  {SignalApproved, SignalRejected, SignalIgnored, SignalExpired, SignalCancelled},
	SignalApproved: {SignalExecuted},
}

// CanTransitionSignal reports whether from → to is a legal signal move.
func CanTransitionSignal(from, to SignalStatus) bool {
	for _, s := range signalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SignalSource tags what triggered a signal; source accuracy is tracked per tag.
type SignalSource string

const (
	SourceThesisUpdate  SignalSource = "thesis_update"
	SourceScheduledScan SignalSource = "scheduled_scan"
	SourceManual        SignalSource = "manual"
	SourcePriceMove     SignalSource = "price_move"
	SourceNewsEvent     SignalSource = "news_event"
	SourceEarnings      SignalSource = "earnings"
)

// ParseSignalSource rejects unknown tags.
func ParseSignalSource(s string) (SignalSource, error) {
	switch src := SignalSource(s); src {
	case SourceThesisUpdate, SourceScheduledScan, SourceManual,
		SourcePriceMove, SourceNewsEvent, SourceEarnings:
		return src, nil
	}
	return "", fmt.Errorf("%w: unknown signal source %q", ErrInvalidInput, s)
}

// Signal is a recommended trade awaiting or past a human decision
type Signal struct {
	ID         int64        `json:"id"`
	Action     SignalAction `json:"action"`
	Symbol     string       `json:"symbol"`
	ThesisID   int64        `json:"thesis_id"`
	Confidence float64      `json:"confidence"` // 0.0 ~ 1.0, computed
	Source     SignalSource `json:"source"`
	Horizon    string       `json:"horizon"`
	Reasoning  string       `json:"reasoning"`
	SizePct    float64      `json:"size_pct"` // fraction of NAV
	Status     SignalStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
	ExpiredAt  *time.Time   `json:"expired_at,omitempty"`

	// principles that contributed to the score; persisted as links
	PrincipleIDs []int64 `json:"principle_ids,omitempty"`
}

// IsPending reports whether the signal still awaits a decision.
func (s *Signal) IsPending() bool {
	return s.Status == SignalPending
}

// Decision is a human (or channel) verdict on a pending signal.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionIgnore  Decision = "ignore"
	DecisionCancel  Decision = "cancel"
	DecisionExecute Decision = "execute"
)

// TargetStatus maps a decision to the status it produces.
func (d Decision) TargetStatus() (SignalStatus, error) {
	switch d {
	case DecisionApprove:
		return SignalApproved, nil
	case DecisionReject:
		return SignalRejected, nil
	case DecisionIgnore:
		return SignalIgnored, nil
	case DecisionCancel:
		return SignalCancelled, nil
	case DecisionExecute:
		return SignalExecuted, nil
	}
	return "", fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, d)
}

// OutcomeResult classifies what Evaluate did for one symbol.
type OutcomeResult string

const (
	OutcomeCreated    OutcomeResult = "created"
	OutcomeUpdated    OutcomeResult = "updated"
	OutcomeSuppressed OutcomeResult = "suppressed"
)

// Gate names reported on suppressed outcomes.
const (
	GateThesisStatus     = "thesis_status"
	GatePositionHeld     = "position_held"
	GateConviction       = "conviction"
	GateResearchSessions = "research_sessions"
	GateThesisAge        = "thesis_age"
	GateEarningsBlackout = "earnings_blackout"
	GateTradingBlackout  = "trading_blackout"
	GateRisk             = "risk"
	GateConfidenceFloor  = "confidence_floor"
)

// SignalOutcome reports the result of evaluating one (thesis, symbol) pair.
type SignalOutcome struct {
	ThesisID   int64         `json:"thesis_id"`
	Symbol     string        `json:"symbol"`
	Action     SignalAction  `json:"action,omitempty"`
	Result     OutcomeResult `json:"result"`
	SignalID   int64         `json:"signal_id,omitempty"`
	Confidence float64       `json:"confidence"`
	SizePct    float64       `json:"size_pct"`
	Gate       string        `json:"gate,omitempty"`
	LimitType  LimitType     `json:"limit_type,omitempty"`
	Detail     string        `json:"detail,omitempty"`

	// AutoApproved is set when an approval rule decided the signal.
	AutoApproved bool `json:"auto_approved,omitempty"`
}

// Suppressed reports whether no signal was written.
func (o SignalOutcome) Suppressed() bool {
	return o.Result == OutcomeSuppressed
}
