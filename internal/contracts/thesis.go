package contracts

import (
	"fmt"
	"strings"
	"time"
)

// ThesisStatus is the lifecycle state of an investment thesis
// ⭐ SSOT: allowed transitions live in internal/thesis only
type ThesisStatus string

const (
	ThesisActive        ThesisStatus = "active"
	ThesisStrengthening ThesisStatus = "strengthening"
	ThesisConfirmed     ThesisStatus = "confirmed"
	ThesisWeakening     ThesisStatus = "weakening"
	ThesisInvalidated   ThesisStatus = "invalidated"
	ThesisArchived      ThesisStatus = "archived"
)

// AllThesisStatuses lists every status in lifecycle order.
var AllThesisStatuses = []ThesisStatus{
	ThesisActive,
	ThesisStrengthening,
	ThesisConfirmed,
	ThesisWeakening,
	ThesisInvalidated,
	ThesisArchived,
}

// ParseThesisStatus rejects anything outside the enumeration. No coercion.
func ParseThesisStatus(s string) (ThesisStatus, error) {
	for _, st := range AllThesisStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown thesis status %q", ErrInvalidInput, s)
}

// SupportsEntry reports whether new positions may be opened under this status.
func (s ThesisStatus) SupportsEntry() bool {
	return s == ThesisActive || s == ThesisStrengthening || s == ThesisConfirmed
}

// RequiresExit reports whether held positions should be closed.
func (s ThesisStatus) RequiresExit() bool {
	return s == ThesisWeakening || s == ThesisInvalidated || s == ThesisArchived
}

// Strategy is the direction a thesis trades.
type Strategy string

const (
	StrategyLong  Strategy = "long"
	StrategyShort Strategy = "short"
)

// ParseStrategy defaults an empty string to long.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case "", StrategyLong:
		return StrategyLong, nil
	case StrategyShort:
		return StrategyShort, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, s)
}

// Thesis is a falsifiable investment hypothesis
type Thesis struct {
	ID                 int64        `json:"id"`
	Title              string       `json:"title"`
	Body               string       `json:"body"`
	Strategy           Strategy     `json:"strategy"`
	Status             ThesisStatus `json:"status"`
	Symbols            []string     `json:"symbols"`
	ValidationCriteria string       `json:"validation_criteria"`
	FailureCriteria    string       `json:"failure_criteria"`
	Horizon            string       `json:"horizon"`
	Conviction         float64      `json:"conviction"` // 0.0 ~ 1.0
	ResearchSessions   int          `json:"research_sessions"`
	Domain             string       `json:"domain"`
	SourceModule       string       `json:"source_module"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Age returns how long the thesis has existed at now.
func (t *Thesis) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// HasSymbol reports whether sym is covered by the thesis.
func (t *Thesis) HasSymbol(sym string) bool {
	sym = strings.ToUpper(sym)
	for _, s := range t.Symbols {
		if s == sym {
			return true
		}
	}
	return false
}

// ThesisVersion is one append-only row of a thesis's status history.
// OldStatus is nil for the creation row.
type ThesisVersion struct {
	ID        int64         `json:"id"`
	ThesisID  int64         `json:"thesis_id"`
	OldStatus *ThesisStatus `json:"old_status"`
	NewStatus ThesisStatus  `json:"new_status"`
	Reason    string        `json:"reason"`
	Evidence  string        `json:"evidence"`
	CreatedAt time.Time     `json:"created_at"`
}

// ThesisInput is the ingest payload for a new thesis.
type ThesisInput struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Strategy           string   `json:"strategy"`
	Symbols            []string `json:"symbols"`
	ValidationCriteria string   `json:"validation_criteria"`
	FailureCriteria    string   `json:"failure_criteria"`
	Horizon            string   `json:"horizon"`
	Conviction         *float64 `json:"conviction,omitempty"`
	Domain             string   `json:"domain"`
	SourceModule       string   `json:"source_module"`
}

// ThesisUpdate changes non-status fields; nil pointers are left untouched.
type ThesisUpdate struct {
	Title              *string  `json:"title,omitempty"`
	Body               *string  `json:"body,omitempty"`
	ValidationCriteria *string  `json:"validation_criteria,omitempty"`
	FailureCriteria    *string  `json:"failure_criteria,omitempty"`
	Horizon            *string  `json:"horizon,omitempty"`
	Conviction         *float64 `json:"conviction,omitempty"`
	Domain             *string  `json:"domain,omitempty"`
}

// NormalizeSymbols upper-cases, trims and de-duplicates while keeping order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ValidateConviction rejects values outside [0,1] (and NaN).
func ValidateConviction(c float64) error {
	if !(c >= 0 && c <= 1) {
		return fmt.Errorf("%w: conviction %v outside [0,1]", ErrInvalidInput, c)
	}
	return nil
}
