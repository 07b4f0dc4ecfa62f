package thesis

import (
	"github.com/wonny/moves/backend/internal/contracts"
)

// transitions is the thesis lifecycle adjacency table
// ⭐ SSOT: no other code decides whether a status change is legal
var transitions = map[contracts.ThesisStatus][]contracts.ThesisStatus{
	contracts.ThesisActive: {
		contracts.ThesisStrengthening,
		contracts.ThesisConfirmed,
		contracts.ThesisWeakening,
		contracts.ThesisInvalidated,
		contracts.ThesisArchived,
	},
	contracts.ThesisStrengthening: {
		contracts.ThesisActive,
		contracts.ThesisConfirmed,
		contracts.ThesisWeakening,
		contracts.ThesisInvalidated,
		contracts.ThesisArchived,
	},
	contracts.ThesisConfirmed: {
		contracts.ThesisStrengthening,
		contracts.ThesisWeakening,
		contracts.ThesisInvalidated,
		contracts.ThesisArchived,
	},
	contracts.ThesisWeakening: {
		contracts.ThesisActive,
		contracts.ThesisStrengthening,
		contracts.ThesisInvalidated,
		contracts.ThesisArchived,
	},
	contracts.ThesisInvalidated: {
		contracts.ThesisArchived,
	},
	contracts.ThesisArchived: {},
}

// CanTransition reports whether from → to is in the table.
func CanTransition(from, to contracts.ThesisStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the legal targets from a status.
func AllowedTargets(from contracts.ThesisStatus) []contracts.ThesisStatus {
	return append([]contracts.ThesisStatus(nil), transitions[from]...)
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(s contracts.ThesisStatus) bool {
	return len(transitions[s]) == 0
}

// checkTransition returns a *contracts.TransitionError when the move is not
// in the table.
func checkTransition(id int64, from, to contracts.ThesisStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &contracts.TransitionError{
		Entity: "thesis",
		ID:     id,
		From:   string(from),
		To:     string(to),
	}
}
