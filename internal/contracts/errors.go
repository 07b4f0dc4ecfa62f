package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy
// ⭐ SSOT: callers branch on these with errors.Is / errors.As
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConfiguration     = errors.New("configuration error")
	ErrStoreConflict     = errors.New("store conflict")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// TransitionError is returned when a status change is not in the
// transition table. The entity keeps its old status.
type TransitionError struct {
	Entity string
	ID     int64
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ConfigError reports a missing or malformed configuration item. It is fatal
// for the affected operation and never treated as "no limit".
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError builds a *ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrConfiguration) hold.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}
