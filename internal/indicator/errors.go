package indicator

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownIndicator is a configuration error: no adapter is registered
	// under the requested name.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrDependencyCycle is raised while resolving a spec whose dependency
	// graph loops back on itself.
	ErrDependencyCycle = errors.New("indicator dependency cycle")

	// ErrDuplicateAdapter is returned when two adapters claim the same key.
	ErrDuplicateAdapter = errors.New("indicator adapter already registered")

	// ErrStateMissing means the state bag was not created for this spec.
	ErrStateMissing = errors.New("indicator state not initialized")

	// ErrOutOfOrder means a tick violates the bar stream ordering rules.
	ErrOutOfOrder = errors.New("tick out of order")
)

// ValidationError reports invalid or missing inputs of one indicator spec.
// No computation is attempted once it is raised.
type ValidationError struct {
	Indicator string
	Missing   []string // required keys absent from the inputs
	Problems  []string // present but unusable values
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required inputs: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return e.Indicator + ": " + strings.Join(parts, "; ")
}

// SessionError attributes a tick failure to one (spec, symbol) session.
type SessionError struct {
	SpecID string
	Symbol string
	Err    error
}

func (e *SessionError) Error() string {
	return e.SpecID + " " + e.Symbol + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error { return e.Err }
