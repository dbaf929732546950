package indicator

import "fmt"

// State is the compute state of one (spec, symbol) session. It holds one
// typed slot per indicator parameterization in the spec's dependency plan,
// namespaced by key (e.g. "bb_variance_20") so several parameterizations can
// share a bag. Slots are created once by the registry's NewState; adapters
// never materialize them lazily.
//
// A State is owned by exactly one session and must be advanced from a single
// goroutine, strictly in tick arrival order.
type State struct {
	slots map[string]any

	finalized  int   // final bars applied
	lastFinalT int64 // T of the last final bar
	openT      int64 // T of the open bar, valid when hasOpen
	hasOpen    bool
}

// NewState returns an empty bag.
func NewState() *State {
	return &State{slots: make(map[string]any, 4)}
}

// Finalized returns the number of final bars applied; it is also the index of
// the next bar.
func (s *State) Finalized() int { return s.finalized }

// LastFinalT returns the open time of the last final bar, 0 if none.
func (s *State) LastFinalT() int64 { return s.lastFinalT }

// OpenT returns the open time of the currently open bar, if any.
func (s *State) OpenT() (int64, bool) { return s.openT, s.hasOpen }

// Has reports whether a slot exists.
func (s *State) Has(key string) bool {
	_, ok := s.slots[key]
	return ok
}

// Len returns the number of slots held.
func (s *State) Len() int { return len(s.slots) }

func (s *State) put(key string, v any) {
	s.slots[key] = v
}

// checkOrder validates a tick against the stream ordering rules.
func (s *State) checkOrder(t int64) error {
	if s.finalized > 0 && t <= s.lastFinalT {
		return fmt.Errorf("%w: bar t=%d not after last final bar t=%d", ErrOutOfOrder, t, s.lastFinalT)
	}
	if s.hasOpen && t != s.openT {
		return fmt.Errorf("%w: bar t=%d while bar t=%d is still open", ErrOutOfOrder, t, s.openT)
	}
	return nil
}

// advance records a tick after every adapter in the plan has consumed it.
func (s *State) advance(t int64, partial bool) {
	if partial {
		s.openT, s.hasOpen = t, true
		return
	}
	s.hasOpen = false
	s.lastFinalT = t
	s.finalized++
}

// slot fetches a typed slot.
func slot[T any](s *State, key string) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrStateMissing
	}
	raw, ok := s.slots[key]
	if !ok {
		return zero, fmt.Errorf("%w: slot %q", ErrStateMissing, key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: slot %q holds %T", ErrStateMissing, key, raw)
	}
	return v, nil
}
