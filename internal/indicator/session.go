package indicator

import (
	"fmt"

	"trading-indicators/internal/model"
)

// Session owns the state and point history of one (spec, symbol) pair. A
// Session is not safe for concurrent use; the host drives it from the single
// goroutine that consumes the symbol's bar stream.
type Session struct {
	reg    *Registry
	spec   model.Spec
	symbol string
	st     *State

	points    []model.Point
	open      bool // last point is provisional
	maxPoints int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMaxPoints caps the retained point history. Older points are dropped
// once the cap is exceeded; the compute state is unaffected.
func WithMaxPoints(n int) SessionOption {
	return func(s *Session) { s.maxPoints = n }
}

// NewSession resolves spec and creates a cold session for symbol.
func NewSession(reg *Registry, spec model.Spec, symbol string, opts ...SessionOption) (*Session, error) {
	st, err := reg.NewState(spec)
	if err != nil {
		return nil, err
	}
	s := &Session{reg: reg, spec: spec, symbol: symbol, st: st}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Spec returns the session's indicator spec.
func (s *Session) Spec() model.Spec { return s.spec }

// Symbol returns the session's instrument.
func (s *Session) Symbol() string { return s.symbol }

// Finalized returns the number of final bars consumed.
func (s *Session) Finalized() int { return s.st.Finalized() }

// Seed replays closed historical bars into the session. Partial flags on the
// history are ignored. It returns the number of bars applied.
func (s *Session) Seed(history []model.Bar) (int, error) {
	for i, b := range history {
		if _, err := s.Apply(b.Final()); err != nil {
			return i, fmt.Errorf("seed %s %s at bar %d: %w", s.spec.ID(), s.symbol, i, err)
		}
	}
	return len(history), nil
}

// Apply consumes one tick and returns the point it produced. A partial point
// replaces the previous provisional point for the same bar; a final point
// replaces it exactly once.
func (s *Session) Apply(bar model.Bar) (model.Point, error) {
	d, err := s.reg.Incremental(s.spec, s.st, bar)
	if err != nil {
		return model.Point{}, err
	}
	if d.Next != nil {
		s.st = d.Next
	}
	if len(d.Points) == 0 {
		return model.Point{}, nil
	}
	p := d.Points[len(d.Points)-1]

	if s.open {
		s.points[len(s.points)-1] = p
	} else {
		s.points = append(s.points, p)
	}
	s.open = bar.IsPartial

	if s.maxPoints > 0 && len(s.points) > s.maxPoints {
		s.points = append(s.points[:0:0], s.points[len(s.points)-s.maxPoints:]...)
	}
	return p, nil
}

// Points returns a copy of the retained point history, the open bar's
// provisional point last if one exists.
func (s *Session) Points() []model.Point {
	out := make([]model.Point, len(s.points))
	copy(out, s.points)
	return out
}

// FinalPoints returns only the committed points.
func (s *Session) FinalPoints() []model.Point {
	n := len(s.points)
	if s.open {
		n--
	}
	out := make([]model.Point, n)
	copy(out, s.points[:n])
	return out
}

// LastFinalT returns the open time of the last final bar consumed.
func (s *Session) LastFinalT() int64 { return s.st.LastFinalT() }
