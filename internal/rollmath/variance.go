package rollmath

// VarianceState is the incremental counterpart of RollingVariance. It keeps
// the last period raw values and recomputes the window statistics on each
// update, so its output equals RollingVariance at the same index exactly.
// Cost is O(period) per update.
type VarianceState struct {
	period int
	win    *Window
}

// NewVarianceState creates an empty accumulator for period.
func NewVarianceState(period int) *VarianceState {
	return &VarianceState{period: period, win: NewWindow(period)}
}

// Period returns the window length.
func (s *VarianceState) Period() int { return s.period }

// Update pushes x and returns the population variance of the window.
// ok is false until period values have been seen.
func (s *VarianceState) Update(x float64) (variance float64, ok bool) {
	s.win.Push(x)
	if !s.win.Full() {
		return 0, false
	}
	return PopVariance(s.win.Values()), true
}

// Peek returns what Update(x) would return without mutating the state.
func (s *VarianceState) Peek(x float64) (variance float64, ok bool) {
	if s.win.Len()+1 < s.period {
		return 0, false
	}
	return PopVariance(s.win.With(x)), true
}

// Count returns the number of values currently in the window.
func (s *VarianceState) Count() int { return s.win.Len() }
