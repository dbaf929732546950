package indicator

import "trading-indicators/internal/model"

// Adapter computes one indicator type. Adapters are stateless singletons
// shared across sessions: everything carried between ticks lives in the
// session's State.
//
// Batch and Incremental must agree: feeding a history through Batch and
// reading its final points equals feeding the same bars one at a time
// through Incremental and keeping the final results, within 1e-8 per value.
type Adapter interface {
	// Key is the registry name, lowercase (e.g. "bb", "rsi").
	Key() string

	// Outputs names the values of each point, primary output first.
	Outputs() []string

	// Warmup returns the number of leading points that are always null.
	Warmup(spec model.Spec) (int, error)

	// Dependencies lists the indicators whose primary output this one
	// consumes as a synthetic source. Empty for leaf adapters.
	Dependencies(spec model.Spec) ([]model.Spec, error)

	// Batch recomputes the whole series from scratch.
	Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error)

	// NewState creates the adapter's typed slots in st.
	NewState(spec model.Spec, st *State) error

	// Incremental consumes one tick. Final ticks commit into st; partial
	// ticks produce a provisional point and leave committed values intact.
	Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error)
}

// Delta is the result of one incremental step.
type Delta struct {
	Points []model.Point
	Next   *State
}

// single wraps one point as a delta.
func single(st *State, p model.Point) Delta {
	return Delta{Points: []model.Point{p}, Next: st}
}

// counter is a slot tracking how many final bars an adapter has consumed.
type counter struct {
	N int
}
