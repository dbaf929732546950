package indicator

import (
	"fmt"
	"strings"
	"sync"

	"trading-indicators/internal/model"
)

// Registry maps indicator keys to adapters and runs a spec together with its
// dependencies. It never holds session data: resolved plans are derived from
// configuration only, so one Registry is safely shared by every session.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	plans    map[string]*plan // canonical id → resolved plan
}

// planNode is one spec of a dependency plan.
type planNode struct {
	id      string
	spec    model.Spec
	adapter Adapter
	deps    []string // ids of direct dependencies, in declaration order
	warmup  int      // effective warmup, aligned across the chain
}

// plan lists nodes dependencies-first; the requested spec is last.
type plan struct {
	nodes []planNode
}

func (p *plan) root() planNode { return p.nodes[len(p.nodes)-1] }

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		plans:    make(map[string]*plan),
	}
}

// NewDefaultRegistry returns a registry with every built-in adapter.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []Adapter{
		Bollinger{}, RSI{}, SMA{}, EMA{}, SMMA{}, ATR{}, Stoch{}, RSIEMA{},
	} {
		r.MustRegister(a)
	}
	return r
}

// Register adds an adapter under its key.
func (r *Registry) Register(a Adapter) error {
	key := strings.ToLower(a.Key())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAdapter, key)
	}
	r.adapters[key] = a
	r.plans = make(map[string]*plan)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(a Adapter) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Lookup returns the adapter registered for name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	return a, nil
}

// Keys returns the registered adapter keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	return keys
}

// Resolve validates spec and its whole dependency graph, returning the specs
// in evaluation order (dependencies first, spec last). Unknown keys,
// invalid inputs and cycles are reported here, before any bar is processed.
func (r *Registry) Resolve(spec model.Spec) ([]model.Spec, error) {
	p, err := r.plan(spec)
	if err != nil {
		return nil, err
	}
	out := make([]model.Spec, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.spec
	}
	return out, nil
}

// Warmup returns the effective warmup of spec: the maximum of its own warmup
// and every dependency's effective warmup.
func (r *Registry) Warmup(spec model.Spec) (int, error) {
	p, err := r.plan(spec)
	if err != nil {
		return 0, err
	}
	return p.root().warmup, nil
}

// Outputs returns the value names of spec's points.
func (r *Registry) Outputs(spec model.Spec) ([]string, error) {
	a, err := r.Lookup(spec.Name)
	if err != nil {
		return nil, err
	}
	return a.Outputs(), nil
}

func (r *Registry) plan(spec model.Spec) (*plan, error) {
	id := spec.ID()
	r.mu.RLock()
	p, ok := r.plans[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	res := resolver{reg: r, state: make(map[string]int), index: make(map[string]int)}
	if err := res.visit(spec, nil); err != nil {
		return nil, err
	}
	p = &plan{nodes: res.nodes}

	r.mu.Lock()
	r.plans[id] = p
	r.mu.Unlock()
	return p, nil
}

const (
	visiting = 1
	visited  = 2
)

// resolver performs a depth-first topological sort over canonical ids.
type resolver struct {
	reg   *Registry
	state map[string]int
	index map[string]int // id → position in nodes
	nodes []planNode
}

func (res *resolver) visit(spec model.Spec, path []string) error {
	id := spec.ID()
	switch res.state[id] {
	case visited:
		return nil
	case visiting:
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(append(path, id), " -> "))
	}
	res.state[id] = visiting
	path = append(path, id)

	a, err := res.reg.Lookup(spec.Name)
	if err != nil {
		return err
	}
	own, err := a.Warmup(spec)
	if err != nil {
		return err
	}
	deps, err := a.Dependencies(spec)
	if err != nil {
		return err
	}

	node := planNode{id: id, spec: spec, adapter: a, warmup: own}
	for _, dep := range deps {
		if err := res.visit(dep, path); err != nil {
			return err
		}
		depNode := res.nodes[res.index[dep.ID()]]
		node.deps = append(node.deps, depNode.id)
		if depNode.warmup > node.warmup {
			node.warmup = depNode.warmup
		}
	}

	res.state[id] = visited
	res.index[id] = len(res.nodes)
	res.nodes = append(res.nodes, node)
	return nil
}

// Batch computes spec over bars, running its dependencies first and feeding
// their primary outputs as synthetic sources. Points before the effective
// warmup are null.
func (r *Registry) Batch(spec model.Spec, bars []model.Bar) ([]model.Point, error) {
	p, err := r.plan(spec)
	if err != nil {
		return nil, err
	}

	series := make(map[string][]model.Point, len(p.nodes))
	for _, n := range p.nodes {
		in := bars
		if len(n.deps) > 0 {
			in = make([]model.Bar, len(bars))
			for i, b := range bars {
				in[i] = b.WithDerived(derivedAt(p, n, series, i))
			}
		}
		pts, err := n.adapter.Batch(n.spec, in)
		if err != nil {
			return nil, fmt.Errorf("batch %s: %w", n.id, err)
		}
		for i := 0; i < len(pts) && i < n.warmup; i++ {
			pts[i] = pts[i].Masked()
		}
		series[n.id] = pts
	}
	return series[p.root().id], nil
}

// derivedAt collects the primary output of each dependency of n at index i.
func derivedAt(p *plan, n planNode, series map[string][]model.Point, i int) []model.Value {
	vals := make([]model.Value, len(n.deps))
	for j, depID := range n.deps {
		primary := primaryOutput(p, depID)
		vals[j] = series[depID][i].Value(primary)
	}
	return vals
}

func primaryOutput(p *plan, id string) string {
	for _, n := range p.nodes {
		if n.id == id {
			return n.adapter.Outputs()[0]
		}
	}
	return ""
}

// NewState creates the state bag for a session of spec, with the typed slots
// of every adapter in its dependency plan.
func (r *Registry) NewState(spec model.Spec) (*State, error) {
	p, err := r.plan(spec)
	if err != nil {
		return nil, err
	}
	st := NewState()
	for _, n := range p.nodes {
		if err := n.adapter.NewState(n.spec, st); err != nil {
			return nil, fmt.Errorf("state %s: %w", n.id, err)
		}
	}
	return st, nil
}

// Incremental applies one tick to a session state: every node of the plan
// consumes the bar in dependency order on the same bag. The returned delta
// holds the requested spec's point, masked by the effective warmup.
func (r *Registry) Incremental(spec model.Spec, st *State, bar model.Bar) (Delta, error) {
	if st == nil {
		return Delta{}, ErrStateMissing
	}
	p, err := r.plan(spec)
	if err != nil {
		return Delta{}, err
	}
	if err := st.checkOrder(bar.T); err != nil {
		return Delta{}, err
	}

	idx := st.Finalized()
	latest := make(map[string]model.Point, len(p.nodes))
	for _, n := range p.nodes {
		in := bar
		if len(n.deps) > 0 {
			vals := make([]model.Value, len(n.deps))
			for j, depID := range n.deps {
				vals[j] = latest[depID].Value(primaryOutput(p, depID))
			}
			in = bar.WithDerived(vals)
		}
		d, err := n.adapter.Incremental(n.spec, st, in)
		if err != nil {
			return Delta{}, fmt.Errorf("incremental %s: %w", n.id, err)
		}
		if len(d.Points) == 0 {
			continue
		}
		pt := d.Points[len(d.Points)-1]
		if idx < n.warmup {
			pt = pt.Masked()
		}
		latest[n.id] = pt
	}

	st.advance(bar.T, bar.IsPartial)
	root, ok := latest[p.root().id]
	if !ok {
		return Delta{Next: st}, nil
	}
	return Delta{Points: []model.Point{root}, Next: st}, nil
}
