package indicator

import (
	"log/slog"

	"go.uber.org/multierr"

	"trading-indicators/internal/model"
)

type sessionKey struct {
	specID string
	symbol string
}

// Engine hosts one Session per (spec, symbol) for a configured list of specs.
// Sessions are created on the first tick of a symbol. Designed for
// single-goroutine usage, no locks needed.
type Engine struct {
	reg   *Registry
	specs []model.Spec
	byTF  map[string][]model.Spec

	sessions  map[sessionKey]*Session
	maxPoints int
	log       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSessionMaxPoints caps the point history of every session.
func WithSessionMaxPoints(n int) EngineOption {
	return func(e *Engine) { e.maxPoints = n }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine validates specs against reg and returns an engine with no
// sessions yet.
func NewEngine(reg *Registry, specs []model.Spec, opts ...EngineOption) (*Engine, error) {
	if err := ValidateSpecs(reg, specs); err != nil {
		return nil, err
	}
	e := &Engine{
		reg:      reg,
		sessions: make(map[sessionKey]*Session, 64),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.setSpecs(specs)
	return e, nil
}

func (e *Engine) setSpecs(specs []model.Spec) {
	e.specs = append([]model.Spec(nil), specs...)
	e.byTF = make(map[string][]model.Spec)
	for _, s := range e.specs {
		e.byTF[s.Timeframe] = append(e.byTF[s.Timeframe], s)
	}
}

// Specs returns the configured specs.
func (e *Engine) Specs() []model.Spec {
	return append([]model.Spec(nil), e.specs...)
}

// Registry returns the registry the engine resolves specs with.
func (e *Engine) Registry() *Registry { return e.reg }

// Session returns the session for a canonical spec id and symbol.
func (e *Engine) Session(specID, symbol string) (*Session, bool) {
	s, ok := e.sessions[sessionKey{specID, symbol}]
	return s, ok
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int { return len(e.sessions) }

// Drop removes every session of symbol and returns how many were dropped.
func (e *Engine) Drop(symbol string) int {
	n := 0
	for k := range e.sessions {
		if k.symbol == symbol {
			delete(e.sessions, k)
			n++
		}
	}
	return n
}

func (e *Engine) session(spec model.Spec, symbol string) (*Session, error) {
	key := sessionKey{spec.ID(), symbol}
	if s, ok := e.sessions[key]; ok {
		return s, nil
	}
	s, err := NewSession(e.reg, spec, symbol, WithMaxPoints(e.maxPoints))
	if err != nil {
		return nil, err
	}
	e.sessions[key] = s
	return s, nil
}

// Process applies a tick to every spec configured on its timeframe and
// returns one result per spec that produced a point. A failing session does
// not stop the others; their errors are combined.
func (e *Engine) Process(tick model.Tick) ([]model.IndicatorResult, error) {
	specs := e.byTF[tick.Timeframe]
	if len(specs) == 0 {
		return nil, nil // timeframe not configured
	}

	var errs error
	results := make([]model.IndicatorResult, 0, len(specs))
	for _, spec := range specs {
		s, err := e.session(spec, tick.Symbol)
		if err != nil {
			errs = multierr.Append(errs, &SessionError{SpecID: spec.ID(), Symbol: tick.Symbol, Err: err})
			continue
		}
		p, err := s.Apply(tick.Bar)
		if err != nil {
			errs = multierr.Append(errs, &SessionError{SpecID: spec.ID(), Symbol: tick.Symbol, Err: err})
			continue
		}
		if p.Values == nil {
			continue
		}
		results = append(results, model.IndicatorResult{
			SpecID: spec.ID(),
			Symbol: tick.Symbol,
			Points: []model.Point{p},
		})
	}
	return results, errs
}
