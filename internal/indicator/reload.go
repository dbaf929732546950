package indicator

import (
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"trading-indicators/internal/model"
)

// Reload swaps the engine's spec list. Sessions whose canonical spec id
// survives keep their accumulated state; sessions of removed specs are
// dropped; new specs cold-start on their next tick (or Backfill). The new
// list is validated first and the engine is left untouched on error.
// Returns the number of preserved sessions and of newly added specs.
func (e *Engine) Reload(specs []model.Spec) (preserved, created int, err error) {
	if err := ValidateSpecs(e.reg, specs); err != nil {
		return 0, 0, err
	}

	oldIDs := make(map[string]bool, len(e.specs))
	for _, s := range e.specs {
		oldIDs[s.ID()] = true
	}
	newIDs := make(map[string]bool, len(specs))
	for _, s := range specs {
		id := s.ID()
		newIDs[id] = true
		if !oldIDs[id] {
			created++
			e.log.Info("reload: new indicator, cold-starting", slog.String("spec", id))
		}
	}

	dropped := 0
	for k := range e.sessions {
		if newIDs[k.specID] {
			preserved++
			continue
		}
		delete(e.sessions, k)
		dropped++
	}

	e.setSpecs(specs)
	e.log.Info("reload: config reloaded",
		slog.Int("specs", len(specs)),
		slog.Int("preserved", preserved),
		slog.Int("created", created),
		slog.Int("dropped", dropped),
	)
	return preserved, created, nil
}

// ValidateSpecs resolves every spec against reg and reports all unknown
// indicators, invalid inputs, dependency cycles and duplicate canonical ids
// at once.
func ValidateSpecs(reg *Registry, specs []model.Spec) error {
	var errs error
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Timeframe == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: timeframe is required", s.Name))
			continue
		}
		id := s.ID()
		if seen[id] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate spec %s", id))
			continue
		}
		seen[id] = true
		if _, err := reg.Resolve(s); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errs
}
