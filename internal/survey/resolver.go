package survey

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

// Resolver finds targets on a page by trying each target's strategies in turn.
type Resolver struct {
	logger     *zap.Logger
	strategies map[Target][]Strategy
}

// NewResolver creates a Resolver. A nil strategy map means DefaultStrategies.
func NewResolver(logger *zap.Logger, strategies map[Target][]Strategy) *Resolver {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Resolver{
		logger:     logger.Named("resolver"),
		strategies: strategies,
	}
}

// Resolve returns the elements matched by the first strategy for t that
// matches anything, in document order without duplicates. Nothing found is
// an empty slice. Only a lost session or a done context is an error.
func (r *Resolver) Resolve(ctx context.Context, f dom.Finder, t Target) ([]dom.Element, error) {
	for _, s := range r.strategies[t] {
		found, err := r.apply(ctx, f, s)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			r.logger.Debug("Strategy failed, treating as a miss",
				zap.Stringer("target", t), zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if len(found) > 0 {
			r.logger.Debug("Target resolved",
				zap.Stringer("target", t), zap.String("strategy", s.Name), zap.Int("count", len(found)))
			return found, nil
		}
	}
	r.logger.Debug("Target not found", zap.Stringer("target", t))
	return nil, nil
}

// First resolves t and returns its first match, or nil.
func (r *Resolver) First(ctx context.Context, f dom.Finder, t Target) (dom.Element, error) {
	found, err := r.Resolve(ctx, f, t)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (r *Resolver) apply(ctx context.Context, f dom.Finder, s Strategy) ([]dom.Element, error) {
	var (
		candidates []dom.Element
		err        error
	)
	if s.Walk != nil {
		candidates, err = s.Walk(ctx, f)
	} else {
		candidates, err = f.Find(ctx, s.Query)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]dom.Element, 0, len(candidates))
	for _, el := range candidates {
		if _, dup := seen[el.Ref()]; dup {
			continue
		}
		seen[el.Ref()] = struct{}{}

		if s.Match != nil || s.VisibleOnly {
			info, err := el.Describe(ctx)
			if err != nil {
				if fatal(ctx, err) {
					return nil, err
				}
				// Gone since the query ran.
				continue
			}
			if s.VisibleOnly && !info.Visible {
				continue
			}
			if s.Match != nil && !s.Match(info) {
				continue
			}
		}
		out = append(out, el)
	}
	return out, nil
}

// fatal reports whether err should stop the current unit of work rather than
// be logged and skipped.
func fatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	// A per-operation timeout is transient; only the caller's context counts.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	return dom.IsSessionLost(err)
}
