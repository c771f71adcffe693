// Package stops resolves free-form user input to stop records.
//
// A query may be a full stop_id ("8220DB000001"), the short code shown on the
// pole ("1234"), trailing digits of an id, or part of a stop name. Resolve
// tries a fixed cascade of strategies and returns the results of the first
// strategy that finds anything.
package stops

import (
	"context"
	"log/slog"

	"tfibus/internal/storage"
)

// DefaultLimit applies when a caller passes a non-positive limit.
const DefaultLimit = 10

// Store is the subset of the stop registry the resolver reads.
// Absence is an empty result; errors mean the store is unavailable.
type Store interface {
	StopByID(ctx context.Context, stopID string) (storage.Stop, bool, error)
	StopsByIDContains(ctx context.Context, fragment string, limit int) ([]storage.Stop, error)
	StopsByCode(ctx context.Context, code string, limit int) ([]storage.Stop, error)
	StopsByIDSuffix(ctx context.Context, suffix string, limit int) ([]storage.Stop, error)
	StopsByNameContains(ctx context.Context, fragment string, limit int) ([]storage.Stop, error)
	StopsBySimilarity(ctx context.Context, text string, limit int) ([]storage.Stop, error)
	NearestStops(ctx context.Context, lat, lon float64, limit int) ([]storage.Stop, error)
}

// Strategy names the cascade step that produced a result.
type Strategy string

const (
	StrategyNone              Strategy = "none"
	StrategyExactID           Strategy = "exact_id"
	StrategyIDContains        Strategy = "id_contains"
	StrategyCode              Strategy = "code"
	StrategyIDSuffix          Strategy = "id_suffix"
	StrategyNumericIDContains Strategy = "numeric_id_contains"
	StrategyName              Strategy = "name"
	StrategySimilarity        Strategy = "similarity"
)

// Resolver maps user tokens to stops. It holds no mutable state and is safe
// for concurrent use.
type Resolver struct {
	store        Store
	logger       *slog.Logger
	onMatch      func(Strategy)
	maxNearLimit int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMatchHook is called once per Resolve with the strategy that answered.
func WithMatchHook(fn func(Strategy)) Option {
	return func(r *Resolver) { r.onMatch = fn }
}

// WithLogger sets the debug logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMaxNearLimit caps the number of stops Near returns.
func WithMaxNearLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxNearLimit = n
		}
	}
}

// NewResolver creates a Resolver over store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:        store,
		logger:       slog.New(slog.DiscardHandler),
		maxNearLimit: 100,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the most plausible stops for query, at most limit of them.
// Only store failures are errors; no match is an empty slice.
func (r *Resolver) Resolve(ctx context.Context, query string, limit int) ([]storage.Stop, error) {
	stops, _, err := r.ResolveWithStrategy(ctx, query, limit)
	return stops, err
}

// ResolveWithStrategy is Resolve that also reports which strategy answered.
func (r *Resolver) ResolveWithStrategy(ctx context.Context, query string, limit int) ([]storage.Stop, Strategy, error) {
	stops, strategy, err := r.cascade(ctx, Normalize(query), limit)
	if err != nil {
		return nil, StrategyNone, err
	}
	if r.onMatch != nil {
		r.onMatch(strategy)
	}
	r.logger.Debug("stop query resolved", "query", query, "strategy", string(strategy), "results", len(stops))
	return stops, strategy, nil
}

func (r *Resolver) cascade(ctx context.Context, q string, limit int) ([]storage.Stop, Strategy, error) {
	if q == "" {
		return nil, StrategyNone, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	// Both predicates are evaluated up front; a seven-digit token is both.
	numeric := IsNumeric(q)
	fullID := IsLikelyFullID(q)

	if fullID {
		stop, ok, err := r.store.StopByID(ctx, q)
		if err != nil {
			return nil, StrategyNone, err
		}
		if ok {
			// authoritative: never padded out to limit
			return []storage.Stop{stop}, StrategyExactID, nil
		}
		found, err := r.store.StopsByIDContains(ctx, q, limit)
		if err != nil {
			return nil, StrategyNone, err
		}
		if len(found) > 0 {
			return found, StrategyIDContains, nil
		}
	}

	if numeric {
		steps := []struct {
			strategy Strategy
			run      func() ([]storage.Stop, error)
		}{
			{StrategyCode, func() ([]storage.Stop, error) { return r.store.StopsByCode(ctx, q, limit) }},
			{StrategyIDSuffix, func() ([]storage.Stop, error) { return r.store.StopsByIDSuffix(ctx, q, limit) }},
			{StrategyNumericIDContains, func() ([]storage.Stop, error) { return r.store.StopsByIDContains(ctx, q, limit) }},
		}
		for _, step := range steps {
			found, err := step.run()
			if err != nil {
				return nil, StrategyNone, err
			}
			if len(found) > 0 {
				return found, step.strategy, nil
			}
		}
	}

	found, err := r.store.StopsByNameContains(ctx, q, limit)
	if err != nil {
		return nil, StrategyNone, err
	}
	if len(found) > 0 {
		return found, StrategyName, nil
	}

	found, err = r.store.StopsBySimilarity(ctx, q, limit)
	if err != nil {
		return nil, StrategyNone, err
	}
	if len(found) == 0 {
		return nil, StrategyNone, nil
	}
	return found, StrategySimilarity, nil
}

// ByID returns the stop with exactly this id.
func (r *Resolver) ByID(ctx context.Context, stopID string) (storage.Stop, bool, error) {
	return r.store.StopByID(ctx, Normalize(stopID))
}

// SearchByName matches only against stop names, ignoring apostrophes.
// An empty query lists stops alphabetically.
func (r *Resolver) SearchByName(ctx context.Context, query string, limit int) ([]storage.Stop, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return r.store.StopsByNameContains(ctx, Normalize(storage.StripApostrophes(query)), limit)
}
