// Package search runs paged aircraft queries with a full-text first,
// substring-fallback strategy.
package search

import (
	"context"
	"log"

	"aircraft_registry/internal/store"
)

// Querier is the slice of the store the engine needs.
type Querier interface {
	SearchAircraft(ctx context.Context, params store.SearchParams, mode store.TextMatchMode) (*store.SearchResult, error)
	IsFullTextUnavailable(err error) bool
}

// Engine wraps a store with the text-match fallback policy.
type Engine struct {
	store  Querier
	logger *log.Logger
}

func New(st Querier, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: st, logger: logger}
}

// Search attempts the full-text predicate first. If the store reports the
// specific full-text-unavailable condition and a text filter was present, the
// whole query is retried once with substring matching. Any other error
// propagates unchanged.
func (e *Engine) Search(ctx context.Context, params store.SearchParams) (*store.SearchResult, error) {
	res, err := e.store.SearchAircraft(ctx, params, store.MatchFullText)
	if err == nil {
		return res, nil
	}
	if params.HasTextFilter() && e.store.IsFullTextUnavailable(err) {
		e.logger.Printf("[search] full-text unavailable, falling back to substring match: %v", err)
		return e.store.SearchAircraft(ctx, params, store.MatchSubstring)
	}
	return nil, err
}
