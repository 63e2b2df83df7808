package api

import (
	"context"

	"github.com/neexbeast/travelapi-search/internal/search"
)

// Searcher runs a validated search to completion.
type Searcher interface {
	Search(ctx context.Context, req search.Request) search.Reply
}

// Pinger is satisfied by *pgxpool.Pool and *cache.StaticCache.
type Pinger interface {
	Ping(ctx context.Context) error
}
