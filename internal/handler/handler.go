package handler

import (
	"context"
	"log/slog"
	"time"

	"tfibus/internal/realtime"
	"tfibus/internal/stops"
)

// ArrivalSource yields live arrivals for a stop. *realtime.Arrivals
// implements it.
type ArrivalSource interface {
	ForStop(ctx context.Context, stopID string) []realtime.Arrival
}

// StoreStatus reports registry health for /api/health.
type StoreStatus interface {
	CountStops(ctx context.Context) (int, error)
	Backend() string
}

// Limits are the per-endpoint result caps.
type Limits struct {
	Search  int // /api/stops
	Find    int // /api/stops/find
	NearMax int // /api/stops/near
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	resolver *stops.Resolver
	arrivals ArrivalSource
	store    StoreStatus
	limits   Limits
	feedTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Handler.
func New(resolver *stops.Resolver, arrivals ArrivalSource, store StoreStatus, limits Limits, feedTTL time.Duration, logger *slog.Logger) *Handler {
	if limits.Search <= 0 {
		limits.Search = stops.DefaultLimit
	}
	if limits.Find <= 0 {
		limits.Find = 20
	}
	if limits.NearMax <= 0 {
		limits.NearMax = 100
	}
	if feedTTL <= 0 {
		feedTTL = realtime.DefaultTTL
	}
	return &Handler{
		resolver: resolver,
		arrivals: arrivals,
		store:    store,
		limits:   limits,
		feedTTL:  feedTTL,
		logger:   logger,
		now:      time.Now,
	}
}
