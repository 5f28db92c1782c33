// Package pricecache mirrors the live trip fares into Redis.  The
// pricing worker writes each recomputed snapshot with a single SET, so
// reservation-path readers always observe a complete value; readers
// fall back to the trips table on a miss.  Entries carry a TTL a few
// ticks long so stale prices age out if the worker stops.
package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moverra/transit-reservation/internal/model"
)

// entry is the JSON document stored per trip.
type entry struct {
	TripID            uint64    `json:"trip_id"`
	CurrentPriceCents int64     `json:"current_price_cents"`
	BasePriceCents    int64     `json:"base_price_cents"`
	OccupancyRatio    float64   `json:"occupancy_ratio"`
	RecomputedAt      time.Time `json:"recomputed_at"`
}

// Cache is a Redis-backed mirror of current trip prices.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a Cache writing entries with the given TTL.  The client
// must be non-nil; callers that failed to connect to Redis should skip
// constructing a Cache and run without one.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(tripID uint64) string { return fmt.Sprintf("price:trip:%d", tripID) }

// Put replaces the cached price for one trip atomically.
func (c *Cache) Put(ctx context.Context, state model.TripPricingState) error {
	doc, err := json.Marshal(entry{
		TripID:            state.TripID,
		CurrentPriceCents: state.CurrentPriceCents,
		BasePriceCents:    state.BasePriceCents,
		OccupancyRatio:    state.OccupancyRatio,
		RecomputedAt:      state.RecomputedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal price entry: %w", err)
	}
	if err := c.rdb.Set(ctx, key(state.TripID), doc, c.ttl).Err(); err != nil {
		return fmt.Errorf("set price entry: %w", err)
	}
	return nil
}

// Get returns the cached price snapshot for a trip.  The boolean is
// false on a miss or an unreadable entry; callers then read the row.
func (c *Cache) Get(ctx context.Context, tripID uint64) (model.TripPricingState, bool) {
	raw, err := c.rdb.Get(ctx, key(tripID)).Bytes()
	if err != nil {
		return model.TripPricingState{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.TripPricingState{}, false
	}
	return model.TripPricingState{
		TripID:            e.TripID,
		CurrentPriceCents: e.CurrentPriceCents,
		BasePriceCents:    e.BasePriceCents,
		OccupancyRatio:    e.OccupancyRatio,
		RecomputedAt:      e.RecomputedAt,
	}, true
}
