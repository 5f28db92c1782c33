package worker

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/moverra/transit-reservation/internal/config"
	"github.com/moverra/transit-reservation/internal/model"
)

// TripStore is the slice of the trip repository the pricing worker needs.
type TripStore interface {
	FindActiveWithinHorizon(ctx context.Context, horizon time.Duration) ([]model.TripPricingState, error)
	ReplacePricing(ctx context.Context, state model.TripPricingState) error
}

// PriceCache mirrors recomputed prices into a fast read path for the
// reservation-creation flow.  Optional: a nil cache disables mirroring.
type PriceCache interface {
	Put(ctx context.Context, state model.TripPricingState) error
}

// PricingWorker recomputes the live fare of every trip departing within
// the configured horizon.  The price itself comes from ComputePrice,
// which is pure, so a tick is idempotent: recomputing with unchanged
// occupancy and time inputs writes the same value.  Each trip's
// snapshot is replaced in one atomic write; a failure on one trip is
// logged and the rest of the batch proceeds.
type PricingWorker struct {
	store   TripStore
	cache   PriceCache
	horizon time.Duration
	rules   config.PricingRules
	now     func() time.Time
}

// NewPricingWorker constructs the worker.  cache may be nil when Redis
// is unavailable; prices are then served from the trips table alone.
func NewPricingWorker(store TripStore, cache PriceCache, horizon time.Duration, rules config.PricingRules) *PricingWorker {
	return &PricingWorker{
		store:   store,
		cache:   cache,
		horizon: horizon,
		rules:   rules,
		now:     time.Now,
	}
}

// Name implements scheduler.Job.
func (w *PricingWorker) Name() string { return "pricing" }

// RunTick implements scheduler.Job.
func (w *PricingWorker) RunTick(ctx context.Context) {
	trips, err := w.store.FindActiveWithinHorizon(ctx, w.horizon)
	if err != nil {
		log.Printf("pricing: fetch trips failed: %v", err)
		return
	}
	for _, trip := range trips {
		if ctx.Err() != nil {
			return
		}
		w.repriceOne(ctx, trip)
	}
}

// repriceOne recomputes and stores the price of a single trip.
func (w *PricingWorker) repriceOne(ctx context.Context, trip model.TripPricingState) {
	now := w.now().UTC()
	hours := trip.DepartsAt.Sub(now).Hours()
	price, err := ComputePrice(trip.BasePriceCents, trip.OccupancyRatio, hours, w.rules)
	if err != nil {
		// Config error (bad bounds, bad base price): loud log, skip the
		// trip, keep the worker alive.
		log.Printf("pricing: trip %d: %v", trip.TripID, err)
		return
	}
	trip.CurrentPriceCents = price
	trip.RecomputedAt = now
	if err := w.store.ReplacePricing(ctx, trip); err != nil {
		log.Printf("pricing: store price for trip %d failed: %v", trip.TripID, err)
		return
	}
	if w.cache != nil {
		if err := w.cache.Put(ctx, trip); err != nil {
			// The row is authoritative; a cache miss only costs readers a
			// database round trip.
			log.Printf("pricing: cache price for trip %d failed: %v", trip.TripID, err)
		}
	}
}

// ComputePrice derives the current fare from the base price, the
// occupancy ratio and the hours remaining until departure.  It is a
// pure function: identical inputs always yield the identical price.
//
// The multiplier starts at 1.0, grows linearly with occupancy
// (OccupancyWeight per unit of occupancy) and gains the largest
// applicable time bump from the rules table as departure approaches.
// The result is clamped to [base × floor, base × ceiling], so the fare
// never undercuts the base fare floor nor overshoots the ceiling.
func ComputePrice(basePriceCents int64, occupancy, hoursToDeparture float64, rules config.PricingRules) (int64, error) {
	if basePriceCents <= 0 {
		return 0, fmt.Errorf("base price must be positive, got %d", basePriceCents)
	}
	if rules.FloorMultiplier <= 0 || rules.CeilingMultiplier < rules.FloorMultiplier {
		return 0, fmt.Errorf("invalid pricing bounds: floor %.2f ceiling %.2f", rules.FloorMultiplier, rules.CeilingMultiplier)
	}
	if occupancy < 0 {
		occupancy = 0
	}
	if occupancy > 1 {
		occupancy = 1
	}

	mult := 1.0 + rules.OccupancyWeight*occupancy
	// Largest bump whose bound exceeds the remaining hours wins; the
	// table is ordered tightest-first, so stop at the first match.
	for _, tb := range rules.TimeBumps {
		if hoursToDeparture < tb.HoursBelow {
			mult += tb.Bump
			break
		}
	}

	price := float64(basePriceCents) * mult
	floor := float64(basePriceCents) * rules.FloorMultiplier
	ceiling := float64(basePriceCents) * rules.CeilingMultiplier
	price = math.Max(floor, math.Min(ceiling, price))
	return int64(math.Round(price)), nil
}
