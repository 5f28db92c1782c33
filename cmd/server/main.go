package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/moverra/transit-reservation/internal/config"
	"github.com/moverra/transit-reservation/internal/database"
	"github.com/moverra/transit-reservation/internal/handler"
	"github.com/moverra/transit-reservation/internal/pricecache"
	"github.com/moverra/transit-reservation/internal/queue"
	"github.com/moverra/transit-reservation/internal/repository"
	"github.com/moverra/transit-reservation/internal/router"
	"github.com/moverra/transit-reservation/internal/scheduler"
	"github.com/moverra/transit-reservation/internal/worker"
)

func main() {
	// Load .env when present; a real environment takes precedence.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Repositories over the shared database.
	reservationRepo := repository.NewReservationRepo(db)
	tripRepo := repository.NewTripRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)
	preferenceRepo := repository.NewPreferenceRepo(db)

	// Redis price cache; nil client means readers fall back to MySQL.
	// The two interface variables stay nil unless Redis is reachable so
	// nil checks behave as expected.
	var cache worker.PriceCache
	var readCache handler.PriceCache
	if rdb := config.NewRedisClient(); rdb != nil {
		c := pricecache.New(rdb, 3*cfg.PricingInterval)
		cache = c
		readCache = c
	} else {
		log.Printf("redis unavailable, price cache disabled")
	}

	publisher := queue.NewPublisher(cfg.AMQPURL)
	defer publisher.Close()

	// Background workers, each on its own cadence.
	autoCancel := worker.NewAutoCancelWorker(reservationRepo, notificationRepo, cfg.CancelTimeout, cfg.CancelBatch)
	pricing := worker.NewPricingWorker(tripRepo, cache, cfg.PricingHorizon, cfg.Pricing)
	dispatch := worker.NewDispatchWorker(notificationRepo, preferenceRepo, publisher,
		cfg.DispatchBatch, cfg.DispatchAttempts, cfg.BackoffBase, cfg.BackoffCap)

	sched := scheduler.New()
	sched.Register(autoCancel, cfg.CancelInterval)
	sched.Register(pricing, cfg.PricingInterval)
	sched.Register(dispatch, cfg.DispatchInterval)
	sched.Start(context.Background())

	// Operator API.
	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterOperator(e, handler.NewOperatorHandler(autoCancel, dispatch, reservationRepo, notificationRepo, preferenceRepo, tripRepo, readCache))

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Block until asked to stop, then wind down: workers finish their
	// current item, the HTTP server drains, the broker link closes.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
