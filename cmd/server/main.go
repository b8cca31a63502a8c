// The outreach API server: campaign triggers, provider webhooks, and
// report queries over HTTP.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/twistylocks/outreach/internal/api"
	"github.com/twistylocks/outreach/internal/attempts"
	"github.com/twistylocks/outreach/internal/campaign"
	"github.com/twistylocks/outreach/internal/compliance"
	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/message"
	"github.com/twistylocks/outreach/internal/outcome"
	"github.com/twistylocks/outreach/internal/pkg/distlock"
	"github.com/twistylocks/outreach/internal/pkg/logger"
	"github.com/twistylocks/outreach/internal/promotion"
	"github.com/twistylocks/outreach/internal/report"
	"github.com/twistylocks/outreach/internal/segment"
	"github.com/twistylocks/outreach/internal/store"
	"github.com/twistylocks/outreach/internal/store/postgres"
	"github.com/twistylocks/outreach/internal/transport"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	loc := cfg.Business.Location()
	logger.SetLevel(logger.ParseLevel(cfg.Server.LogLevel))

	// Store: Postgres in production, in-memory when no database is
	// configured (local trials).
	var st store.Store
	var pg *postgres.Store
	if cfg.Database.URL != "" {
		pg, err = postgres.Open(cfg.Database.URL, loc)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pg.Close()
		st = pg
		log.Println("[Server] Using Postgres store")
	} else {
		st = store.NewMemory()
		log.Println("[Server] No database configured, using in-memory store")
	}

	// Redis backs the attempt counter and the run lock; both degrade to
	// process-local equivalents without it.
	var counter attempts.Counter = attempts.NewMemoryCounter()
	var lockFactory campaign.LockFactory
	if cfg.Redis.URL != "" {
		redisCounter, err := attempts.NewRedisCounterFromURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisCounter.Close()
		counter = redisCounter

		opts, _ := redis.ParseURL(cfg.Redis.URL)
		lockClient := redis.NewClient(opts)
		defer lockClient.Close()
		lockFactory = func(key string, ttl time.Duration) distlock.DistLock {
			return distlock.NewRedisLock(lockClient, key, ttl)
		}
		log.Println("[Server] Using Redis attempt counter and run lock")
	}
	if lockFactory == nil && pg != nil {
		lockFactory = func(key string, _ time.Duration) distlock.DistLock {
			return distlock.NewPGAdvisoryLock(pg.DB(), key)
		}
		log.Println("[Server] Using Postgres advisory run lock")
	}

	var sender transport.Sender = transport.NewTwilioSender(cfg.Transport)
	if cfg.Transport.Mock {
		sender = transport.LogSender{}
		log.Println("[Server] Transport in mock mode")
	}

	runner := campaign.NewRunner(cfg, campaign.Deps{
		Store:      st,
		Counter:    counter,
		Sender:     sender,
		Renderer:   message.NewRenderer(cfg.Business.SalonName, cfg.Business.Phone),
		Gate:       compliance.NewGate(compliance.PolicyFromConfig(cfg.Compliance, loc)),
		Classifier: segment.NewClassifier(segment.ThresholdsFromConfig(cfg.Segmentation)),
		Ranker:     promotion.NewRanker(),
		Lock:       lockFactory,
	})

	tracker := outcome.NewTracker(st, cfg.Compliance)
	aggregator := report.NewAggregator(st, loc)

	handlers := api.NewHandlers(runner, tracker, aggregator, st)
	server := api.NewServer(cfg.Server, handlers)

	go func() {
		log.Printf("[Server] Listening on %s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Server] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Println("[Server] Stopped")
}
