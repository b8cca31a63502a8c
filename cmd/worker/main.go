// The outreach worker: fires campaign runs at the configured contact slots
// and mails periodic reports to the salon manager.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/twistylocks/outreach/internal/attempts"
	"github.com/twistylocks/outreach/internal/campaign"
	"github.com/twistylocks/outreach/internal/compliance"
	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/message"
	"github.com/twistylocks/outreach/internal/pkg/distlock"
	"github.com/twistylocks/outreach/internal/pkg/logger"
	"github.com/twistylocks/outreach/internal/promotion"
	"github.com/twistylocks/outreach/internal/report"
	"github.com/twistylocks/outreach/internal/segment"
	"github.com/twistylocks/outreach/internal/store"
	"github.com/twistylocks/outreach/internal/store/postgres"
	"github.com/twistylocks/outreach/internal/transport"
)

// campaignID is the standing weekday promotional campaign.
const campaignID = "weekday-promo"

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

	var st store.Store
	var pg *postgres.Store
	if cfg.Database.URL != "" {
		pg, err = postgres.Open(cfg.Database.URL, loc)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pg.Close()
		st = pg
	} else {
		st = store.NewMemory()
		log.Println("[Worker] No database configured, using in-memory store")
	}

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
	}
	if lockFactory == nil && pg != nil {
		lockFactory = func(key string, _ time.Duration) distlock.DistLock {
			return distlock.NewPGAdvisoryLock(pg.DB(), key)
		}
	}

	var sender transport.Sender = transport.NewTwilioSender(cfg.Transport)
	if cfg.Transport.Mock {
		sender = transport.LogSender{}
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New(cron.WithLocation(loc))

	// One campaign trigger per contact slot, weekdays only. The run itself
	// spreads candidates across the remaining slots of the day.
	for _, hour := range cfg.Campaign.SlotHours {
		spec := fmt.Sprintf("0 %d * * 1-5", hour)
		if _, err := scheduler.AddFunc(spec, func() {
			summary, err := runner.Run(ctx, campaignID)
			if errors.Is(err, campaign.ErrRunInProgress) {
				log.Println("[Worker] Skipping slot trigger, run already in progress")
				return
			}
			if err != nil {
				log.Printf("[Worker] Campaign run failed: %v", err)
				return
			}
			log.Printf("[Worker] Slot run done: queued=%d statuses=%v", summary.Queued, summary.StatusCounts)
		}); err != nil {
			log.Fatalf("Bad slot schedule %q: %v", spec, err)
		}
		log.Printf("[Worker] Campaign trigger scheduled at %02d:00 weekdays", hour)
	}

	if cfg.Reports.Enabled {
		scheduleReports(ctx, scheduler, cfg, st, loc)
	}

	scheduler.Start()
	log.Println("[Worker] Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Worker] Shutting down...")

	cancel()
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Println("[Worker] Timed out waiting for jobs to finish")
	}
	log.Println("[Worker] Stopped")
}

func scheduleReports(ctx context.Context, scheduler *cron.Cron, cfg *config.Config, st store.Store, loc *time.Location) {
	aggregator := report.NewAggregator(st, loc)

	var publisher report.Publisher
	if sesPub, err := report.NewSESPublisher(cfg.Reports, cfg.Business.SalonName); err == nil {
		publisher = sesPub
		log.Println("[Worker] Reports will be mailed via SES")
	} else {
		publisher = report.LogPublisher{}
		log.Printf("[Worker] Reports will be logged only: %v", err)
	}

	publish := func(period domain.ReportPeriod) {
		rep, err := aggregator.Summarize(ctx, period, time.Now())
		if err != nil {
			log.Printf("[Worker] %s report failed: %v", period, err)
			return
		}
		if err := publisher.Publish(ctx, rep); err != nil {
			log.Printf("[Worker] %s report not published: %v", period, err)
		}
	}

	if _, err := scheduler.AddFunc(cfg.Reports.DailyCron, func() { publish(domain.PeriodDaily) }); err != nil {
		log.Fatalf("Bad daily report schedule %q: %v", cfg.Reports.DailyCron, err)
	}
	if _, err := scheduler.AddFunc(cfg.Reports.WeeklyCron, func() { publish(domain.PeriodWeekly) }); err != nil {
		log.Fatalf("Bad weekly report schedule %q: %v", cfg.Reports.WeeklyCron, err)
	}
	log.Printf("[Worker] Reports scheduled: daily %q, weekly %q", cfg.Reports.DailyCron, cfg.Reports.WeeklyCron)
}
