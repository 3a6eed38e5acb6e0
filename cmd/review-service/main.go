package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/aggregator"
	"github.com/reviewsight/reviewsight/internal/archive"
	"github.com/reviewsight/reviewsight/internal/cache"
	"github.com/reviewsight/reviewsight/internal/classifier"
	"github.com/reviewsight/reviewsight/internal/config"
	"github.com/reviewsight/reviewsight/internal/consumer"
	"github.com/reviewsight/reviewsight/internal/dispatcher"
	"github.com/reviewsight/reviewsight/internal/enricher"
	"github.com/reviewsight/reviewsight/internal/handler"
	"github.com/reviewsight/reviewsight/internal/hub"
	"github.com/reviewsight/reviewsight/internal/model"
	"github.com/reviewsight/reviewsight/internal/publisher"
	"github.com/reviewsight/reviewsight/internal/service"
	"github.com/reviewsight/reviewsight/internal/storage"
	"github.com/reviewsight/reviewsight/internal/validation"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/reviewsight.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogging(cfg.Log)

	log.Info().Msg("Starting reviewsight...")
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Review store
	var store storage.ReviewStore
	if cfg.Postgres.DSN != "" {
		pg, err := storage.NewPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		store = pg
		log.Info().Msg("PostgreSQL review store initialized")
	} else {
		store = storage.NewMemory()
		log.Warn().Msg("No postgres.dsn configured, reviews are kept in memory")
	}
	defer store.Close()

	// Redis backs the cache mirror and submission rate limit
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis initialized")
	}

	// Classifier and narrator
	var gen classifier.Generator
	if cfg.LLM.APIKey != "" {
		chat, err := classifier.NewChatGenerator(ctx, cfg.LLM)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create chat model")
		}
		gen = chat
		log.Info().Str("model", cfg.LLM.Model).Msg("LLM generator initialized")
	} else {
		log.Warn().Msg("No llm.api_key configured, using heuristic insights only")
	}
	insightClassifier := classifier.New(gen, cfg.LLM.Timeout)
	var narrativeGen classifier.Generator
	if cfg.LLM.Narrative {
		narrativeGen = gen
	}
	narrator := classifier.NewNarrator(narrativeGen, cfg.LLM.Timeout)

	// Cache, hub and dispatcher
	agg := aggregator.New(store, cfg.Pipeline.RecentLimit)
	insightCache := cache.NewStore(service.NewComputeFunc(agg, narrator))
	if rdb != nil {
		insightCache.WithMirror(cache.NewRedisMirror(rdb, 0))
	}

	liveHub := hub.New(cfg.Pipeline.SubscriberBuffer)

	registry := dispatcher.NewRegistry(cfg.Pipeline.JobRetention)
	if err := registry.StartJanitor(cfg.Pipeline.JanitorSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job janitor")
	}
	defer registry.StopJanitor()

	jobs := dispatcher.New(store, insightClassifier, insightCache, liveHub, registry, dispatcher.Config{
		RefreshParallelism: cfg.Pipeline.RefreshParallelism,
		JobDeadline:        cfg.Pipeline.JobDeadline,
	})

	// Best-effort completion side effects
	if cfg.ClickHouse.Addr != "" {
		ch, err := storage.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		defer ch.Close()

		writer := archive.NewWriter(ch, cfg.Batch)
		defer writer.Stop()
		jobs.OnComplete(func(job model.Job, review model.Review) {
			if job.Insight != nil {
				writer.Record(job.ID, review, *job.Insight)
			}
		})
		log.Info().Msg("ClickHouse archive initialized")
	}

	if _, ok := cfg.Kafka.Topics["insights"]; ok && len(cfg.Kafka.Brokers) > 0 {
		pub, err := publisher.NewPublisher(cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka publisher")
		}
		defer pub.Close()
		jobs.OnComplete(func(job model.Job, review model.Review) {
			if err := pub.PublishJob(context.Background(), job, review); err != nil {
				log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish insight event")
			}
		})
		log.Info().Msg("Kafka publisher initialized")
	}

	svc := service.New(store, insightCache, jobs, liveHub, validation.NewRateLimiter(rdb, cfg.RateLimit.RequestsPerSecond))

	if _, ok := cfg.Kafka.Topics["reviews"]; ok && len(cfg.Kafka.Brokers) > 0 {
		kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Kafka, svc)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
		}
		defer kafkaConsumer.Close()
		go kafkaConsumer.Start(ctx)
	}

	clientEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
	defer clientEnricher.Close()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(svc, clientEnricher, cfg.Pipeline.MaxSubmitWait)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: handler.NewRouter(httpHandler),
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Abandoned running jobs")
	}
	log.Info().Msg("Stopped")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.Console {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
