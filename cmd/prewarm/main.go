package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/visa2any/fly2any-sub046/internal/adapters/archive"
	"github.com/visa2any/fly2any-sub046/internal/adapters/cache"
	"github.com/visa2any/fly2any-sub046/internal/adapters/database"
	"github.com/visa2any/fly2any-sub046/internal/adapters/memory"
	"github.com/visa2any/fly2any-sub046/internal/adapters/providers/pricing"
	"github.com/visa2any/fly2any-sub046/internal/api/handlers"
	"github.com/visa2any/fly2any-sub046/internal/api/routes"
	"github.com/visa2any/fly2any-sub046/internal/application/services"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/postgres"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/redis"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/observability"
	"github.com/visa2any/fly2any-sub046/internal/scheduler"
	"github.com/visa2any/fly2any-sub046/pkg/config"
	"github.com/visa2any/fly2any-sub046/pkg/secrets"
)

const runLockKey = "prewarm:run-lock"

func main() {
	once := flag.Bool("once", false, "run a single pre-warm pass and exit")
	dryRun := flag.Bool("dry-run", false, "keep coverage in memory and skip price cache writes")
	flag.Parse()

	// Registered first so it runs after every other deferred cleanup.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	// Secrets must be in the environment before config.Load reads it.
	config.LoadEnvFile()
	if res, err := secrets.ApplyVaultSecrets(context.Background(), secrets.VaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Str("path", res.Path).Msg("Failed to load secrets from Vault")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if logFile := observability.NewLogFile(cfg.Log); logFile != nil {
		defer logFile.Close()
		observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env, logFile)
	} else {
		observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
		}
	}

	logger := log.Logger

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	deps := services.PrewarmDependencies{
		Events:     database.NewSearchEventAdapter(pgClient),
		Statistics: database.NewRouteStatisticsAdapter(pgClient),
		Metrics:    metrics,
	}

	breaker := pricing.NewBreakerFetcher(
		pricing.NewHTTPFetcher(cfg.PriceAPI, cfg.Prewarm.Currency),
		cfg.PriceAPI.BreakerMaxFailures,
		cfg.PriceAPI.BreakerOpenTimeout,
	)
	deps.Fetcher = breaker

	var coverage repositories.CacheCoverageRepository
	var quotes handlers.QuoteReader
	if *dryRun {
		coverage = memory.NewCoverageStore()
		logger.Warn().Msg("Dry run: coverage kept in memory, price cache untouched")
	} else {
		coverage = database.NewCacheCoverageAdapter(pgClient)

		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			// Coverage still gets written; only the online price cache and
			// cross-process locking are lost.
			logger.Warn().Err(err).Msg("Redis unavailable, running without price cache and run lock")
		} else {
			defer redisClient.Close()
			priceCache := cache.NewPriceCache(cache.NewRedisAdapter(redisClient))
			deps.PriceCache = priceCache
			quotes = priceCache
			deps.Lock = cache.NewRunLock(redisClient, runLockKey)
		}
	}
	deps.Coverage = coverage

	if cfg.Archive.Enabled() && !*dryRun {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive)
		if err != nil {
			logger.Warn().Err(err).Msg("Report archive disabled")
		} else {
			deps.Archive = archive.NewS3ReportArchive(s3Client, cfg.Archive.Bucket, cfg.Archive.Prefix)
		}
	}

	job := services.NewPrewarmJob(deps, services.PrewarmConfig{
		LookbackDays:      cfg.Prewarm.LookbackDays,
		TopRoutes:         cfg.Prewarm.TopRoutes,
		MaxDatesPerRoute:  cfg.Prewarm.MaxDatesPerRoute,
		DefaultTTLSeconds: cfg.Prewarm.DefaultTTLSeconds,
		Currency:          cfg.Prewarm.Currency,
		LockTTL:           cfg.Prewarm.LockTTL,
		Batch: services.BatchConfig{
			BatchSize:       cfg.Prewarm.BatchSize,
			BatchDelay:      cfg.Prewarm.BatchDelay,
			FetchTimeout:    cfg.Prewarm.FetchTimeout,
			Concurrency:     cfg.Prewarm.Concurrency,
			MaxFailureRate:  cfg.Prewarm.MaxBatchFailureRate,
			MinBatchSamples: cfg.Prewarm.MinBatchSamples,
			ErrorLimit:      cfg.Prewarm.ErrorLimit,
		},
	}, logger)

	if *once {
		report, err := job.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Pre-warm run failed")
			exitCode = 1
			return
		}
		logger.Info().Interface("report", report).Msg("Pre-warm run complete")
		return
	}

	sched := scheduler.New(ctx, logger)
	prewarm := scheduler.NewJob("prewarm", func(ctx context.Context) error {
		_, err := job.Run(ctx)
		return err
	})
	if err := sched.AddJob(cfg.Prewarm.Schedule, prewarm); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Prewarm.Schedule).Msg("Invalid pre-warm schedule")
	}
	sched.Start()
	if cfg.Prewarm.RunOnStart {
		go func() {
			if err := sched.RunNow(prewarm); err != nil {
				logger.Error().Err(err).Msg("Startup pre-warm run failed")
			}
		}()
	}

	router := routes.NewRouter(
		handlers.NewPrewarmHandler(ctx, job, breaker, logger),
		handlers.NewCoverageHandler(coverage, quotes, cfg.Prewarm.Currency),
		logger,
	)
	server := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("schedule", cfg.Prewarm.Schedule).Msg("Pre-warm service started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Status server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Status server shutdown failed")
	}
	sched.Stop(shutdownCtx)
}
