// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"launchkit-core/internal/config"
	"launchkit-core/internal/domain/ports/adapter"
	aiAdapters "launchkit-core/internal/infra/adapters/ai"
	"launchkit-core/internal/infra/api"
	"launchkit-core/internal/infra/api/apiv1"
	pg "launchkit-core/internal/infra/db/postgres"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"
	"launchkit-core/internal/infra/queue"
	red "launchkit-core/internal/infra/redis"
	"launchkit-core/internal/infra/sched"
	"launchkit-core/internal/infra/security"
	"launchkit-core/internal/infra/worker"
	"launchkit-core/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// Set via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags & config ----
	flags := config.ParseFlags()
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("role", cfg.Runtime.Role).Bool("dev", cfg.Runtime.Dev).Msg("starting launchkit-core")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	if cfg.Database.AutoMigrate {
		if err := pg.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Encryption ----
	encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	// ---- Work queue ----
	wq := queue.NewRedisQueue(redisClient.Raw(), logger,
		queue.WithPrefix(cfg.Queue.Prefix),
		queue.WithLane(adapter.LaneAIJobs, laneSettings(cfg.Queue.AIJobs)),
		queue.WithLane(adapter.LaneWebhooks, laneSettings(cfg.Queue.Webhooks)),
	)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	orgRepo := pg.NewPostgresOrgRepo(pool)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.TTL, logger)
	jobRepo := pg.NewJobRepo(pool)
	usageRepo := pg.NewUsageRepo(pool)
	endpointRepo := pg.NewWebhookEndpointRepo(pool, encSvc)
	deliveryRepo := pg.NewWebhookDeliveryRepo(pool)
	keyRepo := pg.NewAPIKeyRepo(pool)

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo, orgRepo, logger)
	if cfg.Database.SeedPlans {
		n, err := planUC.EnsureDefaults(ctx)
		if err != nil {
			return fmt.Errorf("seed plans: %w", err)
		}
		if n > 0 {
			logger.Info().Int("count", n).Msg("default plans seeded")
		}
	}
	usageUC := usecase.NewUsageUseCase(orgRepo, planRepo, usageRepo, logger)
	webhookUC := usecase.NewWebhookUseCase(endpointRepo, deliveryRepo, wq, logger)
	jobUC := usecase.NewJobUseCase(jobRepo, usageUC, wq, logger, usecase.WithJobEvents(webhookUC))
	queueUC := usecase.NewQueueUseCase(wq, logger)
	keyEnv := "live"
	if cfg.Runtime.Dev {
		keyEnv = "test"
	}
	keyUC := usecase.NewAPIKeyUseCase(keyRepo, orgRepo, logger, usecase.WithKeyEnv(keyEnv))

	var wg sync.WaitGroup
	role := cfg.Runtime.Role

	// ---- Workers ----
	if role == "worker" || role == "all" {
		registry, err := buildRegistry(ctx, cfg.AI, logger)
		if err != nil {
			return err
		}
		jobProc := worker.NewAIJobProcessor(jobRepo, usageUC, webhookUC, registry, tm, logger)
		hookProc := worker.NewWebhookProcessor(endpointRepo, deliveryRepo, worker.WebhookProcessorConfig{
			Timeout:         cfg.Webhook.Timeout,
			UserAgent:       cfg.Webhook.UserAgent,
			MaxResponseBody: cfg.Webhook.MaxResponseBody,
		}, logger)

		observers := worker.Observers{worker.NewLogObserver(logger), worker.MetricsObserver{}}
		pools := []*worker.LanePool{
			worker.NewLanePool(wq, adapter.LaneAIJobs, jobProc.Handle, logger, poolOptions(cfg.Queue.AIJobs, observers)...),
			worker.NewLanePool(wq, adapter.LaneWebhooks, hookProc.Handle, logger, poolOptions(cfg.Queue.Webhooks, observers)...),
		}
		for _, p := range pools {
			wg.Add(1)
			go func(p *worker.LanePool) {
				defer wg.Done()
				p.Run(ctx)
			}(p)
		}

		maint := sched.NewMaintenanceWorker(cfg.Queue.MaintenanceInterval, wq, jobUC, red.NewLocker(redisClient), logger,
			sched.WithHook(func() { pg.ReportPoolStats(pool) }))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = maint.Run(ctx)
		}()
	}

	// ---- HTTP API ----
	var srv *api.Server
	if role == "api" || role == "all" {
		router := apiv1.NewServer(apiv1.Dependencies{
			Jobs:            jobUC,
			Usage:           usageUC,
			Webhooks:        webhookUC,
			APIKeys:         keyUC,
			Queues:          queueUC,
			Plans:           planUC,
			Admin:           api.NewAdminAuth(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
			Limiter:         red.NewRateLimiter(redisClient),
			Ready:           readiness(pool, redisClient),
			RateLimitPerMin: cfg.HTTP.RateLimitPerMin,
			RequestTimeout:  cfg.HTTP.RequestTimeout,
			AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		}, logger).Router()

		srv = api.NewServer(cfg.HTTP, router, logger)
		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()
		select {
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("http: %w", err)
			}
		case <-time.After(100 * time.Millisecond):
		}
	}

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
	}
	// lane pools finish in-flight tasks before returning
	wg.Wait()
	return nil
}

func laneSettings(l config.LaneConfig) queue.LaneSettings {
	return queue.LaneSettings{
		MaxAttempts: l.MaxAttempts,
		Backoff:     adapter.Backoff{Base: l.BackoffBase, Max: l.BackoffMax},
		Lease:       l.Lease,
	}
}

func poolOptions(l config.LaneConfig, obs worker.Observer) []worker.PoolOption {
	return []worker.PoolOption{
		worker.WithConcurrency(l.Concurrency),
		worker.WithPollInterval(l.PollInterval),
		worker.WithHandlerTimeout(l.HandlerTimeout),
		worker.WithRateLimit(l.RatePerSec, l.RateBurst),
		worker.WithObserver(obs),
	}
}

// buildRegistry uses the configured inference provider, or the mock handlers.
func buildRegistry(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (*worker.Registry, error) {
	ai, err := aiAdapters.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	if ai == nil {
		logger.Info().Float64("delay_scale", cfg.MockDelayScale).Msg("AI provider: mock")
		return worker.MockRegistry(cfg.MockDelayScale, time.Now().UnixNano()), nil
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.DefaultModel).
		Str("openai_key", logging.Redact(cfg.OpenAIKey, false)).Str("gemini_key", logging.Redact(cfg.GeminiKey, false)).
		Msg("AI provider configured")
	return worker.LLMRegistry(ai, cfg.DefaultModel), nil
}

func readiness(pool *pgxpool.Pool, rc *red.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
}
