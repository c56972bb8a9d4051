package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"launchkit-core/internal/config"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/infra/api"
	pg "launchkit-core/internal/infra/db/postgres"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/usecase"
)

func main() {
	orgName := flag.String("org", "", "create an org with this name and issue it an API key")
	orgID := flag.String("org-id", "", "explicit id for -org (default: generated)")
	tier := flag.String("tier", string(model.PlanFree), "plan tier for -org")
	adminToken := flag.Bool("admin-token", false, "print a signed admin bearer token")

	flags := config.ParseFlags()
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pg.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	dbCfg := cfg.Database
	dbCfg.MaxConns = 4
	pool, err := pg.NewPgxPool(ctx, dbCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	orgRepo := pg.NewPostgresOrgRepo(pool)
	planUC := usecase.NewPlanUseCase(pg.NewPostgresPlanRepo(pool), orgRepo, logger)

	n, err := planUC.EnsureDefaults(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed plans")
	}
	plans, err := planUC.List(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list plans")
	}
	fmt.Printf("%d plans seeded, %d present:\n", n, len(plans))
	for _, p := range plans {
		fmt.Printf("  - %-10s jobs=%s tokens=%s rate=%.2f¢/1k\n", p.Code, limit(p.MonthlyJobLimit), limit(p.MonthlyTokenLimit), p.RatePer1kTokensCents)
	}

	if *orgName != "" {
		org, err := planUC.CreateOrg(ctx, *orgID, *orgName, model.PlanTier(strings.ToUpper(*tier)))
		if err != nil {
			logger.Fatal().Err(err).Msg("create org")
		}
		env := "live"
		if cfg.Runtime.Dev {
			env = "test"
		}
		keyUC := usecase.NewAPIKeyUseCase(pg.NewAPIKeyRepo(pool), orgRepo, logger, usecase.WithKeyEnv(env))
		issued, err := keyUC.Issue(ctx, org.ID, "seed")
		if err != nil {
			logger.Fatal().Err(err).Msg("issue api key")
		}
		fmt.Printf("org: %s (%s, %s)\napi key: %s\n", org.ID, org.Name, org.PlanTier, issued.Key)
	}

	if *adminToken {
		tok, err := api.NewAdminAuth(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint("seed")
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Printf("admin token (valid %s): %s\n", cfg.Admin.TokenTTL, tok)
	}
}

func limit(v int64) string {
	if v == model.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(v)
}
