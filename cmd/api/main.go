package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atmsys/atm-backend/internal/api"
	"github.com/atmsys/atm-backend/internal/auth"
	"github.com/atmsys/atm-backend/internal/config"
	"github.com/atmsys/atm-backend/internal/db"
	"github.com/atmsys/atm-backend/internal/logger"
	"github.com/atmsys/atm-backend/internal/metrics"
	"github.com/atmsys/atm-backend/internal/middleware"
	"github.com/atmsys/atm-backend/internal/repository/postgres"
	"github.com/atmsys/atm-backend/internal/services"
	"github.com/atmsys/atm-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, 0)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	store := postgres.NewStore(pool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authSvc := services.NewAuthService(store, tokens)
	ledgerSvc := services.NewLedgerService(store)
	operatorSvc := services.NewOperatorService(store)

	resetJob := services.NewLimitResetJob(store, wp, log, cfg.ResetInterval)
	go resetJob.Run(ctx)

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:         cfg,
		Auth:        middleware.NewAuthMiddleware(tokens),
		AuthSvc:     authSvc,
		LedgerSvc:   ledgerSvc,
		OperatorSvc: operatorSvc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "atm_id", cfg.AtmID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
