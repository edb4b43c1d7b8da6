package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/config"
	"dialer-platform/internal/contacts"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/disposition"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/pending"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/telephony"
	"dialer-platform/internal/webhook"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provider, err := telephony.NewTelnyxProvider(cfg.Telnyx)
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}

	registry := pending.NewRegistry()
	sweeper := pending.NewSweeper(registry, cfg.Dialer.SweepInterval, cfg.Dialer.StaleAfter, log)
	sweeper.Start(rootCtx)
	defer sweeper.Stop()

	claim, err := dialer.NewRedisClaim(rdb, cfg.Dialer.RunClaimTTL)
	if err != nil {
		log.Error("run claim init failed", "err", err)
		os.Exit(1)
	}

	contactStore := contacts.NewPostgresStore(db)
	attemptStore := calls.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	controller, err := dialer.NewController(dialer.ControllerConfig{
		Store:           dialer.NewPostgresRunStore(db),
		Contacts:        contactStore,
		Provider:        provider,
		Registry:        registry,
		Claim:           claim,
		Attempts:        attemptStore,
		Audit:           auditSvc,
		Log:             log,
		WebhookURL:      cfg.WebhookURL(),
		AMDTimeout:      cfg.Dialer.AMDTimeout,
		DefaultMaxLines: cfg.Dialer.MaxLinesDefault,
	})
	if err != nil {
		log.Error("dialer init failed", "err", err)
		os.Exit(1)
	}
	// Runs interrupted by the previous process are parked as paused so an
	// operator can resume them from the stored cursor.
	if err := controller.Recover(rootCtx); err != nil {
		log.Error("run recovery failed", "err", err)
		os.Exit(1)
	}

	manualLines := httpapi.RedisLineLimiter{Rdb: rdb}

	webhookHandler := webhook.NewHandler(webhook.Config{
		Registry:    registry,
		Provider:    provider,
		Runs:        controller,
		Log:         log,
		AMDFallback: cfg.Dialer.AMDFallback,
		ReleaseManualLine: func(ctx context.Context, userID string) {
			if err := manualLines.Release(ctx, userID); err != nil {
				log.Warn("manual line release failed", "user_id", userID, "err", err)
			}
		},
	})

	dispositionSvc := disposition.NewService(
		disposition.NewPostgresRepo(db),
		disposition.NewExecutor(contactStore, log),
		contactStore,
		auditSvc,
		log,
	)

	handlers := httpapi.Handlers{
		Auth:         authManager,
		Runs:         controller,
		Dispositions: dispositionSvc,
		Reports:      reporting.NewService(dialer.NewPostgresRunStore(db), attemptStore),
		Provider:     provider,
		Registry:     registry,
		ManualLines:  manualLines,
		Log:          log,
		WebhookURL:   cfg.WebhookURL(),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, webhookHandler, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
