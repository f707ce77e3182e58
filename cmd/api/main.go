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

	"outreach-platform/internal/auth"
	"outreach-platform/internal/config"
	"outreach-platform/internal/dialer"
	"outreach-platform/internal/history"
	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/jobs"
	"outreach-platform/internal/journey"
	"outreach-platform/internal/leads"
	"outreach-platform/internal/messaging"
	"outreach-platform/internal/telephony"
	"outreach-platform/internal/tenants"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/utils"

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

	if cfg.IsProduction() {
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

	// Persistence
	journeyRepo := journey.NewPostgresRepo(db)
	leadRepo := leads.NewPostgresRepo(db)
	tenantRepo := tenants.NewPostgresRepo(db)
	historyRepo := history.NewPostgresRepo(db)
	dialerRepo := dialer.NewPostgresRepo(db)

	tenantSvc := tenants.NewService(tenantRepo)
	historySvc := history.NewService(historyRepo)
	journeySvc := journey.NewService(journeyRepo)
	dialerSvc := dialer.NewService(dialerRepo, rdb, log)

	// Provider adapters
	pbx := telephony.NewPBXClient(telephony.PBXConfig{
		BaseURL: cfg.Providers.PBXBaseURL,
		APIKey:  cfg.Providers.PBXAPIKey,
		Timeout: cfg.Providers.RequestTimeout,
	})
	agents := telephony.NewCachedStatusProvider(pbx, rdb, cfg.Dialer.AgentStatusTTL)
	// All tenants share the platform gateway credentials for now; the
	// per-tenant cache is the seam for tenant-owned credentials.
	senders := messaging.NewTenantSenders(func(ctx context.Context, tenantID string) (*messaging.GatewayClient, error) {
		return messaging.NewGatewayClient(messaging.GatewayConfig{
			BaseURL: cfg.Providers.MessagingBaseURL,
			APIKey:  cfg.Providers.MessagingAPIKey,
			Timeout: cfg.Providers.RequestTimeout,
		}), nil
	})

	// Step action executors
	registry := journey.NewRegistry()
	registry.RegisterBuiltins(leadRepo)
	registry.Register(journey.ActionCall, dialer.NewCallExecutor(tenantSvc, dialerRepo, pbx, log))
	registry.Register(journey.ActionSMS, messaging.NewSMSExecutor(senders))
	registry.Register(journey.ActionEmail, messaging.NewEmailExecutor(senders))
	registry.Register(journey.ActionWebhook, messaging.NewWebhookExecutor(cfg.Providers.RequestTimeout))

	// Background workers
	enroller := journey.NewEnroller(journeyRepo, leadRepo, tenantSvc, log)
	dispatcher := journey.NewDispatcher(journeyRepo, leadRepo, registry, historySvc, tenantSvc, log, journey.DispatcherConfig{
		BatchSize:   cfg.Journey.ClaimBatchSize,
		MaxAttempts: cfg.Journey.MaxAttempts,
		BackoffBase: cfg.Journey.BackoffBase,
		BackoffCap:  cfg.Journey.BackoffCap,
	})
	pacer := dialer.NewPacer(tenantSvc, leadRepo, dialerRepo, agents, pbx, rdb, log, dialer.PacerConfig{
		PlacementDelay:    cfg.Dialer.PlacementDelay,
		AttemptCooldown:   cfg.Dialer.AttemptCooldown,
		ConcurrencyCapTTL: cfg.Dialer.ConcurrencyCapTTL,
	})

	runner := jobs.NewRunner(log)
	mustRegister := func(name string, every time.Duration, tick jobs.TickFunc) {
		if err := runner.Register(name, every, tick); err != nil {
			log.Error("job registration failed", "job", name, "err", err)
			os.Exit(1)
		}
	}
	mustRegister("journey-enroll", cfg.Journey.EnrollInterval, enroller.Sweep)
	mustRegister("journey-dispatch", cfg.Journey.DispatchInterval, dispatcher.Tick)
	mustRegister("dial-pace", cfg.Dialer.PaceInterval, pacer.Tick)
	runner.Start()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Journeys: journeySvc,
		Enroller: enroller,
		Dialer:   dialerSvc,
		Tenants:  tenantSvc,
		History:  historySvc,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

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
	runner.Stop(shutdownCtx)

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
