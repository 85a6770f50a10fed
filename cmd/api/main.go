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

	"lead-recovery/internal/audit"
	"lead-recovery/internal/auth"
	"lead-recovery/internal/campaign"
	"lead-recovery/internal/config"
	"lead-recovery/internal/httpapi"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/metrics"
	"lead-recovery/internal/reporting"
	"lead-recovery/internal/telephony"
	"lead-recovery/internal/vip"
	"lead-recovery/pkg/logger"
	"lead-recovery/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
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
	loc := cfg.Location()

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	catalog, err := leads.NewCatalog(cfg.Leads.Tables, cfg.Leads.DefaultTable)
	if err != nil {
		log.Error("lead tables invalid", "err", err)
		os.Exit(1)
	}
	leadRepo := leads.NewPostgresRepository(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	tracker, err := campaign.NewRedisTracker(rdb, cfg.Campaign.DedupTTL)
	if err != nil {
		log.Error("campaign tracker init failed", "err", err)
		os.Exit(1)
	}
	limiter := campaign.NoopLimiter()
	if cfg.Campaign.GlobalConcurrency > 0 {
		// A lease outlives the dial, settle wait and status query of one call.
		lease := cfg.Campaign.DialTimeout + cfg.Campaign.SettleDelay + cfg.Campaign.StatusTimeout
		limiter, err = campaign.NewRedisLimiter(rdb, "campaign:voice:slots", cfg.Campaign.GlobalConcurrency, lease)
		if err != nil {
			log.Error("campaign limiter init failed", "err", err)
			os.Exit(1)
		}
	}

	deps := campaign.Deps{
		Leads:   leadRepo,
		Voice:   telephony.NewDisparoClient(cfg.Voice.BaseURL, cfg.Voice.Token),
		SMS:     telephony.NewComteleClient(cfg.SMS.URL, cfg.SMS.AuthKey),
		Tracker: tracker,
		Limiter: limiter,
		Audit:   auditSvc,
		Metrics: metrics.NewCampaign(prometheus.DefaultRegisterer),
	}
	if cfg.VIP.BaseURL != "" {
		deps.VIP = vip.NewClient(cfg.VIP.BaseURL, cfg.VIP.Token, loc)
	}
	orch, err := campaign.NewOrchestrator(deps, campaign.Config{
		AudioID:        cfg.Voice.AudioID,
		CountryCode:    cfg.Campaign.CountryCode,
		SettleDelay:    cfg.Campaign.SettleDelay,
		DialTimeout:    cfg.Campaign.DialTimeout,
		StatusTimeout:  cfg.Campaign.StatusTimeout,
		SMSTimeout:     cfg.Campaign.SMSTimeout,
		VIPTimeout:     cfg.Campaign.VIPTimeout,
		PersistTimeout: cfg.Campaign.PersistTimeout,
		MaxConcurrency: cfg.Campaign.MaxConcurrency,
	})
	if err != nil {
		log.Error("campaign init failed", "err", err)
		os.Exit(1)
	}
	// Batches stop dialing on shutdown; calls already placed are still recorded.
	runner := campaign.NewRunner(rootCtx, orch)
	runner.SetRetention(cfg.Campaign.DedupTTL)

	h := httpapi.Handlers{
		Auth: authManager,
		Reporting: reporting.NewService(leadRepo, catalog, reporting.Options{
			Location: loc,
			PageSize: cfg.Leads.PageSize,
			MaxRows:  cfg.Leads.MaxRows,
		}),
		Campaigns:     runner,
		Dialer:        orch,
		Audit:         auditSvc,
		SecureCookies: cfg.IsProduction(),
		BlastTimeout:  max(cfg.Campaign.DialTimeout, cfg.Campaign.SMSTimeout) + cfg.Campaign.VIPTimeout,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireSession(authManager), func(ctx context.Context) error {
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "timezone", loc.String())
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

	// In-flight pipelines finish their persistence step before the pools close.
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Campaign.PersistTimeout + 10*time.Second):
		log.Warn("campaign batches still running at exit")
	}
}
