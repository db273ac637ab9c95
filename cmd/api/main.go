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

	"callcenter-pro/internal/auctionlog"
	"callcenter-pro/internal/auth"
	"callcenter-pro/internal/config"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/rtb/harness"
	"callcenter-pro/internal/targets"
	"callcenter-pro/pkg/logger"
	"callcenter-pro/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
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

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
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

	// Targets: postgres behind a short redis cache.
	targetRepo := targets.NewPostgresRepo(db)
	targetSource := targets.NewCachedSource(targetRepo, rdb, cfg.RTB.TargetCacheTTL, log)

	// Auction records: postgres, optionally streamed to NATS.
	var publisher auctionlog.Publisher
	if cfg.NATS.URL != "" {
		np, nc, err := auctionlog.ConnectNATS(rootCtx, cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			log.Error("nats init failed", "err", err)
			os.Exit(1)
		}
		defer nc.Drain()
		publisher = np
	}
	records := auctionlog.NewService(auctionlog.NewPostgresRepo(db), publisher, log)

	bidder := rtb.NewBidder(&http.Client{Transport: bidTransport()}, cfg.RTB.UserAgent, cfg.RTB.MaxResponseBytes)
	bidder.DefaultTimeout = cfg.RTB.DefaultTimeout
	coordinator := rtb.NewCoordinator(targetSource, bidder, rtb.NewMetrics(prometheus.DefaultRegisterer), log)

	deps := dependencies{
		cfg:         cfg,
		auth:        authManager,
		coordinator: coordinator,
		harness:     harness.New(targetSource, bidder, log),
		records:     records,
		targetCache: targetSource,
		numbers:     targetRepo,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr)
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
}

// bidTransport keeps connections to buyers warm; auctions hit the same endpoints constantly.
func bidTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 512
	t.MaxIdleConnsPerHost = 64
	t.IdleConnTimeout = 90 * time.Second
	t.ResponseHeaderTimeout = 0 // bounded per request by the target timeout
	return t
}
