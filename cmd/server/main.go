package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/betting"
	"github.com/betarena/market-engine/internal/config"
	"github.com/betarena/market-engine/internal/database"
	"github.com/betarena/market-engine/internal/exposure"
	"github.com/betarena/market-engine/internal/logging"
	"github.com/betarena/market-engine/internal/metrics"
	"github.com/betarena/market-engine/internal/scheduler"
	"github.com/betarena/market-engine/internal/seed"
	"github.com/betarena/market-engine/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Logging, "market-engine"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		if err := database.Migrate(ctx, pool); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis.url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.TTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.TTL)
		}
	} else {
		slog.Warn("database.url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Stake limits ---
	limiter := exposure.NewStakeLimiter(
		decimal.NewFromInt(cfg.Limits.MaxStakePerContract),
		decimal.NewFromInt(cfg.Limits.MaxStakePerCategory),
	)

	// --- WebSocket hub ---
	wsHub := betting.NewWSHub()
	go wsHub.Run(ctx)

	// --- Betting service ---
	svc := betting.NewService(st, betting.Config{
		InitialLiquidity:  decimal.NewFromInt(cfg.Market.InitialLiquidity),
		StartingBalance:   decimal.NewFromInt(cfg.Market.StartingBalance),
		MinBet:            decimal.NewFromInt(cfg.Market.MinBet),
		MaxBet:            decimal.NewFromInt(cfg.Market.MaxBet),
		SettlementWorkers: cfg.Settlement.Workers,
	}, limiter, wsHub)

	if cfg.Seed.Path != "" {
		if _, err := seed.LoadAndApply(ctx, svc, cfg.Seed.Path); err != nil {
			slog.Error("seed failed", "path", cfg.Seed.Path, "err", err)
			os.Exit(1)
		}
	}

	// --- Rank reconciler ---
	sched := scheduler.New(svc, cfg.Ranking.ReconcileCron)
	if err := sched.Reconcile(ctx); err != nil {
		slog.Warn("initial reconcile failed", "err", err)
	}
	if cfg.Ranking.ReconcileCron != "" {
		if err := sched.Start(); err != nil {
			slog.Error("scheduler start failed", "err", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time contract updates.
		r.Get("/ws", wsHub.HandleWS)

		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("market-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-engine stopped")
}
