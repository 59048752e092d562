package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"vault/internal/config"
	"vault/internal/db"
	"vault/internal/didresolver"
	"vault/internal/observability/logging"
	"vault/internal/observability/metrics"
	"vault/internal/ratelimit"
	"vault/internal/reporter"
	"vault/internal/service"
	"vault/internal/sigverify"
	"vault/internal/store"
	httpx "vault/internal/transport/http"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logging.NewLogger(logging.Config{
		ServiceName: "vault",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("vault")

	if err := run(cfg, logger); err != nil {
		logger.Error("vault stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) DB
	h, err := db.Open(ctx, db.Config{DSN: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, LogSQL: cfg.DBLogSQL})
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer h.Close()

	st := store.New(h.Gorm)
	if cfg.AutoMigrate {
		if err := st.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
	}

	// 2) Services
	schemes := sigverify.Default()
	tokens := service.NewTokens(service.TokenConfig{TTL: cfg.TokenTTL, AllowAnonymous: cfg.AllowAnonymous}, st, schemes)
	registry := service.NewRegistry(st)
	ledger := service.NewLedger(st, schemes)

	var limiter ratelimit.Limiter = ratelimit.NewStoreLimiter(st)
	if cfg.RateLimitBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		limiter = ratelimit.NewRedisLimiter(rdb)
	}

	rep := reporter.New(reporter.Config{
		URL:        cfg.LogURL,
		User:       cfg.LogUser,
		Password:   cfg.LogPassword,
		App:        "vault",
		Attempts:   cfg.LogAttempts,
		RetryDelay: cfg.LogRetryDelay,
	}, logger)

	// 3) HTTP router
	router := httpx.NewRouter(httpx.Deps{
		Tokens:   tokens,
		Registry: registry,
		Ledger:   ledger,
		Limiter:  limiter,
		Resolver: didresolver.Ethr{ChainID: cfg.EthrChainID},
		Reporter: rep,
		Logger:   logger,
	}, httpx.Options{
		CORSOrigins:     cfg.CORSOrigins,
		GlobalRateLimit: cfg.GlobalRateLimit,
		TrustProxy:      cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("vault listening", "addr", srv.Addr, "rate_limit_backend", cfg.RateLimitBackend)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// In-flight requests finish before the pool is closed by the deferred Close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
