package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/storefront/storefront-go/internal/cache"
	"github.com/storefront/storefront-go/internal/clock"
	"github.com/storefront/storefront-go/internal/config"
	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/handler"
	"github.com/storefront/storefront-go/internal/repository"
	"github.com/storefront/storefront-go/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		slog.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	var productCache cache.ProductCache = cache.Nop{}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, product cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisClient.Close()
			productCache = cache.NewRedisProductCache(redisClient, cache.DefaultProductsTTL)
		}
	}

	clk := clock.Real{}
	tokens := crypto.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, clk)

	authService := service.NewAuthService(
		repository.NewAccountRepository(db),
		tokens,
		crypto.NewPasswordHasher(crypto.PasswordCost),
		crypto.NewTokenHasher(crypto.DefaultHashParams()),
		clk,
	)
	productService := service.NewProductService(repository.NewProductRepository(db), productCache, clk)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.NewRouter(ctx, handler.RouterConfig{
			Auth:       authService,
			Products:   productService,
			Tokens:     tokens,
			CORSOrigin: cfg.CORSOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env, "product_cache", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
