package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sitekit/internal/apiclient"
	"sitekit/internal/config"
	"sitekit/internal/db"
	apihttp "sitekit/internal/http"
	"sitekit/internal/kvstore"
	"sitekit/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
			redisClient = nil
		}
		cancel()
	}

	backend, closeBackend, err := openBackend(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("open store backend", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeBackend()
	store := kvstore.New(backend, logger, kvstore.WithStaleAfter(cfg.StoreStaleAfter))

	limiter := service.NewLoginRateLimiter(cfg.LoginWindow, cfg.LoginMaxAttempts)
	if redisClient != nil {
		limiter = service.NewRedisLoginRateLimiter(redisClient, cfg.LoginWindow, cfg.LoginMaxAttempts)
	}

	if cfg.TokenSecret == "" {
		logger.Fatal("TOKEN_SECRET is required")
	}
	tokens := service.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)

	var fixtures []service.UserFixture
	if cfg.SeedDemoUsers {
		fixtures = service.DemoUsers()
	}
	if cfg.AdminPassword == "" {
		logger.Warn("admin password not configured; local admin login disabled")
	}
	users, err := service.NewUserDirectory(service.AdminCredential{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	}, fixtures, bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("build user directory", zap.Error(err))
	}

	api := apiclient.NewClient(cfg.APIBaseURL, cfg.APITimeout, &http.Client{}, logger)
	registry := service.NewRegistry(service.RegistryDeps{
		Store:          store,
		Tokens:         tokens,
		Limiter:        limiter,
		API:            api,
		Users:          users,
		Logger:         logger,
		SessionTimeout: cfg.SessionTimeout,
		SessionWarning: cfg.SessionWarning,
		ErrorLogMax:    cfg.ErrorLogMax,
		MaxOrigins:     cfg.OriginMax,
		IdleTTL:        cfg.OriginIdleTTL,
	})

	router := apihttp.NewRouter(
		logger,
		registry,
		apihttp.NewAuthHandler(logger),
		apihttp.NewSiteHandler(logger, service.NewCostCalculator()),
		cfg.CookieSecure,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("api_base_url", cfg.APIBaseURL),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func openBackend(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (kvstore.Backend, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return kvstore.NewMemoryBackend(cfg.StoreQuotaBytes), func() {}, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, errors.New("redis store requires a reachable REDIS_ADDR")
		}
		return kvstore.NewRedisBackend(redisClient, "sitekit:"), func() {}, nil
	case "postgres":
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		backend := kvstore.NewPostgresBackend(pool)
		if err := backend.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("postgres store ready")
		return backend, pool.Close, nil
	default:
		return nil, nil, errors.New("unknown STORE_BACKEND: " + cfg.StoreBackend)
	}
}
