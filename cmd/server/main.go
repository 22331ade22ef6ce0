package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leadcrm/leadcrm/internal/api"
	"github.com/leadcrm/leadcrm/internal/auth"
	"github.com/leadcrm/leadcrm/internal/buildconfig"
	"github.com/leadcrm/leadcrm/internal/config"
	"github.com/leadcrm/leadcrm/internal/domain"
	"github.com/leadcrm/leadcrm/internal/session"
	"github.com/leadcrm/leadcrm/internal/store"
	"github.com/leadcrm/leadcrm/internal/token"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func run(ctx context.Context, logger *zap.Logger) error {
	codec, err := token.NewCodec([]byte(config.JWTSecret()))
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}
	tokens := token.NewService(codec,
		token.WithAccessTTL(config.AccessTokenTTL()),
		token.WithRefreshTTL(config.RefreshTokenTTL()),
	)

	deps := api.Deps{
		Tokens:         tokens,
		Hasher:         auth.NewHasher(config.BcryptCost()),
		Logger:         logger,
		CORSOrigin:     config.CORSAllowedOrigin(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		LeadCacheTTL:   config.LeadCacheTTL(),
		SecureCookies:  config.CORSAllowedOrigin() != "*",
	}

	closeStores, err := openStores(ctx, logger, &deps)
	if err != nil {
		return err
	}
	defer closeStores()

	closeKV, err := openKV(logger, &deps)
	if err != nil {
		return err
	}
	defer closeKV()

	app := api.NewApp(deps)
	go app.Limiter.Run(ctx, 10*time.Minute)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStores selects PostgreSQL when DATABASE_URL is set and the in-memory
// backend otherwise.
func openStores(ctx context.Context, logger *zap.Logger, deps *api.Deps) (func(), error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		mem := store.NewMemory()
		deps.Tenants, deps.Users, deps.Leads = mem.Tenants(), mem.Users(), mem.Leads()
		return func() {}, nil
	}

	pool, err := store.Connect(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to database")

	deps.Tenants = store.NewTenantStore(pool)
	deps.Users = store.NewUserStore(pool)
	deps.Leads = store.NewLeadStore(pool)
	deps.Health = pool.Ping
	return pool.Close, nil
}

// openKV builds the session and cache storage areas. Redis is shared by
// both scopes when either one selects it.
func openKV(logger *zap.Logger, deps *api.Deps) (func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("close storage", zap.Error(err))
			}
		}
	}

	var rdb *redis.Client
	redisClient := func() *redis.Client {
		if rdb == nil {
			rdb = redis.NewClient(&redis.Options{
				Addr:     config.RedisAddr(),
				Password: config.RedisPassword(),
				DB:       config.RedisDB(),
			})
			closers = append(closers, rdb)
		}
		return rdb
	}

	switch backend := config.SessionBackend(); backend {
	case "memory":
		deps.Sessions = session.NewMemoryStorage()
	case "redis":
		deps.Sessions = session.NewRedisStorage(redisClient(), "leadcrm:")
	case "badger":
		b, err := session.OpenBadgerStorage(config.BadgerDir(), logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, b)
		deps.Sessions = b
	default:
		closeAll()
		return nil, fmt.Errorf("%w: unknown SESSION_BACKEND %q", domain.ErrValidation, backend)
	}

	switch backend := config.CacheBackend(); backend {
	case "memory":
		deps.Cache = session.NewMemoryStorage()
	case "redis":
		deps.Cache = session.NewRedisStorage(redisClient(), "leadcrm:cache:")
	default:
		closeAll()
		return nil, fmt.Errorf("%w: unknown CACHE_BACKEND %q", domain.ErrValidation, backend)
	}

	logger.Info("storage configured",
		zap.String("sessions", config.SessionBackend()),
		zap.String("cache", config.CacheBackend()),
	)
	return closeAll, nil
}
