/**
 * @description
 * Entry point for the development backend. PostgreSQL, Redis and RabbitMQ
 * are all optional: without them the backend keeps accounts in memory,
 * throttles in process and logs session events instead of publishing them.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/matthew-kal/SC---FRONTEND/internal/config"
	"github.com/matthew-kal/SC---FRONTEND/internal/devbackend"
	"github.com/matthew-kal/SC---FRONTEND/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func maskURLForLog(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadBackendConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var accounts devbackend.AccountRepository = devbackend.NewMemoryAccountRepository()
	if cfg.DatabaseURL != "" {
		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to parse database URL", "error", err)
			os.Exit(1)
		}
		dbConfig.MaxConns = 10
		dbConfig.MinConns = 1
		dbConfig.MaxConnLifetime = 30 * time.Minute
		dbConfig.MaxConnIdleTime = 5 * time.Minute
		// Disable prepared statement caching to prevent conflicts behind poolers
		dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()

		repo := devbackend.NewPostgresAccountRepository(dbpool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		accounts = repo
		logger.Info("database connection established")
	} else {
		logger.Info("DATABASE_URL not set, keeping accounts in memory")
	}

	seeds, err := devbackend.ParseSeedAccounts(cfg.SeedAccounts)
	if err != nil {
		logger.Error("invalid seed accounts", "error", err)
		os.Exit(1)
	}
	if err := devbackend.Seed(ctx, accounts, seeds); err != nil {
		logger.Error("failed to seed accounts", "error", err)
		os.Exit(1)
	}

	var limiter devbackend.Limiter = devbackend.NewMemoryLimiter(cfg.PasswordResetLimitPerHour, time.Hour)
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using in-process rate limiting", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using in-process rate limiting", "error", pingErr)
				_ = redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = devbackend.NewRedisLimiter(redisClient, "surgicalm:rate_limit", cfg.PasswordResetLimitPerHour, time.Hour)
				logger.Info("redis rate limiter enabled")
			}
		}
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		logger.Info("connecting to rabbitmq", "url", maskURLForLog(cfg.RabbitMQURL))
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err != nil {
			logger.Warn("failed to connect to rabbitmq; continuing without MQ", "error", err)
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()

	revocations := devbackend.NewRevocationList()
	janitor := devbackend.NewJanitor(revocations, cfg.RevocationPruneSchedule, logger)
	if err := janitor.Start(); err != nil {
		logger.Error("failed to schedule revocation pruning", "error", err)
		os.Exit(1)
	}

	server := devbackend.NewServer(devbackend.Options{
		Accounts:       accounts,
		Tokens:         devbackend.NewTokenIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL()),
		Revocations:    revocations,
		ResetLimiter:   limiter,
		Publisher:      publisher,
		RotateRefresh:  cfg.RotateRefreshTokens,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("dev backend listening", "port", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	<-janitor.Stop().Done()
	logger.Info("dev backend stopped")
}
