package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
	ticket_db "ms-checkin/internal/tickets/db"
	"ms-checkin/internal/tickets/history"
	ticketlock "ms-checkin/internal/tickets/redis"
	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/tickets/ticket_api"
)

func main() {
	cfg := config.Load()

	logger := logger.NewLogger(logger.Options{
		Dir:     cfg.Log.Dir,
		Service: cfg.Log.Service,
		Level:   cfg.Log.Level,
	})
	defer logger.Close()

	logger.Info("APP", "Starting Check-in Service initialization")
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	sqldb, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer sqldb.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		}, logger)
		if err := runner.RunMigrations(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	bunDB := database.NewBun(sqldb)
	store := &ticket_db.DB{Bun: bunDB}

	ticketService := tickets.NewTicketService(store, logger)
	ticketService.RapidFireWindow = cfg.Scan.RapidFireWindow
	ticketService.MaxAttempts = cfg.Scan.MaxAttempts

	emitter := sse.NewScanEventEmitter()
	handler := ticket_api.NewHandler(ticketService, emitter, logger, cfg.Scan.DefaultScannerIdentity)
	handler.HealthChecks["database"] = store.Ping

	// --- Redis scan lock ---
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
		}
		logger.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

		ticketService.Locker = ticketlock.NewRedis(redisClient, logger, cfg.Redis.LockTTL, cfg.Redis.LockWait)
		handler.HealthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		logger.Warn("REDIS", "Redis disabled, relying on compare-and-set updates only")
	}

	// --- Scan event observers ---
	ticketService.Observers = append(ticketService.Observers, emitter)
	recorder := history.NewRecorder(store)

	if cfg.Kafka.Enabled {
		topic := cfg.Kafka.Topics.TicketScanned
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topic}, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, topic)
		defer producer.Close()
		ticketService.Observers = append(ticketService.Observers, producer)

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topic, cfg.Kafka.GroupID, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx, recorder.Record); err != nil {
				logger.Error("KAFKA", fmt.Sprintf("Scan history consumer stopped: %v", err))
			}
		}()
		logger.Info("KAFKA", fmt.Sprintf("Publishing scan events to %s", topic))
	} else {
		ticketService.Observers = append(ticketService.Observers, recorder)
		logger.Info("APP", "Kafka disabled, recording scan history directly")
	}

	// --- Auth ---
	var verifier auth.Verifier
	switch {
	case cfg.Auth.Skip:
		logger.Warn("AUTH", "Authentication disabled (SKIP_AUTH=true)")
	case cfg.Auth.OIDCIssuer != "":
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			logger.Fatal("AUTH", err.Error())
		}
		verifier = v
		logger.Info("AUTH", fmt.Sprintf("Verifying scanner tokens against %s", cfg.Auth.OIDCIssuer))
	default:
		verifier = auth.NewHMACVerifier(cfg.Auth.JWTSecret)
		logger.Info("AUTH", "Verifying scanner tokens with shared HMAC secret")
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      ticket_api.NewRouter(handler, verifier, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Check-in Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	// Flush pending scan events before the producer is closed.
	ticketService.Drain()
	logger.Info("HTTP", "Check-in Service shutdown complete")
}
