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

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/app"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/config"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/db"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/listing"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/obs"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/payment"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var mongoDB *mongo.Database
	if cfg.ListingStore == config.StoreMongo {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mongoDB, err = listing.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
		cancel()
		if err != nil {
			logger.Error("failed to connect to mongo", "error", err)
			os.Exit(1)
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoDB.Client().Disconnect(disconnectCtx)
		}()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = listing.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	container, err := app.NewContainer(app.Config{
		IsProduction:     cfg.IsProduction,
		ProdOrigins:      cfg.ProdOrigins,
		Logger:           logger,
		DBPool:           pool,
		MongoDB:          mongoDB,
		Redis:            redisClient,
		ListingCacheTTL:  cfg.ListingCacheTTL,
		ReservationStore: cfg.ReservationStore,
		ListingStore:     cfg.ListingStore,
		JWTSecret:        cfg.JWTSecret,
		JWTTTL:           cfg.JWTAccessTokenTTL,
		BcryptCost:       cfg.BcryptCost,
		Gateway:          payment.NewStripeGateway(cfg.StripeSecretKey, logger),
		PaymentTimeout:   cfg.PaymentTimeout,
		SweepSchedule:    cfg.SweepSchedule,
		PendingTTL:       cfg.PendingTTL,
	})
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	container.Sweeper.Start()

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           container.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Run server in separate goroutine
	go func() {
		logger.Info("server running", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	container.Sweeper.Stop(shutdownCtx)

	logger.Info("server exited gracefully")
}
