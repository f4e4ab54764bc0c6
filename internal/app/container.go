package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/api"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/auth"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/config"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/listing"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/obs"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/payment"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/reservation"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/user"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction     bool
	ProdOrigins      string
	Logger           *slog.Logger
	DBPool           *pgxpool.Pool
	MongoDB          *mongo.Database // required when ListingStore is mongo
	Redis            *redis.Client   // optional listing cache
	ListingCacheTTL  time.Duration
	ReservationStore string
	ListingStore     string
	JWTSecret        string
	JWTTTL           time.Duration
	BcryptCost       int
	Gateway          payment.Gateway
	PaymentTimeout   time.Duration
	SweepSchedule    string
	PendingTTL       time.Duration
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router     *gin.Engine
	JWTManager *auth.JWTManager
	Sweeper    *reservation.Sweeper
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) (*Container, error) {
	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasher(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	readyChecks := map[string]obs.ReadyCheck{}

	if cfg.DBPool != nil {
		readyChecks["postgres"] = cfg.DBPool.Ping
	}

	// User Module
	userRepo := user.NewPgxRepository(cfg.DBPool)
	userService := user.NewService(userRepo, passwordHasher)

	// Listing Module
	var listingRepo listing.Repository
	switch cfg.ListingStore {
	case config.StoreMongo:
		if cfg.MongoDB == nil {
			return nil, fmt.Errorf("listing store %q needs a mongo database", cfg.ListingStore)
		}
		listingRepo = listing.NewMongoRepository(cfg.MongoDB)
		readyChecks["mongo"] = func(ctx context.Context) error {
			return cfg.MongoDB.Client().Ping(ctx, nil)
		}
	case config.StoreMemory:
		listingRepo = listing.NewMemoryRepository()
	default:
		listingRepo = listing.NewPgxRepository(cfg.DBPool)
	}
	var listingCache api.ListingCache
	if cfg.Redis != nil {
		cached := listing.NewCachedRepository(listingRepo, cfg.Redis, cfg.ListingCacheTTL, cfg.Logger)
		listingRepo, listingCache = cached, cached
		readyChecks["redis"] = func(ctx context.Context) error {
			return cfg.Redis.Ping(ctx).Err()
		}
	}

	// Reservation Module
	var reservationRepo reservation.Repository
	if cfg.ReservationStore == config.StoreMemory {
		reservationRepo = reservation.NewMemoryRepository()
	} else {
		reservationRepo = reservation.NewPgxRepository(cfg.DBPool)
	}

	gateway := cfg.Gateway
	if cfg.PaymentTimeout > 0 {
		gateway = payment.WithTimeout(gateway, cfg.PaymentTimeout)
	}
	reservationService := reservation.NewService(reservationRepo, listingRepo, gateway, cfg.Logger)

	sweeper, err := reservation.NewSweeper(reservationRepo, cfg.SweepSchedule, cfg.Logger,
		reservation.WithPendingTTL(cfg.PendingTTL))
	if err != nil {
		return nil, err
	}

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:       cfg.IsProduction,
		ProdOrigins:        cfg.ProdOrigins,
		Logger:             cfg.Logger,
		UserService:        userService,
		ReservationService: reservationService,
		Sweeper:            sweeper,
		JWTManager:         jwtManager,
		ReadyChecks:        readyChecks,
		ListingCache:       listingCache,
	})

	return &Container{
		Router:     router,
		JWTManager: jwtManager,
		Sweeper:    sweeper,
	}, nil
}
