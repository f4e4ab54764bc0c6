package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/auth"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/obs"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/pkg/response"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/reservation"
	reservationHttp "github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/reservation/http"
	"github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/user"
	userHttp "github.com/MouhsineNejmi/ecommerce-microservices-sub000/internal/user/http"
)

// Config holds the services and settings the router is assembled from.
type Config struct {
	IsProduction       bool
	ProdOrigins        string
	Logger             *slog.Logger
	UserService        user.Service
	ReservationService reservation.Service
	Sweeper            *reservation.Sweeper
	JWTManager         *auth.JWTManager
	ReadyChecks        map[string]obs.ReadyCheck
	ListingCache       ListingCache // nil when listings are not cached
}

// ListingCache drops cached listing prices.
type ListingCache interface {
	Invalidate(ctx context.Context, listingID string) error
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, logging, auth) and registering routes for each module.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Request ids first so the access log and handlers can see them.
	r.Use(obs.RequestID(), obs.AccessLog(cfg.Logger), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction {
		corsConfig.AllowOrigins = splitOrigins(cfg.ProdOrigins)
	} else {
		corsConfig.AllowOrigins = []string{
			"http://localhost:3000", // Next.js frontend
			"http://localhost:8081", // Swagger
		}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	if len(corsConfig.AllowOrigins) > 0 {
		r.Use(cors.New(corsConfig))
	}

	health := obs.HealthHandlers{Checks: cfg.ReadyChecks, Logger: cfg.Logger}
	r.GET("/livez", health.Livez)
	r.GET("/readyz", health.Readyz)

	authMiddleware := auth.AuthRequired(cfg.JWTManager)

	userHandler := userHttp.NewHandler(cfg.UserService, cfg.JWTManager)
	reservationHandler := reservationHttp.NewHandler(cfg.ReservationService)

	apiGroup := r.Group("/api")
	{
		userHttp.RegisterRoutes(apiGroup, userHandler, authMiddleware)
		reservationHttp.RegisterRoutes(apiGroup, reservationHandler, authMiddleware)

		admin := apiGroup.Group("/admin", authMiddleware, auth.RequireAdmin())
		if cfg.Sweeper != nil {
			admin.POST("/reservations/complete-ended", completeEnded(cfg.Sweeper))
		}
		if cfg.ListingCache != nil {
			admin.DELETE("/listings/:id/cache", invalidateListing(cfg.ListingCache))
		}
	}

	return r
}

// completeEnded runs the completion sweep on demand.
func completeEnded(s *reservation.Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := s.Run(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"completed": ids})
	}
}

// invalidateListing forces the next price lookup to hit the listing store.
func invalidateListing(cache ListingCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cache.Invalidate(c.Request.Context(), c.Param("id")); err != nil {
			response.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
