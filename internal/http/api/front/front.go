// Package front registers the dashboard API used by signed-in users.
package front

import (
	"net/http"
	"strings"

	"github.com/estateiq/estateiq/internal/analysis"
	"github.com/estateiq/estateiq/internal/billing"
	"github.com/estateiq/estateiq/internal/config"
	"github.com/estateiq/estateiq/internal/geocode"
	"github.com/estateiq/estateiq/internal/http/api/front/handlers"
	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/estateiq/estateiq/internal/models"
	"github.com/estateiq/estateiq/internal/objectstore"
	"github.com/estateiq/estateiq/internal/ratelimit"
	"github.com/estateiq/estateiq/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the services behind the front routes. Nil fields fall back to defaults
// or disable the feature.
type Deps struct {
	Ledger      *billing.Ledger
	Coordinator *analysis.Coordinator
	Limiter     *ratelimit.Manager
	Metrics     *metrics.Metrics
	Geocoder    geocode.Geocoder
	Storage     objectstore.Storage
}

// RegisterFrontRoutes registers user routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, deps Deps) {
	if r == nil || db == nil {
		return
	}
	if deps.Ledger == nil {
		deps.Ledger = billing.NewLedger(db, nil)
	}
	if deps.Coordinator == nil {
		deps.Coordinator = analysis.NewCoordinator(db, nil, deps.Ledger)
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(db, jwtCfg, deps.Ledger)
	r.POST("/auth/signup", authHandler.Signup)
	r.POST("/auth/login", authHandler.Login)

	billingHandler := handlers.NewBillingFrontHandler(db, deps.Ledger, deps.Metrics)
	r.GET("/billing/plans", billingHandler.Plans)

	authed := r.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	authed.GET("/auth/me", authHandler.Me)

	analyzeHandler := handlers.NewAnalyzeHandler(deps.Coordinator, deps.Metrics)
	authed.POST("/analyze",
		handlers.RateLimitMiddleware(deps.Limiter, ratelimit.ScopeAnalyze, deps.Metrics),
		analyzeHandler.Analyze,
	)

	authed.GET("/billing", billingHandler.Get)
	authed.POST("/billing/credits", billingHandler.TopUp)

	propertyHandler := handlers.NewPropertyHandler(db, deps.Geocoder, deps.Metrics)
	authed.POST("/properties", propertyHandler.Create)
	authed.GET("/properties", propertyHandler.List)
	authed.GET("/properties/:id", propertyHandler.Get)

	uploadHandler := handlers.NewUploadHandler(db, deps.Storage, deps.Metrics)
	authed.POST("/uploads",
		handlers.RateLimitMiddleware(deps.Limiter, ratelimit.ScopeUpload, deps.Metrics),
		uploadHandler.Create,
	)
	authed.GET("/uploads", uploadHandler.List)

	reportHandler := handlers.NewReportHandler(db)
	authed.GET("/analyses", reportHandler.Analyses)
	authed.GET("/activity", reportHandler.Activity)
}

// userAuthMiddleware validates user JWTs and loads the user id into the context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var count int64
		if errCount := db.WithContext(c.Request.Context()).
			Model(&models.User{}).
			Where("id = ?", claims.UserID).
			Count(&count).Error; errCount != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
			return
		}
		if count == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		c.Set(handlers.UserIDKey, claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Next()
	}
}
