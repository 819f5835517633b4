package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/estateiq/estateiq/internal/analysis"
	"github.com/estateiq/estateiq/internal/billing"
	"github.com/estateiq/estateiq/internal/config"
	"github.com/estateiq/estateiq/internal/db"
	"github.com/estateiq/estateiq/internal/geocode"
	"github.com/estateiq/estateiq/internal/http/api/front"
	"github.com/estateiq/estateiq/internal/http/middleware"
	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/estateiq/estateiq/internal/objectstore"
	"github.com/estateiq/estateiq/internal/ratelimit"
	internalsettings "github.com/estateiq/estateiq/internal/settings"
	"github.com/estateiq/estateiq/internal/valuation"
	"github.com/estateiq/estateiq/internal/watcher"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.WithFields(describeDSN(dsn)).Info("migrations applied")
	return nil
}

// Services holds the long-lived components behind the HTTP API.
type Services struct {
	DB          *gorm.DB
	JWT         config.JWTConfig
	Service     config.ServiceConfig
	Ledger      *billing.Ledger
	Coordinator *analysis.Coordinator
	Limiter     *ratelimit.Manager
	Metrics     *metrics.Metrics
	Mapbox      *geocode.MapboxClient
	Storage     objectstore.Storage
}

// NewServices builds the service graph from resolved configuration. It applies
// the service settings to the live snapshot.
func NewServices(ctx context.Context, conn *gorm.DB, jwtCfg config.JWTConfig, serviceCfg config.ServiceConfig) (*Services, error) {
	if conn == nil {
		return nil, fmt.Errorf("app: nil db")
	}
	internalsettings.Apply(serviceCfg)

	ledger := billing.NewLedger(conn, nil)
	storage, errStorage := newStorage(ctx, serviceCfg.S3)
	if errStorage != nil {
		return nil, errStorage
	}
	return &Services{
		DB:          conn,
		JWT:         jwtCfg,
		Service:     serviceCfg,
		Ledger:      ledger,
		Coordinator: analysis.NewCoordinator(conn, valuation.NewStubEngine(), ledger),
		Limiter:     ratelimit.NewManager(nil, nil, nil),
		Metrics:     metrics.New(serviceCfg.MetricsPrefix),
		Mapbox:      geocode.NewMapboxClient(serviceCfg.MapboxToken),
		Storage:     storage,
	}, nil
}

// Close releases background resources.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if errClose := s.Limiter.Close(); errClose != nil {
		log.WithError(errClose).Warn("close rate limiter")
	}
}

// newStorage returns the S3 store when a bucket is configured and an in-memory store otherwise.
func newStorage(ctx context.Context, cfg config.S3Config) (objectstore.Storage, error) {
	s3Store, errS3 := objectstore.NewS3Store(ctx, cfg)
	if errS3 == nil {
		return s3Store, nil
	}
	if errors.Is(errS3, objectstore.ErrDisabled) {
		log.Warn("S3_BUCKET_NAME not set, uploads are kept in memory")
		return objectstore.NewMemoryStore(), nil
	}
	return nil, errS3
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(svc *Services) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())
	engine.Use(cors.New(corsConfig(svc.Service.AllowOrigins)))
	engine.Use(svc.Metrics.Middleware())

	var geocoder geocode.Geocoder
	if svc.Mapbox.Enabled() {
		geocoder = svc.Mapbox
	}
	front.RegisterFrontRoutes(engine, svc.DB, svc.JWT, front.Deps{
		Ledger:      svc.Ledger,
		Coordinator: svc.Coordinator,
		Limiter:     svc.Limiter,
		Metrics:     svc.Metrics,
		Geocoder:    geocoder,
		Storage:     svc.Storage,
	})
	engine.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// corsConfig allows the dashboard origins; an empty list allows any origin.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// RunServer boots the portfolio API with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	jwtConfig, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	serviceConfig, err := config.LoadServiceConfig(configPath)
	if err != nil {
		return err
	}
	if serviceConfig.Port == config.DefaultPort && defaultPort > 0 {
		serviceConfig.Port = defaultPort
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	log.WithFields(describeDSN(dsn)).Info("database ready")

	svc, err := NewServices(ctx, conn, jwtConfig, serviceConfig)
	if err != nil {
		return err
	}
	defer svc.Close()

	if backfiller := geocode.NewBackfiller(conn, svc.Mapbox); backfiller != nil {
		backfiller.Start(ctx)
	}
	configWatcher := watcher.NewConfigWatcher(configPath, 0, internalsettings.Apply)
	configWatcher.Start(ctx)
	defer configWatcher.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", serviceConfig.Port),
		Handler:           NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting estateiq api on %s with config=%s", srv.Addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}
