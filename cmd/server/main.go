package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/openmave/mavemeter/internal/apperr"
	"github.com/openmave/mavemeter/internal/cache"
	"github.com/openmave/mavemeter/internal/config"
	"github.com/openmave/mavemeter/internal/middleware"
	"github.com/openmave/mavemeter/internal/monitoring"
	"github.com/openmave/mavemeter/internal/ratelimit"
	"github.com/openmave/mavemeter/internal/security"
	"github.com/openmave/mavemeter/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := store.NewDB(cfg.Server.DataDir)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer apperr.SafeClose(db, "run database")

	runStore := store.NewStore(db)

	redisClient, err := ratelimit.NewRedisClient(
		cfg.Server.RedisAddr, cfg.Server.RedisPassword, cfg.Server.RedisDB)
	if err != nil {
		// Degraded but functional: the limiter falls back to in-memory.
		slog.Warn("redis unavailable", "error", err)
	}
	defer apperr.SafeClose(redisClient, "redis client")

	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMin = cfg.Server.RateLimitPerMin
	limiter := ratelimit.NewLimiter(redisClient, limiterCfg, appMetrics)

	srvDeps := &serverDeps{
		cfg:     cfg,
		store:   runStore,
		db:      db,
		redis:   redisClient,
		limiter: limiter,
		metrics: appMetrics,
		logger:  appLogger,
	}
	router := buildRouter(srvDeps)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited")
}

type serverDeps struct {
	cfg     *config.Config
	store   *store.Store
	db      *store.DB
	redis   *ratelimit.RedisClient
	limiter *ratelimit.Limiter
	metrics *monitoring.Metrics
	logger  *monitoring.Logger

	runCache   *cache.Cache
	compressor *middleware.Compressor
}

// buildRouter wires middleware and routes. Split out from main so tests can
// drive the full stack in-process.
func buildRouter(deps *serverDeps) *gin.Engine {
	if deps.runCache == nil {
		deps.runCache = cache.New(15 * time.Minute)
	}
	if deps.compressor == nil {
		deps.compressor = middleware.NewCompressor(6)
	}

	r := gin.New()
	r.MaxMultipartMemory = deps.cfg.Server.MaxRequestBytes

	r.Use(monitoring.Middleware(deps.metrics, deps.logger))
	r.Use(apperr.ErrorHandler())
	r.Use(apperr.RecoveryHandler())
	r.Use(security.Headers(os.Getenv("ENABLE_HSTS") == "true"))
	r.Use(deps.compressor.Handler())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = deps.cfg.Server.AllowOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-Request-ID")
	r.Use(cors.New(corsConfig))

	h := newHandlers(deps)

	r.GET("/health", h.health)
	r.GET("/metrics", h.metricsStats)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.Use(deps.limiter.Middleware())
	{
		api.POST("/integrate", deps.runCache.Middleware(deps.metrics), h.integrate)
		api.GET("/runs", h.listRuns)
		api.GET("/runs/:id", h.getRun)
		api.GET("/runs/:id/variants", h.getRunVariants)
		api.GET("/runs/:id/highlights", h.getRunHighlights)
	}

	return r
}
