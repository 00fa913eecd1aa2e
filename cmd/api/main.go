package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classdesk/internal/attendance"
	"classdesk/internal/auth"
	"classdesk/internal/cloudinary"
	"classdesk/internal/config"
	"classdesk/internal/desk"
	"classdesk/internal/exports"
	"classdesk/internal/httpapi"
	"classdesk/internal/httpmiddleware"
	"classdesk/internal/logging"
	"classdesk/internal/queue"
	"classdesk/internal/schoolapi"
	"classdesk/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Async exports need Postgres; the desk API works without it.
	var exportRepo httpapi.ExportStore
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn("db not reachable, async exports disabled", zap.Error(err))
	} else {
		defer db.Close()
		exportRepo = exports.NewRepository(db.Client)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		// An in-memory queue is only visible to this process, so run the
		// export worker here.
		if db != nil {
			proc := exports.NewProcessor(exports.NewRepository(db.Client), uploader(cfg, log), log)
			go func() {
				if err := exports.Run(ctx, q, proc, log); err != nil {
					log.Error("export worker stopped", zap.Error(err))
				}
			}()
		}
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var deskStore desk.Store
	if cfg.DeskBackend == "memory" {
		deskStore = desk.NewMemoryStore()
	} else {
		deskStore = desk.NewRedisStore(redisClient.Client, "", cfg.DeskTTL)
	}

	remote := schoolapi.New(cfg.SchoolAPIURL, cfg.SchoolTimeout)
	cal := attendance.NewCalendar(cfg.Location())
	desks := desk.NewManager(remote, cal, deskStore, cfg.DeskIdle, log)
	go desks.RunSweeper(ctx, time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil && db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go limiter.RunPruner(ctx, time.Minute)
	v1 := r.Group("/v1", auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer), limiter.GinMiddleware(principalKey))
	httpapi.New(desks, cal, exportRepo, q, log).Register(v1)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("school_api", cfg.SchoolAPIURL))
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
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

func uploader(cfg config.App, log *zap.Logger) exports.Uploader {
	if !cfg.CloudinaryConfigured() {
		log.Warn("cloudinary not configured, async exports will fail")
		return nil
	}
	return cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
}

// principalKey rate-limits per signed-in user, falling back to client IP.
func principalKey(c *gin.Context) string {
	if p, ok := auth.FromContext(c); ok && p.UserID != "" {
		return "user:" + p.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(c)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
