package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/notifier"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/efbdata/impact_dashboard/utils"
	"github.com/efbdata/impact_dashboard/workmgmt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds the wired components behind the HTTP surface. Handlers only run
// once ready is set, after every field below it has been assigned.
type App struct {
	Logger   *logrus.Logger
	Hub      *notifier.Hub
	Workmgmt *workmgmt.Client

	Keys       *keys.Normalizer
	Client     *store.Client
	Jobs       *ingest.JobStore
	Pipeline   *ingest.Pipeline
	Dispatcher *ingest.Dispatcher
	Objects    ingest.ObjectStore
	// Cache is consulted by GET /api/dashboard when set.
	Cache projectionCache

	ready atomic.Bool
}

func newApp(logger *logrus.Logger) *App {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &App{
		Logger:   logger,
		Hub:      notifier.NewHub(64),
		Workmgmt: workmgmt.NewClientFromEnv(),
	}
}

// wire builds the store client and ingestion pipeline over driver. Committed
// changes are audited in the same store and published through publisher.
func (a *App) wire(driver store.Driver, normalizer *keys.Normalizer, publisher notifier.Publisher) {
	a.Keys = normalizer
	recorder := notifier.New(store.NewAuditLog(driver), publisher, a.Logger)
	a.Client = store.NewClient(driver, normalizer, recorder, a.Logger)
	a.Jobs = ingest.NewJobStore(driver)
	a.Pipeline = ingest.NewPipeline(a.Client, a.Jobs, normalizer, ingest.SettingsFromEnv(), a.Logger)
}

func (a *App) Ready() bool {
	return a.ready.Load()
}

func (a *App) markReady() {
	a.ready.Store(true)
}

func loadNormalizer(logger *logrus.Logger) *keys.Normalizer {
	path := config.MetricAliasesFile()
	if path == "" {
		return keys.NewNormalizer(keys.DefaultAliases())
	}
	aliases, err := keys.LoadAliasFile(path)
	if err != nil {
		config.LogError(logger, "server.go", "loadNormalizer", "load alias file", path, err)
		return keys.NewNormalizer(keys.DefaultAliases())
	}
	return keys.NewNormalizer(aliases)
}

// changePublisher fans change events out to the local SSE hub. With Redis the
// hub is fed by a relay so that every instance sees every write.
func changePublisher(ctx context.Context, app *App, rdb *redis.Client) notifier.Publisher {
	var out notifier.MultiPublisher
	if rdb != nil {
		out = append(out, notifier.NewRedisPublisher(rdb, notifier.DefaultChannel))
		go notifier.NewRedisRelay(rdb, notifier.DefaultChannel, app.Hub, app.Logger).Run(ctx)
		if app.Cache != nil {
			out = append(out, cacheInvalidator{cache: app.Cache})
		}
	} else {
		out = append(out, app.Hub)
	}
	if topic := config.ChangesTopic(); topic != "" && config.PubSubConfigured() {
		t, err := config.Topic(ctx, topic)
		if err != nil {
			config.LogError(app.Logger, "server.go", "changePublisher", "pubsub topic", topic, err)
		} else {
			out = append(out, notifier.NewPubSubPublisher(t))
		}
	}
	return out
}

// asyncIngest wires the GCS + Pub/Sub upload path when both are configured.
func asyncIngest(app *App) {
	topic, bucket := config.IngestTopic(), config.GCSBucket()
	if topic == "" || bucket == "" {
		return
	}
	objects, err := utils.NewGCSObjects(bucket)
	if err != nil {
		config.LogError(app.Logger, "server.go", "asyncIngest", "gcs bucket", bucket, err)
		return
	}
	app.Objects = objects
	app.Dispatcher = ingest.NewDispatcher(app.Jobs, objects, ingest.PubSubQueue{Topic: topic})
}

func newRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if user := strings.TrimSpace(c.GetHeader("x-username")); user != "" {
			ctx = utils.SetUsernameInContext(ctx, user)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !app.Ready() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "starting up"})
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	if config.IsProduction() {
		corsConfig.AllowOrigins = config.CORSAllowedOrigins()
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", "x-username")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	r.Use(cors.New(corsConfig))

	if rl := rateLimiterFromEnv(); rl != nil {
		r.Use(rl.RateLimitMiddleware)
	}
	r.Use(customErrorLogger(app.Logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/metrics", app.listMetrics)
	api.GET("/metrics/:section", app.listSectionMetrics)
	api.PUT("/metrics", app.upsertMetrics)
	api.DELETE("/metrics/:section/:metric", app.deleteMetric)

	api.GET("/sections", app.listSections)
	api.PUT("/sections", app.upsertSection)
	api.DELETE("/sections/:section", app.deleteSection)

	api.GET("/dashboard", app.dashboard)
	api.GET("/changes", app.listChanges)
	api.GET("/changes/stream", notifier.StreamHandler(app.Hub, 25*time.Second))

	api.POST("/uploads", app.createUpload)
	api.GET("/uploads", app.listUploads)
	api.GET("/uploads/:id", app.getUpload)
	api.GET("/export", app.export)

	api.GET("/workmgmt/:resource", workmgmt.Handler(app.Workmgmt, app.Logger))

	r.POST("/pubsub/ingest", func(c *gin.Context) {
		if app.Objects == nil {
			// nothing can be fetched without a bucket; let Pub/Sub retry later
			c.Status(http.StatusServiceUnavailable)
			return
		}
		ingest.PushHandler(app.Pipeline, app.Objects, config.GetRedisLock())(c)
	})
	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	app := newApp(logger)
	srv := &http.Server{
		Addr:    ":" + config.Port(),
		Handler: newRouter(app),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	var driver store.Driver
	switch config.StoreDriver() {
	case "memory":
		driver = store.NewDashboardMemoryDriver(models.ShapeVersioned)
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("STORE_DRIVER=memory; data is not persisted")
	default:
		config.ConnectDatabaseWithRetry()
		db := config.GetDB()
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if !config.SkipMigrations() {
			shape, err := store.Migrate(bgCtx, db)
			if err != nil {
				config.LogError(logger, "server.go", "main", "migrate", nil, err)
			} else {
				logger.WithFields(logrus.Fields{"field": "migrations", "shape": shape}).Info("dashboard tables migrated")
			}
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
		driver = store.NewGormDriver(db)
	}

	var rdb *redis.Client
	if config.RedisConfigured() && config.ConnectRedisWithRetry(sigCtx) {
		rdb = config.GetRedisDB()
		app.Cache = redisProjectionCache{}
	}

	normalizer := loadNormalizer(logger)
	app.wire(driver, normalizer, changePublisher(bgCtx, app, rdb))
	asyncIngest(app)
	app.markReady()

	if shape, err := app.Client.Shape(bgCtx); err != nil {
		config.LogError(logger, "server.go", "main", "probe metric shape", nil, err)
	} else {
		logger.WithFields(logrus.Fields{"field": "store", "shape": shape}).Info("metric store ready")
	}
	log.Println("Server started successfully on :" + config.Port())

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the relay first so no new events arrive while draining.
	cancelBackground()
	app.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// RateLimiter is a fixed-window per-IP limiter kept in Redis.
type RateLimiter struct {
	limit  int64
	window time.Duration
}

// rateLimiterFromEnv reads RATE_LIMIT_ENABLED, RATE_LIMIT_MAX_REQUESTS and
// RATE_LIMIT_WINDOW_SECONDS. It returns nil when limiting is off.
func rateLimiterFromEnv() *RateLimiter {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	limit := intEnv("RATE_LIMIT_MAX_REQUESTS", 600)
	window := intEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	return &RateLimiter{limit: int64(limit), window: time.Duration(window) * time.Second}
}

func intEnv(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// RateLimitMiddleware passes requests through while Redis is unavailable.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := config.GetRedisDB()
	if client == nil || c.Request.URL.Path == "/pubsub/ingest" {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}
