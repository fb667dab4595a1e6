// Package main runs the ad engine HTTP server: telemetry ingress, placements,
// the admin API and the live session feed.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inkline/adengine/config"
	"github.com/inkline/adengine/internal/auth"
	"github.com/inkline/adengine/internal/livefeed"
	"github.com/inkline/adengine/internal/middleware"
	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/optimizer"
	"github.com/inkline/adengine/internal/scanner"
	"github.com/inkline/adengine/internal/sessionlog"
	"github.com/inkline/adengine/internal/settings"
	"github.com/inkline/adengine/internal/snapshot"
	"github.com/inkline/adengine/internal/stats"
	"github.com/inkline/adengine/internal/telemetry"
	"github.com/inkline/adengine/pkg/clickhouse"
	"github.com/inkline/adengine/pkg/database"
	"github.com/inkline/adengine/pkg/metrics"
	"github.com/inkline/adengine/pkg/queue"
	"github.com/inkline/adengine/pkg/redis"
	"github.com/inkline/adengine/pkg/response"
	"github.com/inkline/adengine/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Raw session log: ClickHouse when configured, otherwise this process only.
	var (
		sessionSink   telemetry.SessionSink
		sessionReader sessionlog.Reader
		sinkDone      = make(chan struct{})
	)
	if cfg.ClickHouse.Enabled() {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database,
			cfg.ClickHouse.Username, cfg.ClickHouse.Password, logger)
		if err != nil {
			logger.Fatal("clickhouse", zap.Error(err))
		}
		defer conn.Close()
		repo := sessionlog.NewRepository(conn, cfg.ClickHouse.RetentionDays)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("clickhouse schema", zap.Error(err))
		}
		writer := sessionlog.NewWriter(repo, cfg.Ingest.SinkBuffer, cfg.Ingest.SinkBatch, cfg.Ingest.SinkFlush, logger)
		go func() {
			writer.Run(bgCtx)
			close(sinkDone)
		}()
		sessionSink, sessionReader = writer, repo
	} else {
		logger.Warn("CLICKHOUSE_ADDR not set, raw sessions kept in memory")
		mem := sessionlog.NewMemoryLog(2)
		sessionSink, sessionReader = mem, mem
		close(sinkDone)
	}

	var s3Client *storage.S3
	if cfg.AWS.Enabled() {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.ArchiveBucket,
			Prefix:               cfg.AWS.ArchivePrefix,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
		}
	}

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	if err := auth.EnsureAdmin(ctx, authRepo, cfg.Admin.Email, cfg.Admin.Password, logger); err != nil {
		logger.Fatal("seed admin", zap.Error(err))
	}
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Live feed
	pubsub := livefeed.NewRedisPubSub(rdb.Client, logger)
	hub := livefeed.NewHub(logger, pubsub, pubsub)

	// Stores
	statsStore := stats.NewRepository(pool)
	settingsStore := settings.NewRedisStore(rdb.Client)
	snapshotStore := snapshot.NewRepository(pool)
	optimizerLog := optimizer.NewLogRepository(pool, cfg.Optimizer.LogCap)

	// Telemetry
	ingestor := telemetry.NewIngestor(
		telemetry.NewRedisLive(rdb.Client),
		telemetry.NewRedisArchive(rdb.Client, cfg.Ingest.ArchiveCap, cfg.Ingest.ArchiveTTL),
		telemetry.NewRedisLimiter(rdb.Client),
		statsStore,
		sessionSink,
		hub,
		telemetry.Options{
			RateWindow: cfg.Ingest.RateWindow,
			StaleAfter: cfg.Ingest.StaleAfter,
			Location:   cfg.Location,
		},
		logger,
	)
	telemetryHandler := telemetry.NewHandler(ingestor, logger)
	go ingestor.RunSweeper(bgCtx, cfg.Ingest.StaleAfter)

	// Placement
	scan := scanner.NewScanner(settingsStore, scanner.Defaults{
		MinParagraphs: cfg.Scanner.MinParagraphs,
		ParagraphPx:   cfg.Scanner.ParagraphPx,
	}, logger)
	scannerHandler := scanner.NewHandler(scan, logger)

	// Optimizer: manual runs go to the worker queue.
	limits := optimizer.DefaultLimits()
	limits.MaxChangesPerRun = cfg.Optimizer.MaxChanges
	job := optimizer.NewJob(optimizer.New(limits), settingsStore, sessionReader, statsStore, snapshotStore,
		optimizerLog, optimizer.NewRedisLocker(rdb.Client), optimizer.JobConfig{
			MinSessions:  cfg.Optimizer.MinSessions,
			Timeout:      cfg.Optimizer.Timeout,
			SnapshotDays: cfg.Retention.SnapshotDays,
			Location:     cfg.Location,
		}, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	optimizerHandler := optimizer.NewHandler(job, optimizerLog, snapshotStore, jobQueue, logger)

	statsHandler := stats.NewHandler(statsStore, cfg.Location, logger)
	if s3Client != nil {
		statsHandler.WithArchive(s3Client)
	}
	settingsHandler := settings.NewHandler(settingsStore, logger)
	sessionLogHandler := sessionlog.NewHandler(sessionReader, cfg.Location, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger, "/api/telemetry"))

	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(hctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Ping(hctx).Err(); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "live_feed_clients": hub.Count()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public ingress: any publisher page may report.
	public := router.Group("/api", middleware.CORS("*"))
	{
		public.POST("/telemetry/heartbeat", telemetryHandler.Heartbeat)
		public.POST("/telemetry/beacon", telemetryHandler.Beacon)
		public.POST("/telemetry/end", telemetryHandler.End)
		public.POST("/placements", scannerHandler.Place)
		public.POST("/placements/blocks", scannerHandler.PlaceBlocks)
	}

	dashboard := middleware.CORS(cfg.Server.CORSAllowedOrigins)

	authGroup := router.Group("/auth", dashboard)
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/admin/live/ws", livefeed.ServeWs(hub, logger, jwtService.ValidateToken))

	admin := router.Group("/admin", dashboard, middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", authHandler.List)
		admin.POST("/users", authHandler.CreateUser)

		admin.GET("/stats", statsHandler.GetRange)
		admin.GET("/stats/archive", statsHandler.GetArchived)

		admin.GET("/sessions/live", telemetryHandler.Live)
		admin.GET("/sessions/recent", telemetryHandler.Recent)
		admin.GET("/sessions/archive", sessionLogHandler.ListDay)

		admin.GET("/settings", settingsHandler.Get)
		admin.PUT("/settings", settingsHandler.Put)

		admin.GET("/optimizer/log", optimizerHandler.GetLog)
		admin.GET("/optimizer/snapshots", optimizerHandler.GetSnapshots)
		admin.POST("/optimizer/run", optimizerHandler.Run)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// stop the sweeper and flush buffered sessions after ingress is closed
	bgCancel()
	select {
	case <-sinkDone:
	case <-shutdownCtx.Done():
		logger.Warn("session log flush timed out")
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
