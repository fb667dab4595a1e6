// Package main runs the batch worker: the daily optimizer run and retention,
// either once (for an external scheduler) or as a consumer of the job queue.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inkline/adengine/config"
	"github.com/inkline/adengine/internal/optimizer"
	"github.com/inkline/adengine/internal/sessionlog"
	"github.com/inkline/adengine/internal/settings"
	"github.com/inkline/adengine/internal/snapshot"
	"github.com/inkline/adengine/internal/stats"
	"github.com/inkline/adengine/internal/worker"
	"github.com/inkline/adengine/pkg/clickhouse"
	"github.com/inkline/adengine/pkg/database"
	"github.com/inkline/adengine/pkg/queue"
	"github.com/inkline/adengine/pkg/redis"
	"github.com/inkline/adengine/pkg/storage"
)

func main() {
	once := flag.Bool("once", false, "run the daily optimizer and retention once, then exit")
	day := flag.String("day", "", "day to optimize with -once (YYYY-MM-DD, default yesterday)")
	force := flag.Bool("force", false, "with -once, rerun a day that already has a completed run")
	flag.Parse()

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

	// Without ClickHouse the job falls back to the daily stats.
	var sessions sessionlog.Reader
	if cfg.ClickHouse.Enabled() {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database,
			cfg.ClickHouse.Username, cfg.ClickHouse.Password, logger)
		if err != nil {
			logger.Warn("clickhouse unavailable, snapshots from daily stats", zap.Error(err))
		} else {
			defer conn.Close()
			sessions = sessionlog.NewRepository(conn, cfg.ClickHouse.RetentionDays)
		}
	}

	var archiver stats.Archiver
	if cfg.AWS.Enabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.ArchiveBucket,
			Prefix:               cfg.AWS.ArchivePrefix,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		archiver = s3Client
	} else {
		logger.Warn("AWS_S3_ARCHIVE_BUCKET not set, expired stats are deleted without export")
	}

	statsStore := stats.NewRepository(pool)
	limits := optimizer.DefaultLimits()
	limits.MaxChangesPerRun = cfg.Optimizer.MaxChanges
	job := optimizer.NewJob(
		optimizer.New(limits),
		settings.NewRedisStore(rdb.Client),
		sessions,
		statsStore,
		snapshot.NewRepository(pool),
		optimizer.NewLogRepository(pool, cfg.Optimizer.LogCap),
		optimizer.NewRedisLocker(rdb.Client),
		optimizer.JobConfig{
			MinSessions:  cfg.Optimizer.MinSessions,
			Timeout:      cfg.Optimizer.Timeout,
			SnapshotDays: cfg.Retention.SnapshotDays,
			Location:     cfg.Location,
		},
		logger,
	)
	retention := stats.NewRetention(statsStore, archiver, cfg.Retention.StatsDays, cfg.Location, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(job, retention, jobQueue, logger)

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, cfg.Optimizer.Timeout+time.Minute)
		defer cancel()
		if *day != "" || *force {
			err = processor.Process(runCtx, &queue.Job{Type: queue.JobTypeOptimizerRun, Payload: runPayload(*day, *force)})
		} else {
			err = processor.Daily(runCtx)
		}
		if err != nil {
			logger.Fatal("daily run", zap.Error(err))
		}
		return
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueOptimizer))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.Optimizer.Timeout):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func runPayload(day string, force bool) []byte {
	b, _ := json.Marshal(queue.OptimizerRunPayload{Day: day, Force: force, RequestedBy: "cli"})
	return b
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
