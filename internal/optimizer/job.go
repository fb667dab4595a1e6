package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/sessionlog"
	"github.com/inkline/adengine/internal/settings"
	"github.com/inkline/adengine/internal/snapshot"
	"github.com/inkline/adengine/internal/stats"
	"github.com/inkline/adengine/pkg/metrics"
)

// ErrRunInProgress is returned when another invocation holds the run lock.
var ErrRunInProgress = errors.New("optimizer run in progress")

const lockKey = "optimizer:run"

// Skip reasons.
const (
	SkipInsufficientData = "insufficient data"
	SkipTimedOut         = "timed out"
	SkipAlreadyRan       = "already ran for day"
)

// JobConfig tunes the daily job.
type JobConfig struct {
	MinSessions  int
	Timeout      time.Duration
	SnapshotDays int
	Location     *time.Location
}

// Job is the daily snapshot-and-optimize batch.
type Job struct {
	optimizer *Optimizer
	settings  settings.Store
	sessions  sessionlog.Reader
	stats     stats.Store
	snapshots snapshot.Store
	log       LogStore
	locker    Locker
	cfg       JobConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewJob wires the daily job. sessions may be nil, in which case snapshots
// come from the daily stats.
func NewJob(opt *Optimizer, st settings.Store, sessions sessionlog.Reader, statsStore stats.Store,
	snapshots snapshot.Store, log LogStore, locker Locker, cfg JobConfig, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinSessions <= 0 {
		cfg.MinSessions = snapshot.DefaultMinSessions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.SnapshotDays <= 0 {
		cfg.SnapshotDays = snapshot.DefaultHistoryDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Job{
		optimizer: opt,
		settings:  st,
		sessions:  sessions,
		stats:     statsStore,
		snapshots: snapshots,
		log:       log,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Yesterday is the day a scheduled run evaluates.
func (j *Job) Yesterday() string {
	return stats.DayKey(j.now().AddDate(0, 0, -1), j.cfg.Location)
}

// RunOnce evaluates day (yesterday when empty) and writes exactly one log
// entry. Unless force is set a day that already has a completed run is
// skipped. Settings are replaced in one write or not at all.
func (j *Job) RunOnce(ctx context.Context, day string, force bool) (*models.OptimizerLogEntry, error) {
	if day == "" {
		day = j.Yesterday()
	}
	start := j.now()
	entry := models.OptimizerLogEntry{
		ID:        uuid.New(),
		Timestamp: start.UTC(),
		Day:       day,
		Changes:   []models.Change{},
	}

	release, ok, err := j.locker.Acquire(ctx, lockKey, j.cfg.Timeout+30*time.Second)
	if err != nil {
		err = fmt.Errorf("acquire run lock: %w", err)
		j.skip(&entry, "run lock unavailable: "+err.Error())
		if lerr := j.log.Append(context.WithoutCancel(ctx), entry); lerr != nil {
			j.logger.Error("optimizer log append failed", zap.String("day", day), zap.Error(lerr))
		} else {
			metrics.IncOptimizerRun(string(entry.Status))
		}
		return &entry, err
	}
	if !ok {
		j.logger.Warn("optimizer run rejected, another run holds the lock", zap.String("day", day))
		return nil, ErrRunInProgress
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()
	j.evaluate(runCtx, &entry, force)

	if err := j.log.Append(context.WithoutCancel(ctx), entry); err != nil {
		return &entry, fmt.Errorf("append optimizer log: %w", err)
	}
	metrics.IncOptimizerRun(string(entry.Status))
	metrics.ObserveOptimizerDuration(j.now().Sub(start).Seconds())

	if _, err := j.snapshots.Prune(context.WithoutCancel(ctx),
		stats.DayKey(j.now().AddDate(0, 0, -j.cfg.SnapshotDays), j.cfg.Location)); err != nil {
		j.logger.Warn("snapshot prune failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("day", day),
		zap.String("status", string(entry.Status)),
		zap.Int("changes", len(entry.Changes)),
	}
	if entry.SkipReason != "" {
		fields = append(fields, zap.String("reason", entry.SkipReason))
	}
	j.logger.Info("optimizer run finished", fields...)
	return &entry, nil
}

func (j *Job) skip(e *models.OptimizerLogEntry, reason string) {
	e.Status = models.RunSkip
	e.SkipReason = reason
	e.Changes = []models.Change{}
}

func (j *Job) skipErr(ctx context.Context, e *models.OptimizerLogEntry, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		j.skip(e, SkipTimedOut)
	case errors.Is(err, snapshot.ErrInsufficientData):
		j.skip(e, SkipInsufficientData)
	default:
		j.skip(e, err.Error())
	}
}

func (j *Job) evaluate(ctx context.Context, e *models.OptimizerLogEntry, force bool) {
	if !force {
		ran, err := j.log.HasRun(ctx, e.Day)
		if err != nil {
			j.skipErr(ctx, e, fmt.Errorf("check previous run: %w", err))
			return
		}
		if ran {
			j.skip(e, SkipAlreadyRan)
			return
		}
	}

	snap, err := j.snapshot(ctx, e.Day)
	if err != nil {
		j.skipErr(ctx, e, err)
		return
	}
	e.Snapshot = snap
	if err := j.snapshots.Save(ctx, snap); err != nil {
		j.logger.Warn("snapshot save failed", zap.String("day", e.Day), zap.Error(err))
	}

	for attempt := 0; ; attempt++ {
		cur, err := j.settings.Get(ctx)
		if err != nil {
			j.skipErr(ctx, e, fmt.Errorf("load settings: %w", err))
			return
		}
		next, changes := j.optimizer.Run(snap, cur)
		if len(changes) == 0 {
			e.Status = models.RunNoChange
			return
		}
		if err := ctx.Err(); err != nil {
			j.skipErr(ctx, e, err)
			return
		}
		_, err = j.settings.Set(ctx, next)
		if errors.Is(err, settings.ErrConcurrentMutation) && attempt == 0 {
			j.logger.Info("settings changed during optimizer run, retrying", zap.String("day", e.Day))
			continue
		}
		if err != nil {
			j.skipErr(ctx, e, fmt.Errorf("save settings: %w", err))
			return
		}
		e.Status = models.RunOptimized
		e.Changes = changes
		for _, c := range changes {
			metrics.IncOptimizerChange(c.Rule)
		}
		return
	}
}

// snapshot builds the day's snapshot from raw sessions, falling back to the
// daily aggregate when the session log is missing, empty or holds fewer
// sessions than the aggregate counted.
func (j *Job) snapshot(ctx context.Context, day string) (*models.Snapshot, error) {
	var (
		snap *models.Snapshot
		ok   bool
	)
	d, statsErr := j.stats.Get(ctx, day)
	if statsErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if j.sessions != nil {
		list, err := j.sessions.ListByDay(ctx, day, 0)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			j.logger.Warn("session log unavailable, using daily stats", zap.String("day", day), zap.Error(err))
		case len(list) == 0:
		case statsErr == nil && d != nil && int64(len(list)) < d.Sessions:
			j.logger.Warn("session log incomplete, using daily stats", zap.String("day", day),
				zap.Int("logged", len(list)), zap.Int64("aggregated", d.Sessions))
		default:
			events := make([]models.SessionEvent, len(list))
			for i, s := range list {
				events[i] = s.SessionEvent
			}
			snap, ok = snapshot.BuildSnapshot(events, j.cfg.MinSessions)
			if !ok {
				return nil, snapshot.ErrInsufficientData
			}
		}
	}
	if snap == nil {
		if statsErr != nil {
			return nil, fmt.Errorf("load daily stats: %w", statsErr)
		}
		if snap, ok = snapshot.FromDailyStats(d, j.cfg.MinSessions); !ok {
			return nil, snapshot.ErrInsufficientData
		}
	}
	snap.Day = day
	snap.CreatedAt = j.now().UTC()
	return snap, nil
}
