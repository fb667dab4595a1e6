package stats

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"
)

// Archiver writes a JSON document to cold storage.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
}

// Retention deletes day records older than the retention window, exporting
// each one to the archiver first when one is configured.
type Retention struct {
	store    Store
	archiver Archiver
	days     int
	loc      *time.Location
	logger   *zap.Logger
}

// NewRetention creates a retention job. archiver may be nil.
func NewRetention(store Store, archiver Archiver, days int, loc *time.Location, logger *zap.Logger) *Retention {
	if logger == nil {
		logger = zap.NewNop()
	}
	if days <= 0 {
		days = 90
	}
	return &Retention{store: store, archiver: archiver, days: days, loc: loc, logger: logger}
}

// ArchiveKey is the object key of an exported day.
func ArchiveKey(day string) string {
	return path.Join("daily-stats", day[:4], day+".json")
}

// Run removes expired days and returns how many were deleted. A day whose
// export fails is kept for the next run.
func (r *Retention) Run(ctx context.Context, now time.Time) (int, error) {
	cutoff := DayKey(now.AddDate(0, 0, -r.days), r.loc)
	days, err := r.store.DaysBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired days: %w", err)
	}
	deleted := 0
	for _, day := range days {
		if r.archiver != nil {
			st, err := r.store.Get(ctx, day)
			if err != nil {
				return deleted, fmt.Errorf("load %s: %w", day, err)
			}
			if st != nil {
				if err := r.archiver.PutJSON(ctx, ArchiveKey(day), st); err != nil {
					r.logger.Warn("stats export failed, keeping day", zap.String("day", day), zap.Error(err))
					continue
				}
			}
		}
		if err := r.store.Delete(ctx, day); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", day, err)
		}
		deleted++
	}
	if deleted > 0 {
		r.logger.Info("expired daily stats removed", zap.Int("days", deleted), zap.String("cutoff", cutoff))
	}
	return deleted, nil
}
