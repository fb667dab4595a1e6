package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkline/adengine/internal/models"
)

// DefaultLogCap is how many log entries are kept.
const DefaultLogCap = 90

// LogStore is the capped optimizer audit log.
type LogStore interface {
	Append(ctx context.Context, e models.OptimizerLogEntry) error
	List(ctx context.Context, limit int) ([]models.OptimizerLogEntry, error)
	// HasRun reports whether a non-skip entry exists for day.
	HasRun(ctx context.Context, day string) (bool, error)
}

// LogRepository stores the log in PostgreSQL.
type LogRepository struct {
	pool *pgxpool.Pool
	cap  int
}

// NewLogRepository creates a log repository keeping the newest capacity entries.
func NewLogRepository(pool *pgxpool.Pool, capacity int) *LogRepository {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &LogRepository{pool: pool, cap: capacity}
}

// Append inserts e and trims the log to its cap.
func (r *LogRepository) Append(ctx context.Context, e models.OptimizerLogEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO optimizer_log (id, ts, day, status, data) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Timestamp, e.Day, string(e.Status), body); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM optimizer_log WHERE id NOT IN (SELECT id FROM optimizer_log ORDER BY ts DESC LIMIT $1)`,
		r.cap); err != nil {
		return fmt.Errorf("trim log: %w", err)
	}
	return tx.Commit(ctx)
}

// List returns the newest entries first.
func (r *LogRepository) List(ctx context.Context, limit int) ([]models.OptimizerLogEntry, error) {
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}
	rows, err := r.pool.Query(ctx, `SELECT data FROM optimizer_log ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OptimizerLogEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e models.OptimizerLogEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// HasRun reports whether day already has a completed run.
func (r *LogRepository) HasRun(ctx context.Context, day string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM optimizer_log WHERE day = $1 AND status <> $2)`,
		day, string(models.RunSkip)).Scan(&exists)
	return exists, err
}

// MemoryLog is an in-process LogStore.
type MemoryLog struct {
	mu      sync.Mutex
	cap     int
	entries []models.OptimizerLogEntry // oldest first
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &MemoryLog{cap: capacity}
}

func (m *MemoryLog) Append(_ context.Context, e models.OptimizerLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.cap; over > 0 {
		m.entries = m.entries[over:]
	}
	return nil
}

func (m *MemoryLog) List(_ context.Context, limit int) ([]models.OptimizerLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]models.OptimizerLogEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryLog) HasRun(_ context.Context, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Day == day && e.Status != models.RunSkip {
			return true, nil
		}
	}
	return false, nil
}
