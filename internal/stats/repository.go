package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkline/adengine/internal/models"
)

// Store persists DailyStats. Apply is the only mutation path and must
// serialize concurrent writers to the same day.
type Store interface {
	Apply(ctx context.Context, day string, fn func(*models.DailyStats)) error
	Get(ctx context.Context, day string) (*models.DailyStats, error)
	Range(ctx context.Context, from, to string) ([]*models.DailyStats, error)
	DaysBefore(ctx context.Context, day string) ([]string, error)
	Delete(ctx context.Context, day string) error
}

// Repository stores one JSONB document per day in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a daily stats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Apply runs fn against the day's record under a row lock and writes the result.
func (r *Repository) Apply(ctx context.Context, day string, fn func(*models.DailyStats)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	empty, _ := json.Marshal(NewDailyStats(day))
	if _, err := tx.Exec(ctx,
		`INSERT INTO daily_stats (day, data, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (day) DO NOTHING`,
		day, empty); err != nil {
		return fmt.Errorf("insert day: %w", err)
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT data FROM daily_stats WHERE day = $1 FOR UPDATE`, day).Scan(&raw); err != nil {
		return fmt.Errorf("lock day: %w", err)
	}
	st, err := decode(day, raw)
	if err != nil {
		return err
	}

	fn(st)

	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE daily_stats SET data = $2, updated_at = NOW() WHERE day = $1`, day, body); err != nil {
		return fmt.Errorf("update day: %w", err)
	}
	return tx.Commit(ctx)
}

// Get returns the record for day, or nil when none exists.
func (r *Repository) Get(ctx context.Context, day string) (*models.DailyStats, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM daily_stats WHERE day = $1`, day).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(day, raw)
}

// Range returns the records with from <= day <= to, oldest first.
func (r *Repository) Range(ctx context.Context, from, to string) ([]*models.DailyStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT day, data FROM daily_stats WHERE day >= $1 AND day <= $2 ORDER BY day`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DailyStats
	for rows.Next() {
		var (
			day string
			raw []byte
		)
		if err := rows.Scan(&day, &raw); err != nil {
			return nil, err
		}
		st, err := decode(day, raw)
		if err != nil {
			return nil, err
		}
		list = append(list, st)
	}
	return list, rows.Err()
}

// DaysBefore lists the stored days strictly before day.
func (r *Repository) DaysBefore(ctx context.Context, day string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT day FROM daily_stats WHERE day < $1 ORDER BY day`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// Delete removes the record for day.
func (r *Repository) Delete(ctx context.Context, day string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM daily_stats WHERE day = $1`, day)
	return err
}

func decode(day string, raw []byte) (*models.DailyStats, error) {
	st := &models.DailyStats{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode stats %s: %w", day, err)
	}
	st.Day = day
	ensureMaps(st)
	return st, nil
}
