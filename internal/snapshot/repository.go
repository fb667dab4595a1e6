package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkline/adengine/internal/models"
)

// DefaultHistoryDays is how many daily snapshots are kept.
const DefaultHistoryDays = 30

// Store keeps one snapshot per day.
type Store interface {
	Save(ctx context.Context, s *models.Snapshot) error
	List(ctx context.Context, limit int) ([]models.Snapshot, error)
	Prune(ctx context.Context, beforeDay string) (int64, error)
}

// Repository stores snapshots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a snapshot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save upserts the snapshot of s.Day.
func (r *Repository) Save(ctx context.Context, s *models.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO optimizer_snapshots (day, data, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (day) DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at`,
		s.Day, body, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// List returns the newest snapshots first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = DefaultHistoryDays
	}
	rows, err := r.pool.Query(ctx, `SELECT data FROM optimizer_snapshots ORDER BY day DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Snapshot
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var s models.Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Prune deletes snapshots of days before beforeDay.
func (r *Repository) Prune(ctx context.Context, beforeDay string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM optimizer_snapshots WHERE day < $1`, beforeDay)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	byDay map[string]models.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byDay: make(map[string]models.Snapshot)}
}

func (m *MemoryStore) Save(_ context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDay[s.Day] = *s
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = DefaultHistoryDays
	}
	list := make([]models.Snapshot, 0, len(m.byDay))
	for _, s := range m.byDay {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Day > list[j].Day })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryStore) Prune(_ context.Context, beforeDay string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for day := range m.byDay {
		if day < beforeDay {
			delete(m.byDay, day)
			n++
		}
	}
	return n, nil
}
