package settings

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkline/adengine/internal/models"
)

// MemoryStore holds the record behind an atomic pointer so readers always
// see a whole record.
type MemoryStore struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[models.Settings]
	now func() time.Time
}

// NewMemoryStore starts from initial.
func NewMemoryStore(initial models.Settings) *MemoryStore {
	m := &MemoryStore{now: time.Now}
	s := normalize(initial)
	m.cur.Store(&s)
	return m
}

func (m *MemoryStore) Get(_ context.Context) (models.Settings, error) {
	return m.cur.Load().Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, s models.Settings) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.cur.Load()
	if s.Version != cur.Version {
		return models.Settings{}, ErrConcurrentMutation
	}
	next := normalize(s)
	next.Version = cur.Version + 1
	next.UpdatedAt = m.now().UTC()
	m.cur.Store(&next)
	return next.Clone(), nil
}
