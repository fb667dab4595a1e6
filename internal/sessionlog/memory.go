package sessionlog

import (
	"context"
	"sync"

	"github.com/inkline/adengine/internal/models"
)

// MemoryLog is an in-process session log used when ClickHouse is not
// configured. It keeps at most maxDays days.
type MemoryLog struct {
	mu      sync.Mutex
	days    map[string][]models.ArchivedSession
	order   []string
	maxDays int
}

func NewMemoryLog(maxDays int) *MemoryLog {
	if maxDays <= 0 {
		maxDays = 2
	}
	return &MemoryLog{days: make(map[string][]models.ArchivedSession), maxDays: maxDays}
}

func (m *MemoryLog) Insert(_ context.Context, sessions []models.ArchivedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		if _, ok := m.days[s.Day]; !ok {
			m.order = append(m.order, s.Day)
			if len(m.order) > m.maxDays {
				delete(m.days, m.order[0])
				m.order = m.order[1:]
			}
		}
		m.days[s.Day] = append(m.days[s.Day], s)
	}
	return nil
}

// Write inserts s synchronously.
func (m *MemoryLog) Write(ctx context.Context, s models.ArchivedSession) error {
	return m.Insert(ctx, []models.ArchivedSession{s})
}

func (m *MemoryLog) ListByDay(_ context.Context, day string, limit int) ([]models.ArchivedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.days[day]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]models.ArchivedSession(nil), list...), nil
}
