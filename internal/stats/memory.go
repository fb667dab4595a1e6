package stats

import (
	"context"
	"sort"
	"sync"

	"github.com/inkline/adengine/internal/models"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	days map[string]*models.DailyStats
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]*models.DailyStats)}
}

// Apply runs fn against day while holding the store lock.
func (m *MemoryStore) Apply(_ context.Context, day string, fn func(*models.DailyStats)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.days[day]
	if st == nil {
		st = NewDailyStats(day)
		m.days[day] = st
	}
	fn(st)
	return nil
}

// Get returns a copy of the record for day, or nil.
func (m *MemoryStore) Get(_ context.Context, day string) (*models.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.days[day]
	if st == nil {
		return nil, nil
	}
	return Clone(st), nil
}

// Range returns copies of the records with from <= day <= to, oldest first.
func (m *MemoryStore) Range(_ context.Context, from, to string) ([]*models.DailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.DailyStats
	for day, st := range m.days {
		if day >= from && day <= to {
			list = append(list, Clone(st))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Day < list[j].Day })
	return list, nil
}

// DaysBefore lists the stored days strictly before day.
func (m *MemoryStore) DaysBefore(_ context.Context, day string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var days []string
	for d := range m.days {
		if d < day {
			days = append(days, d)
		}
	}
	sort.Strings(days)
	return days, nil
}

// Delete removes the record for day.
func (m *MemoryStore) Delete(_ context.Context, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.days, day)
	return nil
}
