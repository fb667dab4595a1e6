package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/inkline/adengine/internal/models"
)

// MemoryLive is an in-process LiveStore.
type MemoryLive struct {
	mu       sync.Mutex
	sessions map[string]models.SessionEvent
}

func NewMemoryLive() *MemoryLive {
	return &MemoryLive{sessions: make(map[string]models.SessionEvent)}
}

func (m *MemoryLive) Get(_ context.Context, id string) (*models.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (m *MemoryLive) Set(_ context.Context, ev models.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[ev.SessionID] = ev
	return nil
}

func (m *MemoryLive) Take(_ context.Context, id string) (*models.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	delete(m.sessions, id)
	return &ev, nil
}

func (m *MemoryLive) TakeIfStale(_ context.Context, id string, before time.Time) (*models.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.sessions[id]
	if !ok || !ev.UpdatedAt.Before(before) {
		return nil, nil
	}
	delete(m.sessions, id)
	return &ev, nil
}

func (m *MemoryLive) StaleIDs(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, ev := range m.sessions {
		if ev.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryLive) List(_ context.Context) ([]models.SessionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.SessionEvent, 0, len(m.sessions))
	for _, ev := range m.sessions {
		list = append(list, ev)
	}
	return list, nil
}

// MemoryArchive is an in-process Archive. Entries and claims expire after
// the TTL; the oldest entry is evicted once the cap is reached.
type MemoryArchive struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	entries []models.ArchivedSession // oldest first
	claimed map[string]time.Time
	now     func() time.Time
}

func NewMemoryArchive(capacity int, ttl time.Duration) *MemoryArchive {
	if capacity <= 0 {
		capacity = DefaultArchiveCap
	}
	if ttl <= 0 {
		ttl = DefaultArchiveTTL
	}
	return &MemoryArchive{cap: capacity, ttl: ttl, claimed: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryArchive) prune(now time.Time) {
	cutoff := now.Add(-m.ttl)
	for id, at := range m.claimed {
		if at.Before(cutoff) {
			delete(m.claimed, id)
		}
	}
	i := 0
	for i < len(m.entries) && m.entries[i].ArchivedAt.Before(cutoff) {
		i++
	}
	m.entries = m.entries[i:]
}

func (m *MemoryArchive) Add(_ context.Context, s models.ArchivedSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.prune(now)
	if _, ok := m.claimed[s.SessionID]; ok {
		return false, nil
	}
	m.claimed[s.SessionID] = now
	m.entries = append(m.entries, s)
	if over := len(m.entries) - m.cap; over > 0 {
		m.entries = m.entries[over:]
	}
	return true, nil
}

func (m *MemoryArchive) Recent(_ context.Context, limit int) ([]models.ArchivedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(m.now())
	out := make([]models.ArchivedSession, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// MemoryLimiter is an in-process RateLimiter.
type MemoryLimiter struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{until: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if t, ok := m.until[key]; ok && now.Before(t) {
		return false, nil
	}
	if len(m.until) > 10_000 {
		for k, t := range m.until {
			if !now.Before(t) {
				delete(m.until, k)
			}
		}
	}
	m.until[key] = now.Add(window)
	return true, nil
}
