package telemetry

import (
	"context"
	"time"

	"github.com/inkline/adengine/internal/models"
)

// LiveStore is the short-lived index of sessions that are still sending
// heartbeats.
type LiveStore interface {
	// Get returns the live record for id, or nil.
	Get(ctx context.Context, id string) (*models.SessionEvent, error)
	// Set replaces the live record for ev.SessionID.
	Set(ctx context.Context, ev models.SessionEvent) error
	// Take atomically removes and returns the live record for id. Of any
	// number of concurrent callers at most one receives the record.
	Take(ctx context.Context, id string) (*models.SessionEvent, error)
	// TakeIfStale is Take, applied only while the record was last updated
	// before the given time. A record refreshed since is left in place.
	TakeIfStale(ctx context.Context, id string, before time.Time) (*models.SessionEvent, error)
	// StaleIDs lists sessions last updated before the given time.
	StaleIDs(ctx context.Context, before time.Time) ([]string, error)
	// List returns every live record.
	List(ctx context.Context) ([]models.SessionEvent, error)
}

// Archive is the bounded recent-session archive. Add is the claim point for
// the once-per-session aggregation.
type Archive interface {
	// Add stores s unless its session id was already archived and reports
	// whether it claimed the id. An error with a true result means the claim
	// succeeded but the recent list was not updated.
	Add(ctx context.Context, s models.ArchivedSession) (bool, error)
	// Recent returns up to limit archived sessions, newest first.
	Recent(ctx context.Context, limit int) ([]models.ArchivedSession, error)
}

// RateLimiter admits at most one event per key per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// SessionSink receives every archived session exactly once.
type SessionSink interface {
	Write(ctx context.Context, s models.ArchivedSession) error
}

// Notifier is told about live updates and archives, e.g. to feed an admin
// dashboard.
type Notifier interface {
	SessionUpdated(ctx context.Context, ev models.SessionEvent)
	SessionArchived(ctx context.Context, s models.ArchivedSession)
}

// Archive defaults.
const (
	DefaultArchiveCap = 300
	DefaultArchiveTTL = 2 * time.Hour
)
