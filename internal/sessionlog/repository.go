// Package sessionlog keeps every archived session as a raw row so the daily
// optimizer can rebuild its snapshot from sessions rather than aggregates.
package sessionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/stats"
)

// Reader lists archived sessions of one stats day.
type Reader interface {
	ListByDay(ctx context.Context, day string, limit int) ([]models.ArchivedSession, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS archived_sessions (
	day             Date,
	session_id      String,
	post_id         String,
	device          LowCardinality(String),
	referrer_class  LowCardinality(String),
	pattern         LowCardinality(String),
	time_on_page_ms Int64,
	max_scroll_pct  Int32,
	gate_opened     UInt8,
	ads_filled      UInt32,
	ads_viewable    UInt32,
	path            LowCardinality(String),
	started_at      DateTime64(3),
	archived_at     DateTime64(3),
	payload         String
) ENGINE = MergeTree
ORDER BY (day, archived_at, session_id)
TTL day + INTERVAL %d DAY`

// Repository stores archived sessions in ClickHouse.
type Repository struct {
	conn          driver.Conn
	retentionDays int
}

// NewRepository creates a ClickHouse session log.
func NewRepository(conn driver.Conn, retentionDays int) *Repository {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Repository{conn: conn, retentionDays: retentionDays}
}

// EnsureSchema creates the table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, fmt.Sprintf(schema, r.retentionDays)); err != nil {
		return fmt.Errorf("create archived_sessions: %w", err)
	}
	return nil
}

func adCounts(s models.SessionEvent) (filled, viewable uint32) {
	seen := make(map[string]bool, len(s.Zones))
	for _, z := range s.Zones {
		if seen[z.ZoneID] {
			continue
		}
		seen[z.ZoneID] = true
		if z.Filled {
			filled++
		}
		if z.ViewedAd() {
			viewable++
		}
	}
	return filled, viewable
}

// Insert writes sessions in one batch.
func (r *Repository) Insert(ctx context.Context, sessions []models.ArchivedSession) error {
	if len(sessions) == 0 {
		return nil
	}
	batch, err := r.conn.PrepareBatch(ctx, `INSERT INTO archived_sessions (
		day, session_id, post_id, device, referrer_class, pattern, time_on_page_ms, max_scroll_pct,
		gate_opened, ads_filled, ads_viewable, path, started_at, archived_at, payload)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, s := range sessions {
		day, err := time.Parse(stats.DayLayout, s.Day)
		if err != nil {
			return fmt.Errorf("session %s: bad day %q", s.SessionID, s.Day)
		}
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", s.SessionID, err)
		}
		var gate uint8
		if s.GateOpened {
			gate = 1
		}
		filled, viewable := adCounts(s.SessionEvent)
		if err := batch.Append(
			day,
			s.SessionID,
			s.PostID,
			s.Device,
			stats.ClassifyReferrer(s.Referrer),
			stats.ClassifySession(s.SessionEvent),
			s.TimeOnPageMs,
			int32(s.MaxScrollPct),
			gate,
			filled,
			viewable,
			s.Path,
			s.StartedAt,
			s.ArchivedAt,
			string(payload),
		); err != nil {
			return fmt.Errorf("append session %s: %w", s.SessionID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByDay returns the day's sessions in archive order. limit <= 0 means all.
func (r *Repository) ListByDay(ctx context.Context, day string, limit int) ([]models.ArchivedSession, error) {
	q := `SELECT payload FROM archived_sessions WHERE day = toDate(?) ORDER BY archived_at`
	args := []interface{}{day}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var list []models.ArchivedSession
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var s models.ArchivedSession
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			continue
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
