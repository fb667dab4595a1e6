// Package telemetry ingests client session telemetry. Heartbeats keep a live
// index current; a session leaves the index exactly once, through a beacon,
// an explicit end or the staleness sweep, and is then archived and folded
// into the daily stats.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/stats"
	"github.com/inkline/adengine/pkg/metrics"
)

var (
	// ErrInvalidEvent marks telemetry that cannot be attributed to a session.
	ErrInvalidEvent = errors.New("invalid telemetry event")
	// ErrStoreUnavailable wraps persistence failures during ingestion.
	ErrStoreUnavailable = errors.New("telemetry store unavailable")
)

// Kind is the ingestion path of an event.
type Kind string

const (
	KindHeartbeat Kind = "heartbeat"
	KindBeacon    Kind = "beacon"
	KindEnd       Kind = "end"
)

// Archive paths.
const (
	PathBeacon = "beacon"
	PathEnd    = "end"
	PathSweep  = "sweep"
)

const maxSessionIDLen = 128

// Source describes the client an event came from.
type Source struct {
	IP        string
	UserAgent string
	Kind      Kind
}

// Options tunes the ingestor. Zero values take defaults.
type Options struct {
	RateWindow time.Duration
	StaleAfter time.Duration
	Location   *time.Location
}

func (o Options) withDefaults() Options {
	if o.RateWindow <= 0 {
		o.RateWindow = 5 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 60 * time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Ingestor is the TelemetryIngestor.
type Ingestor struct {
	live     LiveStore
	archive  Archive
	limiter  RateLimiter
	stats    stats.Store
	sink     SessionSink
	notifier Notifier
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewIngestor wires an ingestor. sink and notifier may be nil.
func NewIngestor(live LiveStore, archive Archive, limiter RateLimiter, st stats.Store, sink SessionSink, notifier Notifier, opts Options, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		live:     live,
		archive:  archive,
		limiter:  limiter,
		stats:    st,
		sink:     sink,
		notifier: notifier,
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest validates ev and routes it by src.Kind. Events dropped by the rate
// limiter or bot filter return the session id and a nil error.
func (i *Ingestor) Ingest(ctx context.Context, ev models.SessionEvent, src Source) (string, error) {
	ev.SessionID = strings.TrimSpace(ev.SessionID)
	if ev.SessionID == "" || len(ev.SessionID) > maxSessionIDLen {
		metrics.IncEvent(string(src.Kind), "invalid")
		return "", ErrInvalidEvent
	}
	if IsBot(src.UserAgent) {
		metrics.IncEvent(string(src.Kind), "bot")
		return ev.SessionID, nil
	}
	ok, err := i.limiter.Allow(ctx, src.IP+"|"+string(src.Kind), i.opts.RateWindow)
	if err != nil {
		return ev.SessionID, fmt.Errorf("%w: rate limit: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		metrics.IncEvent(string(src.Kind), "rate_limited")
		return ev.SessionID, nil
	}

	switch src.Kind {
	case KindHeartbeat:
		err = i.heartbeat(ctx, ev)
	case KindBeacon:
		err = i.beacon(ctx, ev)
	case KindEnd:
		_, err = i.End(ctx, ev.SessionID)
	default:
		return ev.SessionID, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, src.Kind)
	}
	if err != nil {
		metrics.IncEvent(string(src.Kind), "error")
		return ev.SessionID, err
	}
	metrics.IncEvent(string(src.Kind), "accepted")
	return ev.SessionID, nil
}

// Heartbeat ingests a periodic cumulative snapshot.
func (i *Ingestor) Heartbeat(ctx context.Context, ev models.SessionEvent, ip, ua string) (string, error) {
	return i.Ingest(ctx, ev, Source{IP: ip, UserAgent: ua, Kind: KindHeartbeat})
}

// Beacon ingests the terminal event of a session.
func (i *Ingestor) Beacon(ctx context.Context, ev models.SessionEvent, ip, ua string) (string, error) {
	return i.Ingest(ctx, ev, Source{IP: ip, UserAgent: ua, Kind: KindBeacon})
}

func (i *Ingestor) heartbeat(ctx context.Context, ev models.SessionEvent) error {
	now := i.now()
	prev, err := i.live.Get(ctx, ev.SessionID)
	if err != nil {
		return fmt.Errorf("%w: get live: %v", ErrStoreUnavailable, err)
	}
	switch {
	case prev != nil && !prev.StartedAt.IsZero():
		ev.StartedAt = prev.StartedAt
	case ev.StartedAt.IsZero() || ev.StartedAt.After(now):
		ev.StartedAt = now
	}
	ev.UpdatedAt = now
	if err := i.live.Set(ctx, ev); err != nil {
		return fmt.Errorf("%w: set live: %v", ErrStoreUnavailable, err)
	}
	if i.notifier != nil {
		i.notifier.SessionUpdated(ctx, ev)
	}
	if _, err := i.Sweep(ctx); err != nil {
		i.logger.Warn("staleness sweep failed", zap.Error(err))
	}
	return nil
}

func (i *Ingestor) beacon(ctx context.Context, ev models.SessionEvent) error {
	now := i.now()
	prev, err := i.live.Take(ctx, ev.SessionID)
	if err != nil {
		return fmt.Errorf("%w: take live: %v", ErrStoreUnavailable, err)
	}
	ev.UpdatedAt = now
	if ev.StartedAt.After(now) {
		ev.StartedAt = time.Time{}
	}
	merged := mergeMax(prev, ev)
	if merged.StartedAt.IsZero() {
		merged.StartedAt = now
	}
	return i.finalize(ctx, merged, PathBeacon)
}

// End archives a live session on explicit request and reports whether one
// was found.
func (i *Ingestor) End(ctx context.Context, id string) (bool, error) {
	ev, err := i.live.Take(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: take live: %v", ErrStoreUnavailable, err)
	}
	if ev == nil {
		return false, nil
	}
	return true, i.finalize(ctx, *ev, PathEnd)
}

// Sweep archives every live session idle for longer than the staleness
// window and returns how many it archived.
func (i *Ingestor) Sweep(ctx context.Context) (int, error) {
	before := i.now().Add(-i.opts.StaleAfter)
	ids, err := i.live.StaleIDs(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("%w: stale ids: %v", ErrStoreUnavailable, err)
	}
	n := 0
	for _, id := range ids {
		ev, err := i.live.TakeIfStale(ctx, id, before)
		if err != nil {
			return n, fmt.Errorf("%w: take live: %v", ErrStoreUnavailable, err)
		}
		if ev == nil {
			continue // refreshed, or taken by a concurrent beacon or end
		}
		if err := i.finalize(ctx, *ev, PathSweep); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// finalize archives a session that has left the live index. Only the caller
// whose Archive.Add succeeds aggregates it.
func (i *Ingestor) finalize(ctx context.Context, ev models.SessionEvent, path string) error {
	now := i.now()
	s := models.ArchivedSession{
		SessionEvent: ev,
		Day:          stats.DayKey(now, i.opts.Location),
		ArchivedAt:   now,
		Path:         path,
	}
	added, err := i.archive.Add(ctx, s)
	if err != nil {
		if !added {
			return fmt.Errorf("%w: archive: %v", ErrStoreUnavailable, err)
		}
		i.logger.Warn("recent archive write failed", zap.String("sid", ev.SessionID), zap.Error(err))
	}
	if !added {
		metrics.IncDuplicateArchive()
		i.logger.Debug("session already archived", zap.String("sid", ev.SessionID), zap.String("path", path))
		return nil
	}

	if err := i.stats.Apply(ctx, s.Day, func(d *models.DailyStats) { stats.MergeSession(d, ev, i.opts.Location) }); err != nil {
		i.logger.Error("session lost from daily stats",
			zap.String("sid", ev.SessionID), zap.String("day", s.Day), zap.Error(err))
		return fmt.Errorf("%w: stats: %v", ErrStoreUnavailable, err)
	}
	metrics.IncArchived(path)

	if i.sink != nil {
		if err := i.sink.Write(ctx, s); err != nil {
			i.logger.Warn("session log write failed", zap.String("sid", ev.SessionID), zap.Error(err))
		}
	}
	if i.notifier != nil {
		i.notifier.SessionArchived(ctx, s)
	}
	return nil
}

// Live sweeps stale sessions and returns the remaining live ones, most
// recently updated first.
func (i *Ingestor) Live(ctx context.Context) ([]models.SessionEvent, error) {
	if _, err := i.Sweep(ctx); err != nil {
		i.logger.Warn("staleness sweep failed", zap.Error(err))
	}
	list, err := i.live.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list live: %v", ErrStoreUnavailable, err)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].UpdatedAt.After(list[b].UpdatedAt) })
	metrics.SetLiveSessions(len(list))
	return list, nil
}

// Recent returns up to limit archived sessions, newest first.
func (i *Ingestor) Recent(ctx context.Context, limit int) ([]models.ArchivedSession, error) {
	if limit <= 0 || limit > DefaultArchiveCap {
		limit = DefaultArchiveCap
	}
	list, err := i.archive.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %v", ErrStoreUnavailable, err)
	}
	return list, nil
}

// RunSweeper sweeps on every interval until ctx is done.
func (i *Ingestor) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = i.opts.StaleAfter
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := i.Sweep(ctx); err != nil {
				i.logger.Warn("background sweep failed", zap.Error(err))
			} else if n > 0 {
				i.logger.Debug("stale sessions archived", zap.Int("count", n))
			}
		}
	}
}
