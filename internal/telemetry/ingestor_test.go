package telemetry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/stats"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 Version/17.5 Safari/605.1.15"

type testEnv struct {
	ing   *Ingestor
	store *stats.MemoryStore
	arch  *MemoryArchive
	clock time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store: stats.NewMemoryStore(),
		arch:  NewMemoryArchive(0, 0),
		clock: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	env.ing = NewIngestor(NewMemoryLive(), env.arch, NewMemoryLimiter(), env.store, nil, nil, Options{}, nil)
	env.ing.now = func() time.Time { return env.clock }
	env.arch.now = env.ing.now
	return env
}

func (e *testEnv) day(t *testing.T) *models.DailyStats {
	d, err := e.store.Get(context.Background(), "2026-10-01")
	require.NoError(t, err)
	return d
}

func TestBeaconTakesMaxOfHeartbeat(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()

	hb := models.SessionEvent{
		SessionID:    "s1",
		PostID:       "p1",
		TimeOnPageMs: 40_000,
		MaxScrollPct: 70,
		Zones:        []models.ZoneReport{{ZoneID: "content-1", Filled: true, ViewableImps: 3, VisibleMs: 3000}},
		Funnel:       models.FunnelReport{Requested: 3, Filled: 3},
	}
	_, err := env.ing.Heartbeat(ctx, hb, "198.51.100.7", browserUA)
	require.NoError(err)

	env.clock = env.clock.Add(20 * time.Second)
	beacon := models.SessionEvent{
		SessionID:    "s1",
		TimeOnPageMs: 30_000,
		MaxScrollPct: 90,
		Zones: []models.ZoneReport{
			{ZoneID: "content-1", Filled: true, ViewableImps: 5, VisibleMs: 2000},
			{ZoneID: "content-2", Filled: true},
		},
		Funnel: models.FunnelReport{Requested: 5, Filled: 5},
	}
	sid, err := env.ing.Beacon(ctx, beacon, "198.51.100.7", browserUA)
	require.NoError(err)
	require.Equal("s1", sid)

	recent, err := env.ing.Recent(ctx, 10)
	require.NoError(err)
	require.Len(recent, 1)
	got := recent[0]
	require.Equal(PathBeacon, got.Path)
	require.Equal("p1", got.PostID)
	require.EqualValues(40_000, got.TimeOnPageMs)
	require.Equal(90, got.MaxScrollPct)
	require.Equal(5, got.Funnel.Requested)
	require.Len(got.Zones, 2)
	require.Equal(5, got.Zones[0].ViewableImps)
	require.EqualValues(3000, got.Zones[0].VisibleMs)

	live, err := env.ing.Live(ctx)
	require.NoError(err)
	require.Empty(live)

	day := env.day(t)
	require.EqualValues(1, day.Sessions)
	require.EqualValues(5, day.Funnel.Requested)
	require.EqualValues(1, day.Zones["content-1"].Viewable)
}

func TestArchiveIsIdempotent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()

	ev := models.SessionEvent{SessionID: "s1", TimeOnPageMs: 5000, Funnel: models.FunnelReport{Requested: 2}}
	_, err := env.ing.Heartbeat(ctx, ev, "203.0.113.1", browserUA)
	require.NoError(err)

	ended, err := env.ing.End(ctx, "s1")
	require.NoError(err)
	require.True(ended)

	ended, err = env.ing.End(ctx, "s1")
	require.NoError(err)
	require.False(ended)

	// A late beacon for an archived session must not be counted again.
	_, err = env.ing.Beacon(ctx, ev, "203.0.113.1", browserUA)
	require.NoError(err)

	// Neither must a direct double archive.
	require.NoError(env.ing.finalize(ctx, ev, PathSweep))
	require.NoError(env.ing.finalize(ctx, ev, PathSweep))

	day := env.day(t)
	require.EqualValues(1, day.Sessions)
	require.EqualValues(2, day.Funnel.Requested)

	recent, err := env.ing.Recent(ctx, 0)
	require.NoError(err)
	require.Len(recent, 1)
	require.Equal(PathEnd, recent[0].Path)
}

func TestSweepArchivesStaleSessions(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()
	t0 := env.clock

	_, err := env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "old"}, "192.0.2.1", browserUA)
	require.NoError(err)

	env.clock = t0.Add(50 * time.Second)
	_, err = env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "new"}, "192.0.2.2", browserUA)
	require.NoError(err)

	live, err := env.ing.Live(ctx)
	require.NoError(err)
	require.Len(live, 2)
	require.Equal("new", live[0].SessionID)
	require.Equal(t0, live[1].StartedAt)

	env.clock = t0.Add(70 * time.Second)
	live, err = env.ing.Live(ctx)
	require.NoError(err)
	require.Len(live, 1)
	require.Equal("new", live[0].SessionID)

	recent, err := env.ing.Recent(ctx, 10)
	require.NoError(err)
	require.Len(recent, 1)
	require.Equal("old", recent[0].SessionID)
	require.Equal(PathSweep, recent[0].Path)
	require.EqualValues(1, env.day(t).Sessions)
}

// refreshingLive lets a heartbeat land between the sweep's listing and its
// removal of each stale id.
type refreshingLive struct {
	*MemoryLive
	now func() time.Time
}

func (r refreshingLive) StaleIDs(ctx context.Context, before time.Time) ([]string, error) {
	ids, err := r.MemoryLive.StaleIDs(ctx, before)
	for _, id := range ids {
		_ = r.Set(ctx, models.SessionEvent{SessionID: id, UpdatedAt: r.now()})
	}
	return ids, err
}

func TestSweepSkipsRefreshedSession(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()
	live := refreshingLive{MemoryLive: NewMemoryLive(), now: func() time.Time { return env.clock }}
	env.ing.live = live

	require.NoError(live.Set(ctx, models.SessionEvent{SessionID: "s1", UpdatedAt: env.clock}))
	env.clock = env.clock.Add(2 * time.Minute)

	n, err := env.ing.Sweep(ctx)
	require.NoError(err)
	require.Zero(n)

	got, err := live.Get(ctx, "s1")
	require.NoError(err)
	require.NotNil(got)
	require.Equal(env.clock, got.UpdatedAt)

	recent, err := env.ing.Recent(ctx, 10)
	require.NoError(err)
	require.Empty(recent)
}

func TestHeartbeatKeepsStartAndOverwrites(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()
	t0 := env.clock

	_, err := env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "s", TimeOnPageMs: 9000}, "192.0.2.1", browserUA)
	require.NoError(err)
	env.clock = t0.Add(10 * time.Second)
	require.NoError(env.ing.heartbeat(ctx, models.SessionEvent{SessionID: "s", TimeOnPageMs: 4000}))

	live, err := env.ing.Live(ctx)
	require.NoError(err)
	require.Len(live, 1)
	require.EqualValues(4000, live[0].TimeOnPageMs, "heartbeats are last-write-wins")
	require.Equal(t0, live[0].StartedAt)
	require.Equal(env.clock, live[0].UpdatedAt)
}

func TestIngestDrops(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "  "}, "192.0.2.1", browserUA)
	require.ErrorIs(err, ErrInvalidEvent)

	sid, err := env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "bot"}, "192.0.2.1", "Googlebot/2.1 (+http://www.google.com/bot.html)")
	require.NoError(err)
	require.Equal("bot", sid)
	_, err = env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "bot2"}, "192.0.2.1", "")
	require.NoError(err)

	_, err = env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "a", MaxScrollPct: 10}, "192.0.2.9", browserUA)
	require.NoError(err)
	_, err = env.ing.Heartbeat(ctx, models.SessionEvent{SessionID: "a", MaxScrollPct: 20}, "192.0.2.9", browserUA)
	require.NoError(err, "rate-limited events are acknowledged")

	live, err := env.ing.Live(ctx)
	require.NoError(err)
	require.Len(live, 1)
	require.Equal("a", live[0].SessionID)
	require.Equal(10, live[0].MaxScrollPct)
}

func TestConcurrentEndAndSweepCountOnce(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := newTestEnv()

	const n = 50
	for k := 0; k < n; k++ {
		require.NoError(env.ing.heartbeat(ctx, models.SessionEvent{SessionID: fmt.Sprintf("s%d", k)}))
	}
	env.clock = env.clock.Add(2 * time.Minute)

	var wg sync.WaitGroup
	for k := 0; k < n; k++ {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_, _ = env.ing.End(ctx, id)
		}(fmt.Sprintf("s%d", k))
		go func() {
			defer wg.Done()
			_, _ = env.ing.Sweep(ctx)
		}()
	}
	wg.Wait()

	require.EqualValues(n, env.day(t).Sessions)
	live, err := env.ing.Live(ctx)
	require.NoError(err)
	require.Empty(live)
}

func TestIsBot(t *testing.T) {
	require := require.New(t)
	require.True(IsBot(""))
	require.True(IsBot("Mozilla/5.0 (compatible; bingbot/2.0)"))
	require.True(IsBot("Mozilla/5.0 HeadlessChrome/120.0"))
	require.True(IsBot("curl/8.4.0"))
	require.False(IsBot(browserUA))
}
