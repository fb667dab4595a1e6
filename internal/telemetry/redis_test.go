package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLive(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	_, client := newRedis(t)
	live := NewRedisLive(client)

	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(live.Set(ctx, models.SessionEvent{SessionID: "a", MaxScrollPct: 40, UpdatedAt: t0}))
	require.NoError(live.Set(ctx, models.SessionEvent{SessionID: "b", UpdatedAt: t0.Add(time.Minute)}))

	got, err := live.Get(ctx, "a")
	require.NoError(err)
	require.Equal(40, got.MaxScrollPct)

	missing, err := live.Get(ctx, "zzz")
	require.NoError(err)
	require.Nil(missing)

	ids, err := live.StaleIDs(ctx, t0.Add(30*time.Second))
	require.NoError(err)
	require.Equal([]string{"a"}, ids)

	taken, err := live.Take(ctx, "a")
	require.NoError(err)
	require.NotNil(taken)
	require.Equal("a", taken.SessionID)

	again, err := live.Take(ctx, "a")
	require.NoError(err)
	require.Nil(again)

	ids, err = live.StaleIDs(ctx, t0.Add(time.Hour))
	require.NoError(err)
	require.Equal([]string{"b"}, ids)

	list, err := live.List(ctx)
	require.NoError(err)
	require.Len(list, 1)
}

func TestRedisLiveTakeIfStale(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	_, client := newRedis(t)
	live := NewRedisLive(client)

	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(live.Set(ctx, models.SessionEvent{SessionID: "a", UpdatedAt: t0}))

	fresh, err := live.TakeIfStale(ctx, "a", t0)
	require.NoError(err)
	require.Nil(fresh)

	require.NoError(live.Set(ctx, models.SessionEvent{SessionID: "a", UpdatedAt: t0.Add(time.Minute)}))
	kept, err := live.TakeIfStale(ctx, "a", t0.Add(30*time.Second))
	require.NoError(err)
	require.Nil(kept)
	still, err := live.Get(ctx, "a")
	require.NoError(err)
	require.NotNil(still)

	taken, err := live.TakeIfStale(ctx, "a", t0.Add(2*time.Minute))
	require.NoError(err)
	require.NotNil(taken)
	require.Equal("a", taken.SessionID)

	ids, err := live.StaleIDs(ctx, t0.Add(time.Hour))
	require.NoError(err)
	require.Empty(ids)

	missing, err := live.TakeIfStale(ctx, "zzz", t0.Add(time.Hour))
	require.NoError(err)
	require.Nil(missing)
}

func TestRedisArchive(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	mr, client := newRedis(t)
	arch := NewRedisArchive(client, 3, time.Hour)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	arch.now = func() time.Time { return now }

	for k := 0; k < 5; k++ {
		added, err := arch.Add(ctx, models.ArchivedSession{
			SessionEvent: models.SessionEvent{SessionID: fmt.Sprintf("s%d", k)},
			ArchivedAt:   now,
		})
		require.NoError(err)
		require.True(added)
	}
	added, err := arch.Add(ctx, models.ArchivedSession{SessionEvent: models.SessionEvent{SessionID: "s1"}, ArchivedAt: now})
	require.NoError(err)
	require.False(added, "an archived session id is claimed")

	recent, err := arch.Recent(ctx, 10)
	require.NoError(err)
	require.Len(recent, 3)
	require.Equal("s4", recent[0].SessionID)
	require.Equal("s2", recent[2].SessionID)

	mr.FastForward(2 * time.Hour)
	added, err = arch.Add(ctx, models.ArchivedSession{SessionEvent: models.SessionEvent{SessionID: "s1"}, ArchivedAt: now})
	require.NoError(err)
	require.True(added, "claims expire with the archive retention")
}

func TestRedisLimiter(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	mr, client := newRedis(t)
	lim := NewRedisLimiter(client)

	ok, err := lim.Allow(ctx, "192.0.2.1|heartbeat", 5*time.Second)
	require.NoError(err)
	require.True(ok)

	ok, err = lim.Allow(ctx, "192.0.2.1|heartbeat", 5*time.Second)
	require.NoError(err)
	require.False(ok)

	ok, err = lim.Allow(ctx, "192.0.2.1|beacon", 5*time.Second)
	require.NoError(err)
	require.True(ok)

	mr.FastForward(6 * time.Second)
	ok, err = lim.Allow(ctx, "192.0.2.1|heartbeat", 5*time.Second)
	require.NoError(err)
	require.True(ok)
}

func TestIngestorOnRedis(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	_, client := newRedis(t)
	st := newTestEnv().store

	ing := NewIngestor(NewRedisLive(client), NewRedisArchive(client, 0, 0), NewRedisLimiter(client), st, nil, nil, Options{}, nil)
	_, err := ing.Heartbeat(ctx, models.SessionEvent{SessionID: "r1", Funnel: models.FunnelReport{Requested: 3}}, "192.0.2.1", browserUA)
	require.NoError(err)
	_, err = ing.Beacon(ctx, models.SessionEvent{SessionID: "r1", Funnel: models.FunnelReport{Requested: 5}}, "192.0.2.1", browserUA)
	require.NoError(err)
	_, err = ing.Beacon(ctx, models.SessionEvent{SessionID: "r1", Funnel: models.FunnelReport{Requested: 5}}, "192.0.2.2", browserUA)
	require.NoError(err)

	days, err := st.Range(ctx, "0000-01-01", "9999-12-31")
	require.NoError(err)
	require.Len(days, 1)
	require.EqualValues(1, days[0].Sessions)
	require.EqualValues(5, days[0].Funnel.Requested)
}
