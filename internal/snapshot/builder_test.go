package snapshot

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/stats"
)

// sessions builds n sessions. Every session shows two ads in content-1 and
// content-2; content-1 is viewable in the first viewable sessions only.
func sessions(n, bouncers, viewable int) []models.SessionEvent {
	out := make([]models.SessionEvent, n)
	for i := range out {
		s := models.SessionEvent{
			SessionID:    fmt.Sprintf("s%d", i),
			TimeOnPageMs: 30_000,
			MaxScrollPct: 50,
			Zones: []models.ZoneReport{
				{ZoneID: "content-1", Size: "336x280", Filled: true},
				{ZoneID: "content-2", Size: "300x250", Filled: true, ViewableImps: 1},
			},
		}
		if i < bouncers {
			s.TimeOnPageMs, s.MaxScrollPct = 2000, 5
		}
		if i < viewable {
			s.Zones[0].ViewableImps = 2
		}
		out[i] = s
	}
	return out
}

func TestBuildSnapshotInsufficient(t *testing.T) {
	snap, ok := BuildSnapshot(sessions(19, 0, 0), 20)
	require.False(t, ok)
	require.Nil(t, snap)
}

func TestBuildSnapshot(t *testing.T) {
	require := require.New(t)
	in := sessions(20, 5, 4)
	in = append(in, models.SessionEvent{SessionID: "rare", Zones: []models.ZoneReport{{ZoneID: "content-9", Filled: true}}})

	snap, ok := BuildSnapshot(in, 20)
	require.True(ok)
	require.Equal(21, snap.Sessions)
	// 41 shown, 20 + 4 viewable.
	require.InDelta(float64(24)*100/41, snap.ViewabilityPct, 1e-9)
	require.InDelta(float64(6)*100/21, snap.BouncePct, 1e-9, "the rare session is a bouncer too")
	require.InDelta(41.0/21, snap.AvgAdsPerSession, 1e-9)

	require.Len(snap.Zones, 2, "zones under the sample floor are left out")
	z1 := snap.Zones["content-1"]
	require.Equal(models.FormatLargeRectangle, z1.Format)
	require.Equal(20, z1.Impressions)
	require.InDelta(20, z1.ViewabilityPct, 1e-9)
	require.InDelta(100, snap.Zones["content-2"].ViewabilityPct, 1e-9)
}

func TestBuildSnapshotIgnoresViewsOfUnfilledZones(t *testing.T) {
	require := require.New(t)
	in := make([]models.SessionEvent, 25)
	for i := range in {
		in[i] = models.SessionEvent{
			SessionID:    fmt.Sprintf("s%d", i),
			TimeOnPageMs: 30_000,
			MaxScrollPct: 50,
			Zones: []models.ZoneReport{
				{ZoneID: "content-1", Size: "336x280", Filled: true},
				{ZoneID: "content-2", Size: "300x250", ViewableImps: 1},
			},
		}
	}

	snap, ok := BuildSnapshot(in, 20)
	require.True(ok)
	require.InDelta(0, snap.ViewabilityPct, 1e-9)
	require.InDelta(1, snap.AvgAdsPerSession, 1e-9)

	day := stats.NewDailyStats("2026-10-01")
	for _, s := range in {
		stats.MergeSession(day, s, nil)
	}
	fromStats, ok := FromDailyStats(day, 20)
	require.True(ok)
	require.InDelta(0, fromStats.ViewabilityPct, 1e-9)
}

func TestFromDailyStatsMatchesBuild(t *testing.T) {
	require := require.New(t)
	in := sessions(30, 6, 10)
	day := stats.NewDailyStats("2026-10-01")
	for _, s := range in {
		stats.MergeSession(day, s, nil)
	}

	fromSessions, ok := BuildSnapshot(in, 20)
	require.True(ok)
	fromStats, ok := FromDailyStats(day, 20)
	require.True(ok)

	require.Equal("2026-10-01", fromStats.Day)
	fromSessions.Day = fromStats.Day
	require.Equal(fromSessions, fromStats)

	_, ok = FromDailyStats(day, 31)
	require.False(ok)
}

func TestMemoryStore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	st := NewMemoryStore()
	for _, day := range []string{"2026-09-01", "2026-10-01", "2026-10-02"} {
		require.NoError(st.Save(ctx, &models.Snapshot{Day: day}))
	}
	list, err := st.List(ctx, 2)
	require.NoError(err)
	require.Equal("2026-10-02", list[0].Day)
	require.Len(list, 2)

	n, err := st.Prune(ctx, "2026-09-16")
	require.NoError(err)
	require.EqualValues(1, n)
}
