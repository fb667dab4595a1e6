// Package snapshot reduces a day of sessions to the metrics the optimizer
// acts on.
package snapshot

import (
	"errors"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/internal/stats"
)

// ErrInsufficientData means there was too little traffic to act on.
var ErrInsufficientData = errors.New("insufficient data")

const (
	// DefaultMinSessions is the traffic floor for an optimizer run.
	DefaultMinSessions = 20
	// MinZoneImpressions is the per-zone sample floor.
	MinZoneImpressions = 5
)

func pct(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	v := float64(n) * 100 / float64(d)
	if v > 100 {
		v = 100
	}
	return v
}

type zoneCount struct {
	format      string
	impressions int
	viewable    int
}

func zoneSnapshots(counts map[string]*zoneCount) map[string]models.ZoneSnapshot {
	zones := make(map[string]models.ZoneSnapshot)
	for id, c := range counts {
		if c.impressions < MinZoneImpressions {
			continue
		}
		zones[id] = models.ZoneSnapshot{
			Format:         c.format,
			Impressions:    c.impressions,
			Viewable:       c.viewable,
			ViewabilityPct: pct(c.viewable, c.impressions),
		}
	}
	return zones
}

// BuildSnapshot reduces raw sessions. It returns ok=false when there are
// fewer than minSessions sessions.
func BuildSnapshot(sessions []models.SessionEvent, minSessions int) (*models.Snapshot, bool) {
	if minSessions <= 0 {
		minSessions = DefaultMinSessions
	}
	n := len(sessions)
	if n < minSessions {
		return nil, false
	}

	var shown, viewable, bouncers, readers int
	counts := make(map[string]*zoneCount)
	for _, s := range sessions {
		switch stats.ClassifySession(s) {
		case models.PatternBouncer:
			bouncers++
		case models.PatternReader:
			readers++
		}
		seen := make(map[string]bool, len(s.Zones))
		for _, z := range s.Zones {
			if z.ZoneID == "" || seen[z.ZoneID] {
				continue
			}
			seen[z.ZoneID] = true
			c := counts[z.ZoneID]
			if c == nil {
				c = &zoneCount{format: models.ZoneFormat(z)}
				counts[z.ZoneID] = c
			}
			if c.format == "" {
				c.format = models.ZoneFormat(z)
			}
			if z.Filled {
				shown++
				c.impressions++
			}
			if z.ViewedAd() {
				viewable++
				c.viewable++
			}
		}
	}

	return &models.Snapshot{
		Sessions:         n,
		ViewabilityPct:   pct(viewable, shown),
		BouncePct:        pct(bouncers, n),
		ReaderPct:        pct(readers, n),
		AvgAdsPerSession: float64(shown) / float64(n),
		Zones:            zoneSnapshots(counts),
	}, true
}

// FromDailyStats builds the same snapshot from a day's aggregate, for days
// whose raw sessions are unavailable.
func FromDailyStats(d *models.DailyStats, minSessions int) (*models.Snapshot, bool) {
	if minSessions <= 0 {
		minSessions = DefaultMinSessions
	}
	if d == nil || d.Sessions < int64(minSessions) {
		return nil, false
	}
	n := int(d.Sessions)

	var shown, viewable int
	counts := make(map[string]*zoneCount, len(d.Zones))
	for id, z := range d.Zones {
		shown += int(z.Filled)
		viewable += int(z.Viewable)
		counts[id] = &zoneCount{format: z.Format, impressions: int(z.Filled), viewable: int(z.Viewable)}
	}

	return &models.Snapshot{
		Day:              d.Day,
		Sessions:         n,
		ViewabilityPct:   pct(viewable, shown),
		BouncePct:        pct(int(d.ByPattern[models.PatternBouncer]), n),
		ReaderPct:        pct(int(d.ByPattern[models.PatternReader]), n),
		AvgAdsPerSession: float64(shown) / float64(n),
		Zones:            zoneSnapshots(counts),
	}, true
}
