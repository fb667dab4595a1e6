package models

import "time"

// DailyStats aggregates every archived session of one calendar day. Counters
// only ever grow; averages are derived at presentation time.
type DailyStats struct {
	Day      string `json:"day"` // YYYY-MM-DD
	Sessions int64  `json:"sessions"`

	ByDevice   map[string]int64 `json:"by_device"`
	ByReferrer map[string]int64 `json:"by_referrer"`
	ByLanguage map[string]int64 `json:"by_language"`
	ByPattern  map[string]int64 `json:"by_pattern"`
	ByHour     map[string]int64 `json:"by_hour"`

	Engagement Engagement               `json:"engagement"`
	Funnel     Funnel                   `json:"funnel"`
	ByNetwork  map[string]*NetworkStats `json:"by_network"`
	Backfill   map[string]*NetworkStats `json:"by_backfill_network"`
	Zones      map[string]*ZoneStats    `json:"zones"`
	Posts      map[string]*PostStats    `json:"posts"`
	Overlays   map[string]*OverlayStats `json:"overlays"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Engagement holds cumulative engagement sums.
type Engagement struct {
	TimeOnPageMs int64 `json:"time_on_page_ms"`
	ScrollPctSum int64 `json:"scroll_pct_sum"`
	GateOpens    int64 `json:"gate_opens"`
}

// Funnel holds ad request totals.
type Funnel struct {
	Requested int64 `json:"requested"`
	Filled    int64 `json:"filled"`
	Empty     int64 `json:"empty"`
	Retries   int64 `json:"retries"`
}

// NetworkStats is the funnel for one ad network.
type NetworkStats struct {
	Requested int64 `json:"requested"`
	Filled    int64 `json:"filled"`
	Empty     int64 `json:"empty"`
}

// ZoneStats is the per-zone aggregate.
type ZoneStats struct {
	Format         string `json:"format,omitempty"`
	Activations    int64  `json:"activations"`
	Filled         int64  `json:"filled"`
	PassbackFilled int64  `json:"passback_filled"`
	Viewable       int64  `json:"viewable"`
	VisibleMs      int64  `json:"visible_ms"`
	Clicks         int64  `json:"clicks"`
}

// PostStats is the per-post aggregate.
type PostStats struct {
	Sessions     int64 `json:"sessions"`
	GateOpens    int64 `json:"gate_opens"`
	Filled       int64 `json:"filled"`
	Viewable     int64 `json:"viewable"`
	Clicks       int64 `json:"clicks"`
	TimeOnPageMs int64 `json:"time_on_page_ms"`
}

// OverlayStats is the per-overlay-format aggregate.
type OverlayStats struct {
	Fired     int64 `json:"fired"`
	Filled    int64 `json:"filled"`
	Viewable  int64 `json:"viewable"`
	VisibleMs int64 `json:"visible_ms"`
}
