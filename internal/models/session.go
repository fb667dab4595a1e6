package models

import "time"

// Device classes reported by the client.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Scroll patterns. Clients classify scroll speed; the server derives one
// from time and depth when the client omits it.
const (
	PatternBouncer = "bouncer"
	PatternScanner = "scanner"
	PatternReader  = "reader"
)

// Overlay formats tracked outside the in-content zones.
const (
	OverlayAnchor       = "anchor"
	OverlayInterstitial = "interstitial"
	OverlayPause        = "pause"
)

// SessionEvent is the wire record a client sends for one page view. Heartbeats
// carry cumulative snapshots; the beacon carries final totals.
type SessionEvent struct {
	SessionID      string                   `json:"sid"`
	PostID         string                   `json:"post_id,omitempty"`
	Device         string                   `json:"device,omitempty"`
	ViewportWidth  int                      `json:"vw,omitempty"`
	ViewportHeight int                      `json:"vh,omitempty"`
	Referrer       string                   `json:"referrer,omitempty"`
	Language       string                   `json:"lang,omitempty"`
	TimeOnPageMs   int64                    `json:"time_on_page_ms"`
	MaxScrollPct   int                      `json:"max_scroll_pct"`
	ScrollPattern  string                   `json:"scroll_pattern,omitempty"`
	GateOpened     bool                     `json:"gate_opened"`
	Zones          []ZoneReport             `json:"zones,omitempty"`
	Overlays       map[string]OverlayReport `json:"overlays,omitempty"`
	Funnel         FunnelReport             `json:"funnel"`

	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ZoneReport is the per-zone telemetry inside a session.
type ZoneReport struct {
	ZoneID            string  `json:"zone_id"`
	Size              string  `json:"size,omitempty"`
	Format            string  `json:"format,omitempty"`
	VisibleMs         int64   `json:"visible_ms"`
	ViewableImps      int     `json:"viewable_imps"`
	MaxRatio          float64 `json:"max_ratio"`
	AvgRatio          float64 `json:"avg_ratio"`
	TimeToFirstViewMs int64   `json:"ttfv_ms"`
	Filled            bool    `json:"filled"`
	Passback          bool    `json:"passback"`
	Clicks            int     `json:"clicks"`
}

// Viewable reports whether the zone met the viewability threshold at least once.
func (z ZoneReport) Viewable() bool { return z.ViewableImps > 0 }

// ViewedAd reports whether an ad was shown in the zone and seen. A view of an
// unfilled container is not an ad view.
func (z ZoneReport) ViewedAd() bool { return z.Filled && z.Viewable() }

// OverlayReport is the status of one overlay format within a session.
type OverlayReport struct {
	Fired     bool  `json:"fired"`
	Filled    bool  `json:"filled"`
	Viewable  bool  `json:"viewable"`
	VisibleMs int64 `json:"visible_ms"`
}

// FunnelReport counts ad requests for a session across the primary network and
// the passback network.
type FunnelReport struct {
	Requested         int    `json:"requested"`
	Filled            int    `json:"filled"`
	Empty             int    `json:"empty"`
	Retries           int    `json:"retries"`
	Network           string `json:"network,omitempty"`
	BackfillNetwork   string `json:"backfill_network,omitempty"`
	BackfillRequested int    `json:"backfill_requested"`
	BackfillFilled    int    `json:"backfill_filled"`
}

// ArchivedSession is a finished session as kept in the recent archive and the
// raw session log. Day is the stats day it was aggregated into.
type ArchivedSession struct {
	SessionEvent
	Day        string    `json:"day"`
	ArchivedAt time.Time `json:"archived_at"`
	Path       string    `json:"path"` // beacon, end or sweep
}
