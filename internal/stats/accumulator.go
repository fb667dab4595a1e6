// Package stats accumulates archived sessions into per-day records and merges
// day records into range reports.
package stats

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/inkline/adengine/internal/models"
)

// DayLayout is the key format of a DailyStats record.
const DayLayout = "2006-01-02"

// DayKey returns the day key of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// NewDailyStats returns a zeroed record with every map allocated.
func NewDailyStats(day string) *models.DailyStats {
	d := &models.DailyStats{Day: day}
	ensureMaps(d)
	return d
}

func ensureMaps(d *models.DailyStats) {
	if d.ByDevice == nil {
		d.ByDevice = make(map[string]int64)
	}
	if d.ByReferrer == nil {
		d.ByReferrer = make(map[string]int64)
	}
	if d.ByLanguage == nil {
		d.ByLanguage = make(map[string]int64)
	}
	if d.ByPattern == nil {
		d.ByPattern = make(map[string]int64)
	}
	if d.ByHour == nil {
		d.ByHour = make(map[string]int64)
	}
	if d.ByNetwork == nil {
		d.ByNetwork = make(map[string]*models.NetworkStats)
	}
	if d.Backfill == nil {
		d.Backfill = make(map[string]*models.NetworkStats)
	}
	if d.Zones == nil {
		d.Zones = make(map[string]*models.ZoneStats)
	}
	if d.Posts == nil {
		d.Posts = make(map[string]*models.PostStats)
	}
	if d.Overlays == nil {
		d.Overlays = make(map[string]*models.OverlayStats)
	}
}

// nonneg clamps client-supplied counts so a session can only ever add.
func nonneg[T int | int64](v T) int64 {
	if v < 0 {
		return 0
	}
	return int64(v)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

const unknown = "unknown"

func label(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return unknown
	}
	return v
}

// Referrer classes.
const (
	ReferrerDirect = "direct"
	ReferrerOther  = "other"
)

var referrerClasses = []struct {
	match string
	class string
}{
	{"news.google.", "google-news"},
	{"google.", "google"},
	{"bing.com", "bing"},
	{"duckduckgo.com", "duckduckgo"},
	{"yahoo.", "yahoo"},
	{"yandex.", "yandex"},
	{"baidu.com", "baidu"},
	{"ecosia.org", "ecosia"},
	{"facebook.com", "facebook"},
	{"fb.com", "facebook"},
	{"instagram.com", "instagram"},
	{"t.co", "twitter"},
	{"twitter.com", "twitter"},
	{"x.com", "twitter"},
	{"reddit.com", "reddit"},
	{"pinterest.", "pinterest"},
	{"linkedin.com", "linkedin"},
	{"flipboard.com", "flipboard"},
}

// ClassifyReferrer maps a referrer URL onto a small closed set of classes.
func ClassifyReferrer(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ReferrerDirect
	}
	host := ref
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, rc := range referrerClasses {
		if hostMatches(host, rc.match) {
			return rc.class
		}
	}
	return ReferrerOther
}

// hostMatches treats a pattern ending in "." as any-TLD and anything else as
// a registrable domain.
func hostMatches(host, pattern string) bool {
	if strings.HasSuffix(pattern, ".") {
		return strings.HasPrefix(host, pattern) || strings.Contains(host, "."+pattern)
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// Thresholds for deriving a scroll pattern when the client sent none.
const (
	bounceMaxMs     = 10_000
	bounceMaxScroll = 30
	readerMinMs     = 45_000
	readerMinScroll = 60
)

// ClassifySession returns the session's engagement class: the client's own
// classification when it sent a known one, otherwise derived from dwell time
// and scroll depth.
func ClassifySession(s models.SessionEvent) string {
	switch p := strings.ToLower(s.ScrollPattern); p {
	case models.PatternBouncer, models.PatternScanner, models.PatternReader:
		return p
	}
	switch {
	case s.TimeOnPageMs < bounceMaxMs && s.MaxScrollPct < bounceMaxScroll:
		return models.PatternBouncer
	case s.TimeOnPageMs >= readerMinMs && s.MaxScrollPct >= readerMinScroll:
		return models.PatternReader
	default:
		return models.PatternScanner
	}
}

func language(lang string) string {
	lang = label(lang)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

func sessionHour(s models.SessionEvent, loc *time.Location) string {
	t := s.StartedAt
	if t.IsZero() {
		t = s.UpdatedAt
	}
	if t.IsZero() {
		return unknown
	}
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%02d", t.In(loc).Hour())
}

// MergeSession adds one session's contribution to day. Only sums and counts
// are stored. The hour breakdown is read in loc, or UTC when loc is nil.
func MergeSession(day *models.DailyStats, s models.SessionEvent, loc *time.Location) {
	ensureMaps(day)
	day.Sessions++

	day.ByDevice[label(s.Device)]++
	day.ByReferrer[ClassifyReferrer(s.Referrer)]++
	day.ByLanguage[language(s.Language)]++
	day.ByPattern[ClassifySession(s)]++
	day.ByHour[sessionHour(s, loc)]++

	scroll := nonneg(s.MaxScrollPct)
	if scroll > 100 {
		scroll = 100
	}
	day.Engagement.TimeOnPageMs += nonneg(s.TimeOnPageMs)
	day.Engagement.ScrollPctSum += scroll
	day.Engagement.GateOpens += b2i(s.GateOpened)

	f := s.Funnel
	day.Funnel.Requested += nonneg(f.Requested)
	day.Funnel.Filled += nonneg(f.Filled)
	day.Funnel.Empty += nonneg(f.Empty)
	day.Funnel.Retries += nonneg(f.Retries)
	if f.Requested > 0 || f.Network != "" {
		n := network(day.ByNetwork, label(f.Network))
		n.Requested += nonneg(f.Requested)
		n.Filled += nonneg(f.Filled)
		n.Empty += nonneg(f.Empty)
	}
	if f.BackfillRequested > 0 {
		n := network(day.Backfill, label(f.BackfillNetwork))
		n.Requested += nonneg(f.BackfillRequested)
		n.Filled += nonneg(f.BackfillFilled)
		n.Empty += nonneg(f.BackfillRequested - f.BackfillFilled)
	}

	var filled, viewable, clicks int64
	seen := make(map[string]bool, len(s.Zones))
	for _, z := range s.Zones {
		if z.ZoneID == "" || seen[z.ZoneID] {
			continue
		}
		seen[z.ZoneID] = true
		zs := day.Zones[z.ZoneID]
		if zs == nil {
			zs = &models.ZoneStats{}
			day.Zones[z.ZoneID] = zs
		}
		zs.Format = pickFormat(zs.Format, models.ZoneFormat(z))
		zs.Activations++
		zs.Filled += b2i(z.Filled)
		zs.PassbackFilled += b2i(z.Filled && z.Passback)
		zs.Viewable += b2i(z.ViewedAd())
		zs.VisibleMs += nonneg(z.VisibleMs)
		zs.Clicks += nonneg(z.Clicks)

		filled += b2i(z.Filled)
		viewable += b2i(z.ViewedAd())
		clicks += nonneg(z.Clicks)
	}

	if s.PostID != "" {
		p := day.Posts[s.PostID]
		if p == nil {
			p = &models.PostStats{}
			day.Posts[s.PostID] = p
		}
		p.Sessions++
		p.GateOpens += b2i(s.GateOpened)
		p.Filled += filled
		p.Viewable += viewable
		p.Clicks += clicks
		p.TimeOnPageMs += nonneg(s.TimeOnPageMs)
	}

	for name, o := range s.Overlays {
		switch name {
		case models.OverlayAnchor, models.OverlayInterstitial, models.OverlayPause:
		default:
			continue
		}
		ov := day.Overlays[name]
		if ov == nil {
			ov = &models.OverlayStats{}
			day.Overlays[name] = ov
		}
		ov.Fired += b2i(o.Fired)
		ov.Filled += b2i(o.Filled)
		ov.Viewable += b2i(o.Viewable)
		ov.VisibleMs += nonneg(o.VisibleMs)
	}

	if s.UpdatedAt.After(day.UpdatedAt) {
		day.UpdatedAt = s.UpdatedAt
	}
}

func network(m map[string]*models.NetworkStats, name string) *models.NetworkStats {
	n := m[name]
	if n == nil {
		n = &models.NetworkStats{}
		m[name] = n
	}
	return n
}

// Merge adds every counter of src into dst.
func Merge(dst, src *models.DailyStats) {
	ensureMaps(dst)
	if src == nil {
		return
	}
	dst.Sessions += src.Sessions
	addCounts(dst.ByDevice, src.ByDevice)
	addCounts(dst.ByReferrer, src.ByReferrer)
	addCounts(dst.ByLanguage, src.ByLanguage)
	addCounts(dst.ByPattern, src.ByPattern)
	addCounts(dst.ByHour, src.ByHour)

	dst.Engagement.TimeOnPageMs += src.Engagement.TimeOnPageMs
	dst.Engagement.ScrollPctSum += src.Engagement.ScrollPctSum
	dst.Engagement.GateOpens += src.Engagement.GateOpens

	dst.Funnel.Requested += src.Funnel.Requested
	dst.Funnel.Filled += src.Funnel.Filled
	dst.Funnel.Empty += src.Funnel.Empty
	dst.Funnel.Retries += src.Funnel.Retries

	for k, v := range src.ByNetwork {
		addNetwork(network(dst.ByNetwork, k), v)
	}
	for k, v := range src.Backfill {
		addNetwork(network(dst.Backfill, k), v)
	}
	for k, v := range src.Zones {
		z := dst.Zones[k]
		if z == nil {
			z = &models.ZoneStats{}
			dst.Zones[k] = z
		}
		z.Format = pickFormat(z.Format, v.Format)
		z.Activations += v.Activations
		z.Filled += v.Filled
		z.PassbackFilled += v.PassbackFilled
		z.Viewable += v.Viewable
		z.VisibleMs += v.VisibleMs
		z.Clicks += v.Clicks
	}
	for k, v := range src.Posts {
		p := dst.Posts[k]
		if p == nil {
			p = &models.PostStats{}
			dst.Posts[k] = p
		}
		p.Sessions += v.Sessions
		p.GateOpens += v.GateOpens
		p.Filled += v.Filled
		p.Viewable += v.Viewable
		p.Clicks += v.Clicks
		p.TimeOnPageMs += v.TimeOnPageMs
	}
	for k, v := range src.Overlays {
		o := dst.Overlays[k]
		if o == nil {
			o = &models.OverlayStats{}
			dst.Overlays[k] = o
		}
		o.Fired += v.Fired
		o.Filled += v.Filled
		o.Viewable += v.Viewable
		o.VisibleMs += v.VisibleMs
	}
	if src.UpdatedAt.After(dst.UpdatedAt) {
		dst.UpdatedAt = src.UpdatedAt
	}
}

// pickFormat keeps the smallest non-empty format name so the result never
// depends on merge order.
func pickFormat(cur, next string) string {
	if cur == "" || (next != "" && next < cur) {
		return next
	}
	return cur
}

func addCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] += v
	}
}

func addNetwork(dst, src *models.NetworkStats) {
	if src == nil {
		return
	}
	dst.Requested += src.Requested
	dst.Filled += src.Filled
	dst.Empty += src.Empty
}

// MergeRange combines day records into a new range record. Inputs are not
// modified and the result does not depend on their order.
func MergeRange(days []*models.DailyStats) *models.DailyStats {
	out := NewDailyStats("")
	for _, d := range days {
		Merge(out, d)
	}
	return out
}

// Clone returns a deep copy of d.
func Clone(d *models.DailyStats) *models.DailyStats {
	out := NewDailyStats(d.Day)
	Merge(out, d)
	return out
}
