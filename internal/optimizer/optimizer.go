// Package optimizer tunes placement settings from a daily snapshot.
//
// Rules run once, in a fixed order, each against the settings as left by the
// rules before it. Rule changes stop after the per-run budget; the safety
// rail always runs last and is not budgeted.
package optimizer

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/inkline/adengine/internal/models"
)

// Setting names used in change records.
const (
	SettingMinSpacing = "min_spacing_px"
	SettingDwell      = "gate_dwell_seconds"
	SettingMaxZones   = "max_zones_per_post"
	SettingFormatPfx  = "formats."
)

// Rule identifiers.
const (
	RuleViewabilityLow  = "viewability_low"
	RuleViewabilityHigh = "viewability_high"
	RuleBounceHigh      = "bounce_high"
	RuleBounceLow       = "bounce_low"
	RuleAdsLow          = "ads_low"
	RuleAdsHigh         = "ads_high"
	RuleZoneViewability = "zone_viewability"
)

// Limits holds the thresholds and bounds of the rule set.
type Limits struct {
	ViewabilityFloor  float64
	ViewabilityTarget float64
	SpacingStep       int
	SpacingMin        int
	SpacingMax        int

	BounceHigh float64
	BounceLow  float64
	DwellMin   int
	DwellMax   int

	AdsLow                float64
	AdsHigh               float64
	AdsHighViewabilityMax float64
	MaxZonesCeiling       int
	MaxZonesFloor         int

	ZoneMinImpressions int
	ZoneViewabilityMin float64

	MaxChangesPerRun int
}

// DefaultLimits returns the production rule thresholds.
func DefaultLimits() Limits {
	return Limits{
		ViewabilityFloor:  40,
		ViewabilityTarget: 65,
		SpacingStep:       100,
		SpacingMin:        400,
		SpacingMax:        2000,

		BounceHigh: 40,
		BounceLow:  15,
		DwellMin:   0,
		DwellMax:   15,

		AdsLow:                2,
		AdsHigh:               4,
		AdsHighViewabilityMax: 50,
		MaxZonesCeiling:       8,
		MaxZonesFloor:         2,

		ZoneMinImpressions: 5,
		ZoneViewabilityMin: 30,

		MaxChangesPerRun: 3,
	}
}

// Optimizer evaluates the rule set.
type Optimizer struct {
	limits Limits
}

// New creates an optimizer. A non-positive change budget takes the default.
func New(limits Limits) *Optimizer {
	if limits.MaxChangesPerRun <= 0 {
		limits.MaxChangesPerRun = DefaultLimits().MaxChangesPerRun
	}
	return &Optimizer{limits: limits}
}

// Limits returns the optimizer's thresholds.
func (o *Optimizer) Limits() Limits { return o.limits }

type run struct {
	l       Limits
	snap    *models.Snapshot
	cur     models.Settings
	changes []models.Change
}

func (r *run) budget() bool { return len(r.changes) < r.l.MaxChangesPerRun }

func (r *run) setInt(setting string, field *int, v int, rule, reason string) {
	r.changes = append(r.changes, models.Change{
		Setting:  setting,
		OldValue: strconv.Itoa(*field),
		NewValue: strconv.Itoa(v),
		Rule:     rule,
		Reason:   reason,
	})
	*field = v
}

// Run evaluates every rule against current and returns the updated settings
// with the changes made. current is not modified.
func (o *Optimizer) Run(snap *models.Snapshot, current models.Settings) (models.Settings, []models.Change) {
	r := &run{l: o.limits, snap: snap, cur: current.Clone()}
	if snap != nil {
		for _, rule := range []func(*run){
			viewabilityLow,
			viewabilityHigh,
			bounceHigh,
			bounceLow,
			adsLow,
			adsHigh,
			zoneViewability,
		} {
			if !r.budget() {
				break
			}
			rule(r)
		}
	}
	safetyRail(r)
	return r.cur, r.changes
}

func viewabilityLow(r *run) {
	v := r.snap.ViewabilityPct
	if v >= r.l.ViewabilityFloor || r.cur.MinSpacingPx >= r.l.SpacingMax {
		return
	}
	next := min(r.cur.MinSpacingPx+r.l.SpacingStep, r.l.SpacingMax)
	r.setInt(SettingMinSpacing, &r.cur.MinSpacingPx, next, RuleViewabilityLow,
		fmt.Sprintf("viewability %.1f%% below %.0f%%", v, r.l.ViewabilityFloor))
}

func viewabilityHigh(r *run) {
	v := r.snap.ViewabilityPct
	if v <= r.l.ViewabilityTarget || r.cur.MinSpacingPx <= r.l.SpacingMin {
		return
	}
	next := max(r.cur.MinSpacingPx-r.l.SpacingStep, r.l.SpacingMin)
	r.setInt(SettingMinSpacing, &r.cur.MinSpacingPx, next, RuleViewabilityHigh,
		fmt.Sprintf("viewability %.1f%% above %.0f%%", v, r.l.ViewabilityTarget))
}

func bounceHigh(r *run) {
	b := r.snap.BouncePct
	if b <= r.l.BounceHigh || r.cur.GateDwellSeconds >= r.l.DwellMax {
		return
	}
	r.setInt(SettingDwell, &r.cur.GateDwellSeconds, min(r.cur.GateDwellSeconds+1, r.l.DwellMax), RuleBounceHigh,
		fmt.Sprintf("bounce rate %.1f%% above %.0f%%", b, r.l.BounceHigh))
}

func bounceLow(r *run) {
	b := r.snap.BouncePct
	if b >= r.l.BounceLow || r.cur.GateDwellSeconds <= r.l.DwellMin {
		return
	}
	r.setInt(SettingDwell, &r.cur.GateDwellSeconds, max(r.cur.GateDwellSeconds-1, r.l.DwellMin), RuleBounceLow,
		fmt.Sprintf("bounce rate %.1f%% below %.0f%%", b, r.l.BounceLow))
}

func adsLow(r *run) {
	a := r.snap.AvgAdsPerSession
	if a >= r.l.AdsLow || r.cur.MaxZonesPerPost >= r.l.MaxZonesCeiling {
		return
	}
	r.setInt(SettingMaxZones, &r.cur.MaxZonesPerPost, r.cur.MaxZonesPerPost+1, RuleAdsLow,
		fmt.Sprintf("%.2f ads per session below %.0f", a, r.l.AdsLow))
}

func adsHigh(r *run) {
	a, v := r.snap.AvgAdsPerSession, r.snap.ViewabilityPct
	if a <= r.l.AdsHigh || v >= r.l.AdsHighViewabilityMax || r.cur.MaxZonesPerPost <= r.l.MaxZonesFloor {
		return
	}
	r.setInt(SettingMaxZones, &r.cur.MaxZonesPerPost, r.cur.MaxZonesPerPost-1, RuleAdsHigh,
		fmt.Sprintf("%.2f ads per session above %.0f at %.1f%% viewability", a, r.l.AdsHigh, v))
}

// zoneViewability disables a large format whose zones are rarely seen, as
// long as another format stays enabled.
func zoneViewability(r *run) {
	ids := make([]string, 0, len(r.snap.Zones))
	for id := range r.snap.Zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !r.budget() {
			return
		}
		z := r.snap.Zones[id]
		if z.Impressions < r.l.ZoneMinImpressions || z.ViewabilityPct >= r.l.ZoneViewabilityMin {
			continue
		}
		if !models.IsLargeFormat(z.Format) || !r.cur.Formats[z.Format] || enabledFormats(r.cur) < 2 {
			continue
		}
		r.cur.Formats[z.Format] = false
		r.changes = append(r.changes, models.Change{
			Setting:  SettingFormatPfx + z.Format,
			OldValue: "true",
			NewValue: "false",
			Rule:     RuleZoneViewability,
			Reason:   fmt.Sprintf("zone %s viewability %.1f%% below %.0f%% over %d impressions", id, z.ViewabilityPct, r.l.ZoneViewabilityMin, z.Impressions),
		})
	}
}

// enabledFormats counts enabled catalog formats.
func enabledFormats(s models.Settings) int {
	n := 0
	for _, f := range models.Formats {
		if s.Formats[f.Name] {
			n++
		}
	}
	return n
}

func safetyRail(r *run) {
	if enabledFormats(r.cur) > 0 {
		return
	}
	if r.cur.Formats == nil {
		r.cur.Formats = make(map[string]bool)
	}
	r.cur.Formats[models.DefaultFormat] = true
	r.changes = append(r.changes, models.Change{
		Setting:  SettingFormatPfx + models.DefaultFormat,
		OldValue: "false",
		NewValue: "true",
		Rule:     models.RuleSafety,
		Reason:   "no ad format enabled",
	})
}

// RuleChanges counts the budgeted changes in changes.
func RuleChanges(changes []models.Change) int {
	n := 0
	for _, c := range changes {
		if c.Rule != models.RuleSafety {
			n++
		}
	}
	return n
}
