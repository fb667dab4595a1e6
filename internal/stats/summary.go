package stats

import (
	"sort"

	"github.com/inkline/adengine/internal/models"
)

// Summary is the presentation view of a stats record. Averages and rates are
// computed here from accumulated sums.
type Summary struct {
	Sessions       int64         `json:"sessions"`
	AvgTimeOnPageS float64       `json:"avg_time_on_page_s"`
	AvgScrollPct   float64       `json:"avg_scroll_pct"`
	GateOpenPct    float64       `json:"gate_open_pct"`
	FillRatePct    float64       `json:"fill_rate_pct"`
	ViewabilityPct float64       `json:"viewability_pct"`
	CTRPct         float64       `json:"ctr_pct"`
	AdsPerSession  float64       `json:"ads_per_session"`
	Zones          []ZoneSummary `json:"zones"`
}

// ZoneSummary is one zone line of a Summary.
type ZoneSummary struct {
	ZoneID         string  `json:"zone_id"`
	Format         string  `json:"format,omitempty"`
	Activations    int64   `json:"activations"`
	FillRatePct    float64 `json:"fill_rate_pct"`
	ViewabilityPct float64 `json:"viewability_pct"`
	AvgVisibleS    float64 `json:"avg_visible_s"`
}

func pct(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Summarize derives a Summary from d.
func Summarize(d *models.DailyStats) Summary {
	var filled, viewable, clicks int64
	zones := make([]ZoneSummary, 0, len(d.Zones))
	for id, z := range d.Zones {
		filled += z.Filled
		viewable += z.Viewable
		clicks += z.Clicks
		zones = append(zones, ZoneSummary{
			ZoneID:         id,
			Format:         z.Format,
			Activations:    z.Activations,
			FillRatePct:    pct(z.Filled, z.Activations),
			ViewabilityPct: pct(z.Viewable, z.Filled),
			AvgVisibleS:    ratio(z.VisibleMs, z.Activations) / 1000,
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ZoneID < zones[j].ZoneID })

	fillRate := pct(d.Funnel.Filled, d.Funnel.Requested)
	if d.Funnel.Requested == 0 {
		var activations int64
		for _, z := range d.Zones {
			activations += z.Activations
		}
		fillRate = pct(filled, activations)
	}

	return Summary{
		Sessions:       d.Sessions,
		AvgTimeOnPageS: ratio(d.Engagement.TimeOnPageMs, d.Sessions) / 1000,
		AvgScrollPct:   ratio(d.Engagement.ScrollPctSum, d.Sessions),
		GateOpenPct:    pct(d.Engagement.GateOpens, d.Sessions),
		FillRatePct:    fillRate,
		ViewabilityPct: pct(viewable, filled),
		CTRPct:         pct(clicks, filled),
		AdsPerSession:  ratio(filled, d.Sessions),
		Zones:          zones,
	}
}
