package telemetry

import "github.com/inkline/adengine/internal/models"

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// mergeMax folds a terminal beacon into the last heartbeat of the same
// session. Counters take the larger value, flags are ORed and descriptive
// fields prefer the beacon.
func mergeMax(prev *models.SessionEvent, beacon models.SessionEvent) models.SessionEvent {
	if prev == nil {
		return beacon
	}
	out := beacon
	out.PostID = firstNonEmpty(beacon.PostID, prev.PostID)
	out.Device = firstNonEmpty(beacon.Device, prev.Device)
	out.Referrer = firstNonEmpty(beacon.Referrer, prev.Referrer)
	out.Language = firstNonEmpty(beacon.Language, prev.Language)
	out.ScrollPattern = firstNonEmpty(beacon.ScrollPattern, prev.ScrollPattern)
	if out.ViewportWidth == 0 {
		out.ViewportWidth, out.ViewportHeight = prev.ViewportWidth, prev.ViewportHeight
	}
	out.TimeOnPageMs = max(beacon.TimeOnPageMs, prev.TimeOnPageMs)
	out.MaxScrollPct = max(beacon.MaxScrollPct, prev.MaxScrollPct)
	out.GateOpened = beacon.GateOpened || prev.GateOpened

	out.Zones = mergeZones(prev.Zones, beacon.Zones)
	out.Overlays = mergeOverlays(prev.Overlays, beacon.Overlays)
	out.Funnel = mergeFunnel(prev.Funnel, beacon.Funnel)

	if !prev.StartedAt.IsZero() && (out.StartedAt.IsZero() || prev.StartedAt.Before(out.StartedAt)) {
		out.StartedAt = prev.StartedAt
	}
	if prev.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = prev.UpdatedAt
	}
	return out
}

func mergeZones(prev, beacon []models.ZoneReport) []models.ZoneReport {
	if len(prev) == 0 {
		return beacon
	}
	byID := make(map[string]int, len(prev))
	out := make([]models.ZoneReport, 0, len(prev)+len(beacon))
	for _, z := range prev {
		if _, dup := byID[z.ZoneID]; dup {
			continue
		}
		byID[z.ZoneID] = len(out)
		out = append(out, z)
	}
	for _, b := range beacon {
		i, ok := byID[b.ZoneID]
		if !ok {
			byID[b.ZoneID] = len(out)
			out = append(out, b)
			continue
		}
		p := out[i]
		out[i] = models.ZoneReport{
			ZoneID:            b.ZoneID,
			Size:              firstNonEmpty(b.Size, p.Size),
			Format:            firstNonEmpty(b.Format, p.Format),
			VisibleMs:         max(b.VisibleMs, p.VisibleMs),
			ViewableImps:      max(b.ViewableImps, p.ViewableImps),
			MaxRatio:          max(b.MaxRatio, p.MaxRatio),
			AvgRatio:          firstNonZero(b.AvgRatio, p.AvgRatio),
			TimeToFirstViewMs: firstNonZeroInt64(b.TimeToFirstViewMs, p.TimeToFirstViewMs),
			Filled:            b.Filled || p.Filled,
			Passback:          b.Passback || p.Passback,
			Clicks:            max(b.Clicks, p.Clicks),
		}
	}
	return out
}

func firstNonZero(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}

func firstNonZeroInt64(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

func mergeOverlays(prev, beacon map[string]models.OverlayReport) map[string]models.OverlayReport {
	if len(prev) == 0 {
		return beacon
	}
	out := make(map[string]models.OverlayReport, len(prev)+len(beacon))
	for k, v := range prev {
		out[k] = v
	}
	for k, b := range beacon {
		p := out[k]
		out[k] = models.OverlayReport{
			Fired:     b.Fired || p.Fired,
			Filled:    b.Filled || p.Filled,
			Viewable:  b.Viewable || p.Viewable,
			VisibleMs: max(b.VisibleMs, p.VisibleMs),
		}
	}
	return out
}

func mergeFunnel(prev, b models.FunnelReport) models.FunnelReport {
	return models.FunnelReport{
		Requested:         max(b.Requested, prev.Requested),
		Filled:            max(b.Filled, prev.Filled),
		Empty:             max(b.Empty, prev.Empty),
		Retries:           max(b.Retries, prev.Retries),
		Network:           firstNonEmpty(b.Network, prev.Network),
		BackfillNetwork:   firstNonEmpty(b.BackfillNetwork, prev.BackfillNetwork),
		BackfillRequested: max(b.BackfillRequested, prev.BackfillRequested),
		BackfillFilled:    max(b.BackfillFilled, prev.BackfillFilled),
	}
}
