package scanner

import (
	"github.com/inkline/adengine/internal/models"
)

// Fallback kicks in when scoring leaves fewer than fallbackMinZones zones on a
// post with at least fallbackMinParagraphs paragraphs.
const (
	fallbackMinZones      = 2
	fallbackMinParagraphs = 8
	fallbackDivisor       = 4
)

// CountParagraphs returns the number of paragraph blocks.
func CountParagraphs(blocks []models.Block) int {
	n := 0
	for _, b := range blocks {
		if b.IsParagraph() {
			n++
		}
	}
	return n
}

// PlaceZones returns the indices of the blocks after which a zone should be
// inserted, in document order.
func PlaceZones(blocks []models.Block, cfg models.PlacementConfig) []int {
	if cfg.MaxZonesPerPost <= 0 {
		return nil
	}
	paragraphs := CountParagraphs(blocks)
	if paragraphs < cfg.MinParagraphs+2 {
		return nil
	}

	scored := ScoreBlocks(blocks)
	picks := selectScored(scored, cfg)
	if len(picks) < fallbackMinZones && paragraphs >= fallbackMinParagraphs {
		picks = selectEvenly(scored, paragraphs, cfg)
	}
	return picks
}

func selectScored(blocks []models.Block, cfg models.PlacementConfig) []int {
	var picks []int
	last := -1
	for i, b := range blocks {
		if len(picks) >= cfg.MaxZonesPerPost {
			break
		}
		if b.Score < minScore {
			continue
		}
		if b.ParagraphIndex < cfg.MinParagraphs {
			continue
		}
		if last >= 0 && b.ParagraphIndex-last < cfg.MinGapParagraphs {
			continue
		}
		picks = append(picks, i)
		last = b.ParagraphIndex
	}
	return picks
}

func selectEvenly(blocks []models.Block, paragraphs int, cfg models.PlacementConfig) []int {
	step := paragraphs / fallbackDivisor
	if cfg.MinGapParagraphs > step {
		step = cfg.MinGapParagraphs
	}
	if step < 1 {
		step = 1
	}
	start := cfg.MinParagraphs
	if start < 1 {
		start = 1
	}

	byParagraph := make(map[int]int, paragraphs)
	for i, b := range blocks {
		if b.IsParagraph() {
			byParagraph[b.ParagraphIndex] = i
		}
	}

	var picks []int
	for p := start; p < paragraphs && len(picks) < cfg.MaxZonesPerPost; p += step {
		if i, ok := byParagraph[p]; ok {
			picks = append(picks, i)
		}
	}
	return picks
}

// rotation returns the enabled formats usable on a viewport, in catalog order.
func rotation(formats map[string]bool, mobile bool, limit int) []models.Format {
	var out []models.Format
	for _, f := range models.Formats {
		if !formats[f.Name] {
			continue
		}
		if (mobile && !f.Mobile) || (!mobile && !f.Desktop) {
			continue
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Desktop zones alternate across the top two enabled desktop sizes; mobile
// always gets the best single mobile size.
const (
	mobileRotation  = 1
	desktopRotation = 2
)

// AssignSizes fills in mobile and desktop sizes by zone ordinal. A viewport
// with no enabled format gets an empty size and the client skips the zone.
func AssignSizes(zones []models.ZoneSpec, formats map[string]bool) {
	mobile := rotation(formats, true, mobileRotation)
	desktop := rotation(formats, false, desktopRotation)
	for i := range zones {
		zones[i].MobileSize, zones[i].DesktopSize, zones[i].Format = "", "", ""
		if len(mobile) > 0 {
			zones[i].MobileSize = mobile[i%len(mobile)].Size
		}
		if len(desktop) > 0 {
			f := desktop[i%len(desktop)]
			zones[i].DesktopSize = f.Size
			zones[i].Format = f.Name
		} else if len(mobile) > 0 {
			zones[i].Format = mobile[i%len(mobile)].Name
		}
	}
}
