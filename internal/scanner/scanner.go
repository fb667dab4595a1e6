package scanner

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/pkg/metrics"
)

// SettingsReader is the read side of the settings store.
type SettingsReader interface {
	Get(ctx context.Context) (models.Settings, error)
}

// Defaults holds scanner parameters that are not optimizer-controlled.
type Defaults struct {
	MinParagraphs int
	ParagraphPx   int // average rendered paragraph height, converts pixel spacing to paragraphs
}

// ClientConfig is embedded in the page for the client-side zone loader.
type ClientConfig struct {
	Enabled          bool `json:"enabled"`
	MinSpacingPx     int  `json:"min_spacing_px"`
	GateScrollPct    int  `json:"gate_scroll_pct"`
	GateDwellSeconds int  `json:"gate_dwell_seconds"`
}

// Result is the outcome of scanning one article.
type Result struct {
	PostID string            `json:"post_id"`
	HTML   string            `json:"html"`
	Zones  []models.ZoneSpec `json:"zones"`
	Client ClientConfig      `json:"client"`
}

// Scanner chooses zone placements for rendered articles using the current settings.
type Scanner struct {
	settings SettingsReader
	defaults Defaults
	logger   *zap.Logger
}

// NewScanner creates a content scanner.
func NewScanner(settings SettingsReader, defaults Defaults, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.MinParagraphs <= 0 {
		defaults.MinParagraphs = 3
	}
	if defaults.ParagraphPx <= 0 {
		defaults.ParagraphPx = 300
	}
	return &Scanner{settings: settings, defaults: defaults, logger: logger}
}

// ConfigFromSettings converts settings into paragraph-based placement
// constraints. A disabled engine places nothing.
func ConfigFromSettings(s models.Settings, d Defaults) models.PlacementConfig {
	cfg := models.PlacementConfig{
		MinParagraphs:   d.MinParagraphs,
		MaxZonesPerPost: s.MaxZonesPerPost,
	}
	if !s.Enabled {
		cfg.MaxZonesPerPost = 0
	}
	gap := 1
	if d.ParagraphPx > 0 {
		gap = int(math.Round(float64(s.MinSpacingPx) / float64(d.ParagraphPx)))
	}
	if gap < 1 {
		gap = 1
	}
	cfg.MinGapParagraphs = gap
	return cfg
}

// Plan selects zones for the given blocks. manual editor markers count
// against the per-post cap and are listed first.
func Plan(blocks []models.Block, manual int, cfg models.PlacementConfig, formats map[string]bool) []models.ZoneSpec {
	if cfg.MaxZonesPerPost <= 0 {
		return nil
	}
	if manual > cfg.MaxZonesPerPost {
		manual = cfg.MaxZonesPerPost
	}
	zones := make([]models.ZoneSpec, 0, cfg.MaxZonesPerPost)
	for i := 0; i < manual; i++ {
		zones = append(zones, models.ZoneSpec{
			ID:         fmt.Sprintf("manual-%d", i+1),
			Position:   models.PositionManual,
			AfterBlock: -1,
		})
	}

	remaining := cfg
	remaining.MaxZonesPerPost -= manual
	for n, idx := range PlaceZones(blocks, remaining) {
		zones = append(zones, models.ZoneSpec{
			ID:         fmt.Sprintf("content-%d", n+1),
			Position:   blocks[idx].ParagraphIndex,
			AfterBlock: idx,
		})
	}
	AssignSizes(zones, formats)
	return zones
}

// Render scans article HTML and returns it with zone containers injected.
func (s *Scanner) Render(ctx context.Context, postID, content string) (*Result, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	doc, err := ParseHTML(content)
	if err != nil {
		return nil, err
	}

	cfg := ConfigFromSettings(settings, s.defaults)
	zones := Plan(doc.Blocks, doc.ManualZones(), cfg, settings.Formats)
	out, err := doc.Inject(zones)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("article scanned",
		zap.String("post_id", postID),
		zap.Int("blocks", len(doc.Blocks)),
		zap.Int("paragraphs", CountParagraphs(doc.Blocks)),
		zap.Int("zones", len(zones)),
	)
	for _, z := range zones {
		if z.IsManual() {
			metrics.AddPlacements("manual", 1)
		} else {
			metrics.AddPlacements("scanner", 1)
		}
	}
	if zones == nil {
		zones = []models.ZoneSpec{}
	}
	return &Result{
		PostID: postID,
		HTML:   out,
		Zones:  zones,
		Client: ClientConfig{
			Enabled:          settings.Enabled,
			MinSpacingPx:     settings.MinSpacingPx,
			GateScrollPct:    settings.GateScrollPct,
			GateDwellSeconds: settings.GateDwellSeconds,
		},
	}, nil
}
