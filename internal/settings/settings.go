// Package settings stores the single placement settings record shared by
// the scanner and the optimizer.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkline/adengine/internal/models"
)

// ErrConcurrentMutation is returned by Set when the stored version moved on
// since the caller read it.
var ErrConcurrentMutation = errors.New("settings changed concurrently")

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("invalid settings")

// Store reads and replaces the settings record. Set succeeds only when
// s.Version equals the stored version; it stores s with the next version and
// returns what it stored.
type Store interface {
	Get(ctx context.Context) (models.Settings, error)
	Set(ctx context.Context, s models.Settings) (models.Settings, error)
}

// Defaults is the record used before anything was stored.
func Defaults() models.Settings {
	return models.Settings{
		Enabled: true,
		Formats: map[string]bool{
			models.FormatMediumRectangle: true,
			models.FormatLargeRectangle:  true,
			models.FormatLeaderboard:     true,
			models.FormatHalfPage:        false,
		},
		MinSpacingPx:     1200,
		MaxZonesPerPost:  3,
		GateScrollPct:    25,
		GateDwellSeconds: 5,
	}
}

// Validation bounds for admin edits.
const (
	MinSpacingPx    = 100
	MaxSpacingPx    = 5000
	MaxZonesPerPost = 20
	MaxDwellSeconds = 120
)

// Validate checks s for values the scanner cannot serve.
func Validate(s models.Settings) error {
	switch {
	case s.MinSpacingPx < MinSpacingPx || s.MinSpacingPx > MaxSpacingPx:
		return fmt.Errorf("%w: min_spacing_px must be between %d and %d", ErrInvalid, MinSpacingPx, MaxSpacingPx)
	case s.MaxZonesPerPost < 0 || s.MaxZonesPerPost > MaxZonesPerPost:
		return fmt.Errorf("%w: max_zones_per_post must be between 0 and %d", ErrInvalid, MaxZonesPerPost)
	case s.GateScrollPct < 0 || s.GateScrollPct > 100:
		return fmt.Errorf("%w: gate_scroll_pct must be between 0 and 100", ErrInvalid)
	case s.GateDwellSeconds < 0 || s.GateDwellSeconds > MaxDwellSeconds:
		return fmt.Errorf("%w: gate_dwell_seconds must be between 0 and %d", ErrInvalid, MaxDwellSeconds)
	}
	for name := range s.Formats {
		if _, ok := models.LookupFormat(name); !ok {
			return fmt.Errorf("%w: unknown format %q", ErrInvalid, name)
		}
	}
	if s.EnabledFormats() == 0 {
		return fmt.Errorf("%w: at least one format must stay enabled", ErrInvalid)
	}
	return nil
}

// normalize gives every catalog format an explicit entry.
func normalize(s models.Settings) models.Settings {
	s = s.Clone()
	for _, f := range models.Formats {
		if _, ok := s.Formats[f.Name]; !ok {
			s.Formats[f.Name] = false
		}
	}
	return s
}
