package models

import "time"

// Settings is the shared placement configuration. The optimizer is its only
// automated writer; the scanner and clients read it.
type Settings struct {
	Enabled          bool            `json:"enabled"`
	Formats          map[string]bool `json:"formats"`
	MinSpacingPx     int             `json:"min_spacing_px"`
	MaxZonesPerPost  int             `json:"max_zones_per_post"`
	GateScrollPct    int             `json:"gate_scroll_pct"`
	GateDwellSeconds int             `json:"gate_dwell_seconds"`
	Version          int64           `json:"version"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Formats = make(map[string]bool, len(s.Formats))
	for k, v := range s.Formats {
		out.Formats[k] = v
	}
	return out
}

// EnabledFormats returns the number of enabled formats.
func (s Settings) EnabledFormats() int {
	n := 0
	for _, on := range s.Formats {
		if on {
			n++
		}
	}
	return n
}
