package models

// Block is one top-level element of an article body, scored as a candidate
// ad insertion point. Blocks only live for the duration of a scan.
type Block struct {
	Tag            string `json:"tag"`
	ParagraphIndex int    `json:"paragraph_index"`
	TextLength     int    `json:"text_length"`
	HasImage       bool   `json:"has_image"`
	Score          int    `json:"score"`
}

// IsParagraph reports whether the block is a text paragraph.
func (b Block) IsParagraph() bool { return b.Tag == "p" }

// PositionManual marks a zone placed by an editor marker rather than the scanner.
const PositionManual = -1

// ZoneSpec describes one ad zone embedded in rendered output.
type ZoneSpec struct {
	ID          string `json:"id"`
	Position    int    `json:"position"` // paragraph index, or PositionManual
	AfterBlock  int    `json:"after_block"`
	MobileSize  string `json:"mobile_size"`
	DesktopSize string `json:"desktop_size"`
	Format      string `json:"format"` // format family of the desktop size
	Injected    bool   `json:"injected"`
}

// IsManual reports whether the zone came from an editor marker.
func (z ZoneSpec) IsManual() bool { return z.Position == PositionManual }

// PlacementConfig constrains zone selection for a single post.
type PlacementConfig struct {
	MinParagraphs    int `json:"min_paragraphs"`
	MinGapParagraphs int `json:"min_gap_paragraphs"`
	MaxZonesPerPost  int `json:"max_zones_per_post"`
}
