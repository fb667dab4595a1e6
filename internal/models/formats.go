package models

// Ad format families. A format is enabled or disabled as a whole through
// Settings.Formats.
const (
	FormatMediumRectangle = "medium-rectangle"
	FormatLargeRectangle  = "large-rectangle"
	FormatLeaderboard     = "leaderboard"
	FormatHalfPage        = "half-page"
)

// DefaultFormat is re-enabled by the optimizer safety rail.
const DefaultFormat = FormatMediumRectangle

// Format describes one entry of the format catalog.
type Format struct {
	Name    string
	Size    string
	Mobile  bool
	Desktop bool
	Large   bool
}

// Formats is the catalog, in rotation preference order.
var Formats = []Format{
	{Name: FormatMediumRectangle, Size: "300x250", Mobile: true, Desktop: true},
	{Name: FormatLargeRectangle, Size: "336x280", Desktop: true, Large: true},
	{Name: FormatLeaderboard, Size: "728x90", Desktop: true, Large: true},
	{Name: FormatHalfPage, Size: "300x600", Desktop: true, Large: true},
}

// LookupFormat returns the catalog entry for name.
func LookupFormat(name string) (Format, bool) {
	for _, f := range Formats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// FormatForSize maps a rendered size label such as "336x280" to its format
// family. Unknown sizes map to "".
func FormatForSize(size string) string {
	for _, f := range Formats {
		if f.Size == size {
			return f.Name
		}
	}
	return ""
}

// IsLargeFormat reports whether name belongs to the large-format family.
func IsLargeFormat(name string) bool {
	f, ok := LookupFormat(name)
	return ok && f.Large
}

// ZoneFormat resolves the format family of a zone report, preferring the
// format the zone was rendered with over its size label.
func ZoneFormat(z ZoneReport) string {
	if _, ok := LookupFormat(z.Format); ok {
		return z.Format
	}
	return FormatForSize(z.Size)
}
