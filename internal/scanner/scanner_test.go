package scanner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkline/adengine/internal/models"
)

type staticSettings struct{ s models.Settings }

func (s staticSettings) Get(context.Context) (models.Settings, error) { return s.s, nil }

func article(paragraphs int) string {
	var sb strings.Builder
	sb.WriteString(`<div class="entry-content">`)
	for i := 1; i <= paragraphs; i++ {
		sb.WriteString("<p>")
		sb.WriteString(strings.Repeat("word ", 80))
		sb.WriteString("</p>")
		if i == 2 {
			sb.WriteString(`<figure><img src="a.jpg"><figcaption>x</figcaption></figure>`)
		}
		if i == 5 {
			sb.WriteString(`<ul><li>one</li><li>two</li></ul>`)
		}
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func TestParseHTML(t *testing.T) {
	require := require.New(t)

	doc, err := ParseHTML(article(6) + `<script>var x</script>`)
	require.NoError(err)
	require.Len(doc.Blocks, 8)
	require.Equal(6, CountParagraphs(doc.Blocks))

	fig := doc.Blocks[2]
	require.Equal("figure", fig.Tag)
	require.True(fig.HasImage)
	require.Equal(2, fig.ParagraphIndex)

	list := doc.Blocks[6]
	require.Equal("ul", list.Tag)
	require.Equal(5, list.ParagraphIndex)
	require.Equal(399, doc.Blocks[0].TextLength)
}

func TestParseHTMLManualMarkers(t *testing.T) {
	require := require.New(t)

	doc, err := ParseHTML(`<p>a</p><div data-ad-zone="manual"></div><p>b</p>`)
	require.NoError(err)
	require.Equal(1, doc.ManualZones())
	require.Len(doc.Blocks, 2)
}

func TestRender(t *testing.T) {
	require := require.New(t)

	settings := models.Settings{
		Enabled:          true,
		Formats:          map[string]bool{models.FormatMediumRectangle: true, models.FormatLargeRectangle: true},
		MinSpacingPx:     900,
		MaxZonesPerPost:  4,
		GateScrollPct:    25,
		GateDwellSeconds: 5,
	}
	s := NewScanner(staticSettings{settings}, Defaults{MinParagraphs: 3, ParagraphPx: 300}, nil)

	res, err := s.Render(context.Background(), "post-1", article(12))
	require.NoError(err)
	require.NotEmpty(res.Zones)
	require.LessOrEqual(len(res.Zones), 4)
	for _, z := range res.Zones {
		require.True(z.Injected)
		require.Contains(res.HTML, `id="`+z.ID+`"`)
		require.Equal("300x250", z.MobileSize)
	}
	require.Equal("content-1", res.Zones[0].ID)
	require.Equal(25, res.Client.GateScrollPct)
	require.Equal(900, res.Client.MinSpacingPx)
}

func TestRenderManualZonesCountAgainstCap(t *testing.T) {
	require := require.New(t)

	settings := models.Settings{
		Enabled:         true,
		Formats:         map[string]bool{models.FormatMediumRectangle: true},
		MinSpacingPx:    300,
		MaxZonesPerPost: 2,
	}
	s := NewScanner(staticSettings{settings}, Defaults{MinParagraphs: 1, ParagraphPx: 300}, nil)

	content := strings.Replace(article(10), `<div class="entry-content">`,
		`<div class="entry-content"><div data-ad-zone="manual"></div>`, 1)
	res, err := s.Render(context.Background(), "post-2", content)
	require.NoError(err)
	require.Len(res.Zones, 2)
	require.True(res.Zones[0].IsManual())
	require.Contains(res.HTML, `data-zone="manual-1"`)
	require.Equal("content-1", res.Zones[1].ID)
}

func TestRenderDisabled(t *testing.T) {
	settings := models.Settings{Enabled: false, MaxZonesPerPost: 4, MinSpacingPx: 600}
	s := NewScanner(staticSettings{settings}, Defaults{}, nil)

	res, err := s.Render(context.Background(), "post-3", article(12))
	require.NoError(t, err)
	require.Empty(t, res.Zones)
	require.NotContains(t, res.HTML, "ad-zone")
}
