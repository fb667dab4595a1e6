package scanner

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/inkline/adengine/internal/models"
)

// ManualMarkerSelector matches editor-placed zone markers.
const ManualMarkerSelector = `div[data-ad-zone="manual"]`

// Document is a parsed article body: its top-level blocks and manual markers.
type Document struct {
	doc    *goquery.Document
	nodes  []*goquery.Selection
	manual []*goquery.Selection
	Blocks []models.Block
}

// ParseHTML splits rendered article HTML into top-level blocks.
func ParseHTML(content string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse article html: %w", err)
	}
	d := &Document{doc: doc}

	paragraph := 0
	contentRoot(doc.Find("body")).Children().Each(func(_ int, s *goquery.Selection) {
		if s.Is(ManualMarkerSelector) {
			d.manual = append(d.manual, s)
			return
		}
		tag := goquery.NodeName(s)
		if tag == "script" || tag == "style" {
			return
		}
		if tag == "p" {
			paragraph++
		}
		d.nodes = append(d.nodes, s)
		d.Blocks = append(d.Blocks, models.Block{
			Tag:            tag,
			ParagraphIndex: paragraph,
			TextLength:     utf8.RuneCountInString(strings.TrimSpace(s.Text())),
			HasImage:       tag == "img" || tag == "picture" || s.Find("img, picture").Length() > 0,
		})
	})
	return d, nil
}

// contentRoot descends through single wrapper elements (e.g. an
// entry-content div) until it reaches the level holding the blocks.
func contentRoot(s *goquery.Selection) *goquery.Selection {
	for {
		children := s.Children().Not("script, style")
		if children.Length() != 1 || !children.Is("div, article, section, main") || children.Is(ManualMarkerSelector) {
			return s
		}
		s = children
	}
}

// ManualZones returns how many editor markers the article contains.
func (d *Document) ManualZones() int { return len(d.manual) }

// Inject writes zone containers into the document and returns the body HTML.
// Scanner zones are inserted after their block; manual zones fill the markers.
func (d *Document) Inject(zones []models.ZoneSpec) (string, error) {
	manual := 0
	for i := range zones {
		z := &zones[i]
		if z.IsManual() {
			if manual >= len(d.manual) {
				continue
			}
			m := d.manual[manual]
			manual++
			m.SetAttr("id", z.ID)
			m.SetAttr("data-zone", z.ID)
			m.SetAttr("data-format", z.Format)
			m.SetAttr("data-size-mobile", z.MobileSize)
			m.SetAttr("data-size-desktop", z.DesktopSize)
			z.Injected = true
			continue
		}
		if z.AfterBlock < 0 || z.AfterBlock >= len(d.nodes) {
			continue
		}
		d.nodes[z.AfterBlock].AfterHtml(zoneMarkup(*z))
		z.Injected = true
	}
	out, err := d.doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render article html: %w", err)
	}
	return out, nil
}

func zoneMarkup(z models.ZoneSpec) string {
	return fmt.Sprintf(
		`<div class="ad-zone" id="%s" data-zone="%s" data-format="%s" data-size-mobile="%s" data-size-desktop="%s"></div>`,
		html.EscapeString(z.ID), html.EscapeString(z.ID), html.EscapeString(z.Format),
		html.EscapeString(z.MobileSize), html.EscapeString(z.DesktopSize),
	)
}
