package scanner

import (
	"strings"

	"github.com/inkline/adengine/internal/models"
)

// Scoring weights for candidate insertion points.
const (
	scoreLongParagraph  = 3
	scoreShortParagraph = 1
	scoreImage          = 4
	scoreStructured     = -10
	scoreHeading        = -5
	scoreSectionEnd     = 5

	longParagraphChars = 300
	minScore           = 2
)

var structuredTags = map[string]bool{
	"ul": true, "ol": true, "dl": true, "table": true,
	"blockquote": true, "pre": true, "details": true,
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

func isSectionHeading(tag string) bool {
	return tag == "h2" || tag == "h3"
}

// ScoreBlocks returns a copy of blocks with Score filled in. Each block gets a
// base score from its own shape, then a bonus when the next block opens a new
// section.
func ScoreBlocks(blocks []models.Block) []models.Block {
	out := make([]models.Block, len(blocks))
	for i, b := range blocks {
		b.Tag = strings.ToLower(b.Tag)
		b.Score = baseScore(b)
		out[i] = b
	}
	for i := 0; i+1 < len(out); i++ {
		if isSectionHeading(out[i+1].Tag) {
			out[i].Score += scoreSectionEnd
		}
	}
	return out
}

func baseScore(b models.Block) int {
	score := 0
	if b.Tag == "p" {
		if b.TextLength > longParagraphChars {
			score += scoreLongParagraph
		} else {
			score += scoreShortParagraph
		}
	}
	if b.HasImage || b.Tag == "figure" {
		score += scoreImage
	}
	if structuredTags[b.Tag] {
		score += scoreStructured
	}
	if isHeading(b.Tag) {
		score += scoreHeading
	}
	return score
}
