package scanner

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/pkg/response"
)

// PlaceRequest is the body for POST /api/placements.
type PlaceRequest struct {
	PostID string `json:"post_id" binding:"required"`
	HTML   string `json:"html"`
}

// ScoreRequest is the body for POST /api/placements/blocks, used by renderers
// that already split the article into blocks.
type ScoreRequest struct {
	Blocks []models.Block         `json:"blocks" binding:"required"`
	Config models.PlacementConfig `json:"config"`
}

// Handler exposes the scanner to the page renderer.
type Handler struct {
	scanner *Scanner
	logger  *zap.Logger
}

// NewHandler creates a scanner handler.
func NewHandler(scanner *Scanner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{scanner: scanner, logger: logger}
}

// Place handles POST /api/placements.
func (h *Handler) Place(c *gin.Context) {
	var req PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.scanner.Render(c.Request.Context(), req.PostID, req.HTML)
	if err != nil {
		h.logger.Error("scan article", zap.String("post_id", req.PostID), zap.Error(err))
		response.Internal(c, "failed to place zones")
		return
	}
	response.OK(c, res)
}

// PlaceBlocks handles POST /api/placements/blocks and returns block indices.
func (h *Handler) PlaceBlocks(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	picks := PlaceZones(req.Blocks, req.Config)
	if picks == nil {
		picks = []int{}
	}
	response.OK(c, gin.H{"indices": picks})
}
