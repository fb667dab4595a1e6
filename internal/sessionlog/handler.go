package sessionlog

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/stats"
	"github.com/inkline/adengine/pkg/response"
)

// Handler serves the raw session log to admins.
type Handler struct {
	reader Reader
	loc    *time.Location
	logger *zap.Logger
}

// NewHandler creates a session log handler.
func NewHandler(reader Reader, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{reader: reader, loc: loc, logger: logger}
}

// ListDay handles GET /admin/sessions/archive?day=YYYY-MM-DD&limit=N.
func (h *Handler) ListDay(c *gin.Context) {
	day := c.DefaultQuery("day", stats.DayKey(time.Now(), h.loc))
	if _, err := time.Parse(stats.DayLayout, day); err != nil {
		response.BadRequest(c, "invalid day, use YYYY-MM-DD")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if err != nil || limit <= 0 || limit > 10000 {
		response.BadRequest(c, "limit must be between 1 and 10000")
		return
	}
	list, err := h.reader.ListByDay(c.Request.Context(), day, limit)
	if err != nil {
		h.logger.Error("list archived sessions", zap.String("day", day), zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, gin.H{"day": day, "count": len(list), "sessions": list})
}
