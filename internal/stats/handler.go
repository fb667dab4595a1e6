package stats

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/pkg/response"
	"github.com/inkline/adengine/pkg/storage"
)

// maxRangeDays bounds a single report request.
const maxRangeDays = 366

// RangeResponse is the JSON shape of GET /admin/stats.
type RangeResponse struct {
	From    string             `json:"from"`
	To      string             `json:"to"`
	Days    int                `json:"days"`
	Summary Summary            `json:"summary"`
	Totals  *models.DailyStats `json:"totals"`
}

// ArchiveLinker signs download links for exported days.
type ArchiveLinker interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

// Handler serves date-range reports.
type Handler struct {
	store   Store
	archive ArchiveLinker
	loc     *time.Location
	logger  *zap.Logger
}

// NewHandler creates a stats handler.
func NewHandler(store Store, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{store: store, loc: loc, logger: logger}
}

// WithArchive enables GET /admin/stats/archive.
func (h *Handler) WithArchive(a ArchiveLinker) *Handler {
	h.archive = a
	return h
}

// GetRange handles GET /admin/stats?from=YYYY-MM-DD&to=YYYY-MM-DD. The range
// defaults to the last seven days.
func (h *Handler) GetRange(c *gin.Context) {
	now := time.Now().In(h.loc)
	to := c.DefaultQuery("to", now.Format(DayLayout))
	from := c.DefaultQuery("from", now.AddDate(0, 0, -6).Format(DayLayout))

	fromT, err := time.ParseInLocation(DayLayout, from, h.loc)
	if err != nil {
		response.BadRequest(c, "invalid 'from' date, use YYYY-MM-DD")
		return
	}
	toT, err := time.ParseInLocation(DayLayout, to, h.loc)
	if err != nil {
		response.BadRequest(c, "invalid 'to' date, use YYYY-MM-DD")
		return
	}
	if toT.Before(fromT) {
		response.BadRequest(c, "'to' must not be before 'from'")
		return
	}
	if toT.Sub(fromT) > maxRangeDays*24*time.Hour {
		response.BadRequest(c, "range too large")
		return
	}

	days, err := h.store.Range(c.Request.Context(), from, to)
	if err != nil {
		h.logger.Error("load stats range", zap.String("from", from), zap.String("to", to), zap.Error(err))
		response.Internal(c, "failed to load stats")
		return
	}
	totals := MergeRange(days)
	response.OK(c, RangeResponse{
		From:    from,
		To:      to,
		Days:    len(days),
		Summary: Summarize(totals),
		Totals:  totals,
	})
}

// GetArchived handles GET /admin/stats/archive?day=YYYY-MM-DD and returns a
// signed link to a day removed by retention.
func (h *Handler) GetArchived(c *gin.Context) {
	if h.archive == nil {
		response.NotFound(c, "cold archive not configured")
		return
	}
	day := c.Query("day")
	if _, err := time.ParseInLocation(DayLayout, day, h.loc); err != nil {
		response.BadRequest(c, "invalid 'day', use YYYY-MM-DD")
		return
	}
	url, err := h.archive.PresignGet(c.Request.Context(), ArchiveKey(day))
	if errors.Is(err, storage.ErrNotFound) {
		response.NotFound(c, "day not archived")
		return
	}
	if err != nil {
		h.logger.Error("presign archived day", zap.String("day", day), zap.Error(err))
		response.Internal(c, "failed to sign archive link")
		return
	}
	response.OK(c, gin.H{"day": day, "url": url})
}
