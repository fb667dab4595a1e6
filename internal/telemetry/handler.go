package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/pkg/response"
)

// maxBodyBytes caps a telemetry payload.
const maxBodyBytes = 64 << 10

// Handler exposes the telemetry ingress and the admin session views.
type Handler struct {
	ingestor *Ingestor
	logger   *zap.Logger
}

// NewHandler creates a telemetry handler.
func NewHandler(ingestor *Ingestor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ingestor: ingestor, logger: logger}
}

// Heartbeat handles POST /api/telemetry/heartbeat.
func (h *Handler) Heartbeat(c *gin.Context) { h.ingest(c, KindHeartbeat) }

// Beacon handles POST /api/telemetry/beacon. sendBeacon posts text/plain, so
// the body is decoded regardless of content type.
func (h *Handler) Beacon(c *gin.Context) { h.ingest(c, KindBeacon) }

// End handles POST /api/telemetry/end.
func (h *Handler) End(c *gin.Context) { h.ingest(c, KindEnd) }

// ingest always answers 204; failures are only logged.
func (h *Handler) ingest(c *gin.Context, kind Kind) {
	defer response.NoContent(c)

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.Debug("telemetry body read failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	var ev models.SessionEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.logger.Debug("telemetry body invalid", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	src := Source{IP: c.ClientIP(), UserAgent: c.Request.UserAgent(), Kind: kind}
	if _, err := h.ingestor.Ingest(c.Request.Context(), ev, src); err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			h.logger.Debug("telemetry event dropped", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
		h.logger.Error("telemetry ingest failed",
			zap.String("kind", string(kind)),
			zap.String("sid", ev.SessionID),
			zap.Error(err),
		)
	}
}

// Live handles GET /admin/sessions/live.
func (h *Handler) Live(c *gin.Context) {
	list, err := h.ingestor.Live(c.Request.Context())
	if err != nil {
		h.logger.Error("list live sessions", zap.Error(err))
		response.ServiceUnavailable(c, "live sessions unavailable")
		return
	}
	response.OK(c, gin.H{"count": len(list), "sessions": list})
}

// Recent handles GET /admin/sessions/recent?limit=N.
func (h *Handler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.ingestor.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list recent sessions", zap.Error(err))
		response.ServiceUnavailable(c, "recent sessions unavailable")
		return
	}
	response.OK(c, gin.H{"count": len(list), "sessions": list})
}
