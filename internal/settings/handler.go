package settings

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/models"
	"github.com/inkline/adengine/pkg/response"
)

// Handler serves the admin settings endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a settings handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /admin/settings.
func (h *Handler) Get(c *gin.Context) {
	s, err := h.store.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("load settings", zap.Error(err))
		response.Internal(c, "failed to load settings")
		return
	}
	response.OK(c, s)
}

// Put handles PUT /admin/settings. The body must carry the version it was
// read at.
func (h *Handler) Put(c *gin.Context) {
	var s models.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	if err := Validate(s); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	stored, err := h.store.Set(c.Request.Context(), s)
	if errors.Is(err, ErrConcurrentMutation) {
		response.Conflict(c, "settings were changed by someone else, reload and retry")
		return
	}
	if err != nil {
		h.logger.Error("save settings", zap.Error(err))
		response.Internal(c, "failed to save settings")
		return
	}
	h.logger.Info("settings updated by admin",
		zap.Int64("version", stored.Version),
		zap.String("admin", c.GetString("email")),
	)
	response.OK(c, stored)
}
