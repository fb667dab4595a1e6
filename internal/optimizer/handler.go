package optimizer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/internal/snapshot"
	"github.com/inkline/adengine/internal/stats"
	"github.com/inkline/adengine/pkg/queue"
	"github.com/inkline/adengine/pkg/response"
)

// Enqueuer hands a run to the worker.
type Enqueuer interface {
	EnqueueOptimizerRun(ctx context.Context, payload queue.OptimizerRunPayload) (string, error)
}

// Handler serves the optimizer admin endpoints.
type Handler struct {
	job       *Job
	log       LogStore
	snapshots snapshot.Store
	enqueuer  Enqueuer
	logger    *zap.Logger
}

// NewHandler creates an optimizer handler. With a nil enqueuer manual runs
// execute inline.
func NewHandler(job *Job, log LogStore, snapshots snapshot.Store, enqueuer Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{job: job, log: log, snapshots: snapshots, enqueuer: enqueuer, logger: logger}
}

// GetLog handles GET /admin/optimizer/log?limit=N.
func (h *Handler) GetLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	list, err := h.log.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list optimizer log", zap.Error(err))
		response.Internal(c, "failed to load optimizer log")
		return
	}
	response.OK(c, gin.H{"entries": list})
}

// GetSnapshots handles GET /admin/optimizer/snapshots.
func (h *Handler) GetSnapshots(c *gin.Context) {
	list, err := h.snapshots.List(c.Request.Context(), snapshot.DefaultHistoryDays)
	if err != nil {
		h.logger.Error("list snapshots", zap.Error(err))
		response.Internal(c, "failed to load snapshots")
		return
	}
	response.OK(c, gin.H{"snapshots": list})
}

// RunRequest is the body of POST /admin/optimizer/run.
type RunRequest struct {
	Day   string `json:"day"`
	Force bool   `json:"force"`
}

// Run handles POST /admin/optimizer/run.
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid body")
			return
		}
	}
	if req.Day != "" {
		if _, err := time.Parse(stats.DayLayout, req.Day); err != nil {
			response.BadRequest(c, "invalid day, use YYYY-MM-DD")
			return
		}
	}

	if h.enqueuer != nil {
		id, err := h.enqueuer.EnqueueOptimizerRun(c.Request.Context(), queue.OptimizerRunPayload{
			Day:         req.Day,
			Force:       req.Force,
			RequestedBy: c.GetString("email"),
		})
		if err != nil {
			h.logger.Error("enqueue optimizer run", zap.Error(err))
			response.ServiceUnavailable(c, "failed to queue run")
			return
		}
		response.Accepted(c, gin.H{"job_id": id})
		return
	}

	entry, err := h.job.RunOnce(c.Request.Context(), req.Day, req.Force)
	if errors.Is(err, ErrRunInProgress) {
		response.Conflict(c, "a run is already in progress")
		return
	}
	if err != nil {
		h.logger.Error("optimizer run", zap.Error(err))
		response.Internal(c, "optimizer run failed")
		return
	}
	response.OK(c, entry)
}
