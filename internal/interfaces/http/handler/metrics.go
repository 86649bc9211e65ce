package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/domain/metrics"
	"github.com/Marseau/UBS-sub017/internal/interfaces/http/dto"
)

// RecalculationRunner is the slice of the recalculation service the handler
// depends on.
type RecalculationRunner interface {
	RunAsync(ctx context.Context, periods []metrics.Period) (*metrics.RunLedgerEntry, error)
	Stats() appmetrics.ServiceStats
}

// MetricsHandler serves the metrics API: recalculation triggers, run history
// and computed snapshots.
type MetricsHandler struct {
	BaseHandler
	runner  RecalculationRunner
	records metrics.MetricsRepository
	ledger  metrics.RunLedgerRepository
	logger  *zap.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(
	runner RecalculationRunner,
	records metrics.MetricsRepository,
	ledger metrics.RunLedgerRepository,
	logger *zap.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		runner:  runner,
		records: records,
		ledger:  ledger,
		logger:  logger,
	}
}

// RegisterRoutes registers the metrics routes
func (h *MetricsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/metrics")
	{
		group.POST("/recalculate", h.Recalculate)
		group.GET("/runs", h.ListRuns)
		group.GET("/runs/:id", h.GetRun)
		group.GET("/stats", h.GetStats)
		group.GET("/platform", h.GetPlatformTotals)
	}

	rg.GET("/tenants/:id/metrics", h.GetTenantMetrics)
}

// Recalculate starts an asynchronous recalculation run.
// POST /api/v1/metrics/recalculate
func (h *MetricsHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	periods := make([]metrics.Period, 0, len(req.Periods))
	for _, raw := range req.Periods {
		period, err := metrics.ParsePeriod(raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		periods = append(periods, period)
	}

	entry, err := h.runner.RunAsync(c.Request.Context(), periods)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("recalculation run accepted",
		zap.String("run_id", entry.ID.String()),
		zap.Strings("periods", req.Periods))

	h.Accepted(c, dto.NewRunResponse(entry))
}

// ListRuns returns the most recent run ledger entries.
// GET /api/v1/metrics/runs?limit=20
func (h *MetricsHandler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			h.BadRequest(c, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.FindRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.NewRunResponseList(entries))
}

// GetRun returns one run ledger entry by ID.
// GET /api/v1/metrics/runs/:id
func (h *MetricsHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID")
		return
	}

	entry, err := h.ledger.FindByID(c.Request.Context(), runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.NewRunResponse(entry))
}

// GetStats returns the live orchestrator state.
// GET /api/v1/metrics/stats
func (h *MetricsHandler) GetStats(c *gin.Context) {
	h.Success(c, h.runner.Stats())
}

// GetPlatformTotals returns the cross-tenant aggregate for a period.
// GET /api/v1/metrics/platform?period=30d
func (h *MetricsHandler) GetPlatformTotals(c *gin.Context) {
	period, err := metrics.ParsePeriod(c.DefaultQuery("period", metrics.Period30d.String()))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	record, err := h.records.Get(c.Request.Context(), uuid.Nil, metrics.MetricKindPlatformTotals, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.NewMetricsRecordResponse(record))
}

// GetTenantMetrics returns computed snapshots for one tenant. With a period
// query it returns that single snapshot, otherwise all stored ones.
// GET /api/v1/tenants/:id/metrics?period=7d
func (h *MetricsHandler) GetTenantMetrics(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	if raw := c.Query("period"); raw != "" {
		period, err := metrics.ParsePeriod(raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		record, err := h.records.Get(c.Request.Context(), tenantID, metrics.MetricKindComprehensive, period)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, dto.NewMetricsRecordResponse(record))
		return
	}

	records, err := h.records.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("list tenant metrics failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.NewMetricsRecordResponseList(records))
}
