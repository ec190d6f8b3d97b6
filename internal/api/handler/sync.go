package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/repository"
	"github.com/timmy/sissync/internal/service"
)

// SyncController is the run control surface. *service.SyncService satisfies it.
type SyncController interface {
	TriggerRun(ctx context.Context, req service.RunRequest) (*service.TriggerResult, error)
	CancelRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context, filter repository.RunFilter) ([]domain.SyncRun, int64, error)
	GetRun(ctx context.Context, runID string) (*domain.SyncRun, error)
	ListRunSchools(ctx context.Context, runID string, limit, offset int) ([]domain.SyncRunSchool, int64, error)
}

// SyncHandler handles sync run endpoints.
type SyncHandler struct {
	sync SyncController
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(sync SyncController) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// TriggerRunRequest is the body of POST /api/v1/sync/runs. Exactly one of
// config_ids, all and node_ids selects the scope.
type TriggerRunRequest struct {
	domain.ScopeRequest
	AcademicYear string                     `json:"academic_year"`
	Endpoints    map[domain.Source][]string `json:"endpoints"`
}

// ListResponse wraps one page of results.
type ListResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// TriggerRun handles POST /api/v1/sync/runs.
// The run row exists when this returns 202; the run itself continues in the background.
func (h *SyncHandler) TriggerRun(c *gin.Context) {
	var req TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.sync.TriggerRun(c.Request.Context(), service.RunRequest{
		Scope:        req.ScopeRequest,
		AcademicYear: req.AcademicYear,
		Endpoints:    req.Endpoints,
		TriggeredBy:  principal(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// ListRuns handles GET /api/v1/sync/runs.
func (h *SyncHandler) ListRuns(c *gin.Context) {
	filter := repository.RunFilter{
		Status:      domain.RunStatus(c.Query("status")),
		TriggeredBy: c.Query("triggered_by"),
	}
	filter.Limit, filter.Offset = service.NormalizePage(queryInt(c, "limit"), queryInt(c, "offset"))
	if raw := c.Query("schedule_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule_id"})
			return
		}
		scheduleID := uint(id)
		filter.ScheduleID = &scheduleID
	}

	runs, total, err := h.sync.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[domain.SyncRun]{
		Items:  runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetRun handles GET /api/v1/sync/runs/:id.
func (h *SyncHandler) GetRun(c *gin.Context) {
	run, err := h.sync.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRunSchools handles GET /api/v1/sync/runs/:id/schools.
func (h *SyncHandler) ListRunSchools(c *gin.Context) {
	limit, offset := service.NormalizePage(queryInt(c, "limit"), queryInt(c, "offset"))
	schools, total, err := h.sync.ListRunSchools(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse[domain.SyncRunSchool]{
		Items:  schools,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CancelRun handles POST /api/v1/sync/runs/:id/cancel.
func (h *SyncHandler) CancelRun(c *gin.Context) {
	runID := c.Param("id")
	if err := h.sync.CancelRun(c.Request.Context(), runID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "cancelling"})
}

// queryInt parses an integer query parameter; anything unparsable reads as zero.
func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
