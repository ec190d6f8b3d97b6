package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sissync/internal/domain"
	"github.com/timmy/sissync/internal/service"
)

// ScheduleManager administers recurring schedules. *service.ScheduleService satisfies it.
type ScheduleManager interface {
	List(ctx context.Context) ([]domain.ScheduleDefinition, error)
	Create(ctx context.Context, in service.ScheduleInput, principal string) (*domain.ScheduleDefinition, error)
	Update(ctx context.Context, id uint, in service.ScheduleInput, principal string) (*domain.ScheduleDefinition, error)
	Delete(ctx context.Context, id uint) error
}

// NextRunLookup reports when a schedule fires next.
type NextRunLookup interface {
	NextRun(id uint) (time.Time, bool)
}

// ScheduleHandler handles schedule endpoints.
type ScheduleHandler struct {
	schedules ScheduleManager
	trigger   NextRunLookup
}

// NewScheduleHandler creates a new schedule handler. trigger may be nil.
func NewScheduleHandler(schedules ScheduleManager, trigger NextRunLookup) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, trigger: trigger}
}

// ScheduleResponse is a schedule plus its next firing time, when registered.
type ScheduleResponse struct {
	domain.ScheduleDefinition
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

func (h *ScheduleHandler) present(def domain.ScheduleDefinition) ScheduleResponse {
	resp := ScheduleResponse{ScheduleDefinition: def}
	if h.trigger == nil {
		return resp
	}
	if next, ok := h.trigger.NextRun(def.ID); ok {
		resp.NextRunAt = &next
	}
	return resp
}

// List handles GET /api/v1/sync/schedules.
func (h *ScheduleHandler) List(c *gin.Context) {
	defs, err := h.schedules.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]ScheduleResponse, 0, len(defs))
	for _, def := range defs {
		items = append(items, h.present(def))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Create handles POST /api/v1/sync/schedules.
func (h *ScheduleHandler) Create(c *gin.Context) {
	var in service.ScheduleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	def, err := h.schedules.Create(c.Request.Context(), in, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.present(*def))
}

// Update handles PUT /api/v1/sync/schedules/:id.
func (h *ScheduleHandler) Update(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}

	var in service.ScheduleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	def, err := h.schedules.Update(c.Request.Context(), id, in, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.present(*def))
}

// Delete handles DELETE /api/v1/sync/schedules/:id.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	id, ok := scheduleID(c)
	if !ok {
		return
	}

	if err := h.schedules.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func scheduleID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule id"})
		return 0, false
	}
	return uint(id), true
}
