package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableService interface {
	Plan(ctx context.Context) (*dto.PlanResponse, error)
	GenerateForClass(ctx context.Context, classID, requestedBy string) (*models.GenerationRun, error)
	GenerateSchool(ctx context.Context, requestedBy string) (*models.GenerationRun, error)
	GetRun(ctx context.Context, id string) (*models.GenerationRun, error)
	ClassGrid(ctx context.Context, classID string) (*dto.ClassTimetableResponse, bool, error)
	TeacherGrid(ctx context.Context, teacherID string) (*dto.TeacherTimetableResponse, bool, error)
}

// TimetableHandler exposes timetable generation and grid endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(service timetableService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Plan godoc
// @Summary Preview the weekly plan derived from the current catalog
// @Description Shows the per-subject session quotas without generating anything.
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/plan [get]
func (h *TimetableHandler) Plan(c *gin.Context) {
	plan, err := h.service.Plan(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// GenerateClass godoc
// @Summary Regenerate the timetable of one class
// @Description Runs synchronously. On a negative outcome the committed timetable is left untouched and the error carries the run diagnosis.
// @Tags Timetable
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/classes/{id}/generate [post]
func (h *TimetableHandler) GenerateClass(c *gin.Context) {
	run, err := h.service.GenerateForClass(c.Request.Context(), c.Param("id"), requestedBy(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// GenerateSchool godoc
// @Summary Regenerate the whole-school timetable
// @Description Queues a background run and returns it while still pending. Poll the run endpoint for the outcome.
// @Tags Timetable
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) GenerateSchool(c *gin.Context) {
	run, err := h.service.GenerateSchool(c.Request.Context(), requestedBy(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// GetRun godoc
// @Summary Get a generation run
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// ClassGrid godoc
// @Summary Weekly timetable grid of a class
// @Tags Timetable
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/classes/{id} [get]
func (h *TimetableHandler) ClassGrid(c *gin.Context) {
	grid, cacheHit, err := h.service.ClassGrid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, grid, nil, middleware.ExtractMeta(c))
}

// TeacherGrid godoc
// @Summary Weekly lesson list of a teacher
// @Description Teachers may read their own grid; admins may read any.
// @Tags Timetable
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/teachers/{id} [get]
func (h *TimetableHandler) TeacherGrid(c *gin.Context) {
	grid, cacheHit, err := h.service.TeacherGrid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, grid, nil, middleware.ExtractMeta(c))
}

func requestedBy(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
