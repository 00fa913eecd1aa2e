package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classdesk/internal/attendance"
	"classdesk/internal/auth"
	"classdesk/internal/desk"
	"classdesk/internal/exports"
	"classdesk/internal/queue"
	"classdesk/internal/schoolapi"
)

// ExportStore is the persistence the async export endpoints need.
type ExportStore interface {
	Insert(ctx context.Context, exp exports.Export) (exports.Export, error)
	Get(ctx context.Context, id string) (exports.Export, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]exports.Export, error)
	MarkFailed(ctx context.Context, id, reason string) error
}

// Handler serves the desk API.
type Handler struct {
	desks   *desk.Manager
	cal     attendance.Calendar
	exports ExportStore // nil when no database is configured
	queue   queue.Queue
	log     *zap.Logger
}

// New builds a handler. exportStore and q may be nil, which disables
// asynchronous exports.
func New(desks *desk.Manager, cal attendance.Calendar, exportStore ExportStore, q queue.Queue, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{desks: desks, cal: cal, exports: exportStore, queue: q, log: log}
}

// Register mounts the desk routes on r, which must already authenticate.
func (h *Handler) Register(r gin.IRouter) {
	staff := r.Group("", auth.RequireRole(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleTeacher))

	staff.POST("/desks", h.OpenDesk)
	staff.GET("/desks/:id", h.GetDesk)
	staff.DELETE("/desks/:id", h.CloseDesk)
	staff.PUT("/desks/:id/selection", h.UpdateSelection)
	staff.POST("/desks/:id/edit", h.Edit)
	staff.POST("/desks/:id/new", h.NewAttendance)
	staff.POST("/desks/:id/back", h.Back)
	staff.POST("/desks/:id/toggle", h.Toggle)
	staff.POST("/desks/:id/submit", h.Submit)
	staff.POST("/desks/:id/holiday", h.MarkHoliday)
	staff.DELETE("/desks/:id/holiday", h.UnmarkHoliday)
	staff.GET("/desks/:id/export", h.Export)
	staff.POST("/desks/:id/exports", h.QueueExport)

	staff.GET("/exports", h.ListExports)
	staff.GET("/exports/:id", h.GetExport)
}

// remoteContext carries the caller's token to the school service.
func remoteContext(c *gin.Context) context.Context {
	return schoolapi.WithToken(c.Request.Context(), auth.TokenFromContext(c))
}

func (h *Handler) engine(c *gin.Context) (*attendance.Engine, bool) {
	p, _ := auth.FromContext(c)
	eng, err := h.desks.Get(c.Request.Context(), c.Param("id"), p.UserID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return eng, true
}

func (h *Handler) save(c *gin.Context) {
	if err := h.desks.Save(c.Request.Context(), c.Param("id")); err != nil {
		h.log.Warn("desk save failed", zap.String("desk", c.Param("id")), zap.Error(err))
	}
}

// fail maps an error to a status code and the message the page shows.
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	var apiErr *schoolapi.APIError
	switch {
	case errors.Is(err, attendance.ErrFutureDate),
		errors.Is(err, attendance.ErrUnknownSession),
		errors.Is(err, attendance.ErrNoClass):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, attendance.ErrStudentNotFound):
		return http.StatusNotFound, "student not found"
	case errors.Is(err, desk.ErrNotFound):
		return http.StatusNotFound, "desk not found"
	case errors.Is(err, exports.ErrNotFound):
		return http.StatusNotFound, "export not found"
	case errors.Is(err, desk.ErrForbidden):
		return http.StatusForbidden, "not allowed"
	case errors.Is(err, attendance.ErrReadOnly):
		return http.StatusConflict, err.Error()
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status, schoolapi.Message(err)
		}
		return http.StatusBadGateway, schoolapi.Message(err)
	case errors.Is(err, schoolapi.ErrUnavailable):
		return http.StatusBadGateway, schoolapi.FallbackMessage
	default:
		return http.StatusInternalServerError, schoolapi.FallbackMessage
	}
}
