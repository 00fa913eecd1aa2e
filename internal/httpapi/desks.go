package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"classdesk/internal/attendance"
	"classdesk/internal/auth"
)

type openRequest struct {
	SchoolID int64 `json:"school_id"`
}

// OpenDesk creates a desk for the caller. Only super-admins may name a
// school other than their own.
func (h *Handler) OpenDesk(c *gin.Context) {
	var req openRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	p, _ := auth.FromContext(c)
	schoolID := p.SchoolID
	if req.SchoolID != 0 && req.SchoolID != p.SchoolID {
		if !p.HasRole(auth.RoleSuperAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
			return
		}
		schoolID = req.SchoolID
	}
	if schoolID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "school_id required"})
		return
	}

	id, eng, err := h.desks.Open(c.Request.Context(), p.UserID, schoolID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"desk_id": id, "view": eng.View()})
}

// GetDesk returns the current view; ?refresh=1 re-fetches first.
func (h *Handler) GetDesk(c *gin.Context) {
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	if c.Query("refresh") == "" {
		c.JSON(http.StatusOK, gin.H{"view": eng.View()})
		return
	}
	v, err := eng.Refresh(remoteContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.save(c)
	c.JSON(http.StatusOK, gin.H{"view": v})
}

// CloseDesk discards a desk.
func (h *Handler) CloseDesk(c *gin.Context) {
	p, _ := auth.FromContext(c)
	if err := h.desks.Close(c.Request.Context(), c.Param("id"), p.UserID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type selectionRequest struct {
	Date           string `json:"date"`
	ClassSectionID *int64 `json:"class_section_id"`
	ClassLabel     string `json:"class_label"`
	Session        string `json:"session"`
}

// UpdateSelection changes any of date, class and session.
func (h *Handler) UpdateSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	ctx := remoteContext(c)
	cur := eng.View().Selection

	var (
		v   attendance.View
		err error
	)
	if req.Date != "" || req.ClassSectionID != nil {
		date := cur.Date
		if req.Date != "" {
			if date, err = h.cal.ParseDate(req.Date); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
		}
		classID, label := cur.ClassSectionID, cur.ClassLabel
		if req.ClassSectionID != nil {
			classID, label = *req.ClassSectionID, req.ClassLabel
		}
		if v, err = eng.Select(ctx, date, classID, label); err != nil {
			h.save(c)
			h.fail(c, err)
			return
		}
	}
	if req.Session != "" {
		sess, perr := attendance.ParseSession(req.Session)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
			return
		}
		if v, err = eng.SwitchSession(ctx, sess); err != nil {
			h.save(c)
			h.fail(c, err)
			return
		}
	}
	if v.Mode == "" {
		v = eng.View()
	}
	h.save(c)
	c.JSON(http.StatusOK, gin.H{"view": v})
}

type sessionRequest struct {
	Session string `json:"session" binding:"required"`
}

// Edit opens a session for editing.
func (h *Handler) Edit(c *gin.Context) {
	h.openSession(c, (*attendance.Engine).Edit)
}

// NewAttendance starts attendance for a past session.
func (h *Handler) NewAttendance(c *gin.Context) {
	h.openSession(c, (*attendance.Engine).NewAttendance)
}

func (h *Handler) openSession(c *gin.Context, open func(*attendance.Engine, context.Context, attendance.Session) (attendance.View, error)) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := attendance.ParseSession(req.Session)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	v, err := open(eng, remoteContext(c), sess)
	h.save(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": v})
}

// Back leaves edit mode.
func (h *Handler) Back(c *gin.Context) {
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	v := eng.Back()
	h.save(c)
	c.JSON(http.StatusOK, gin.H{"view": v})
}

type toggleRequest struct {
	StudentID int64 `json:"student_id" binding:"required"`
	Present   *bool `json:"present" binding:"required"`
}

// Toggle marks one student present or absent in the active session.
func (h *Handler) Toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	v, err := eng.Toggle(req.StudentID, *req.Present)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.save(c)
	c.JSON(http.StatusOK, gin.H{"view": v})
}

// Submit sends the active session's roster.
func (h *Handler) Submit(c *gin.Context) {
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	msg, v, err := eng.Submit(remoteContext(c))
	h.save(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if msg == "" {
		msg = submittedMessage(v.Selection.Session)
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "view": v})
}

func submittedMessage(s attendance.Session) string {
	return s.Label() + " attendance submitted successfully!"
}

type holidayRequest struct {
	Scope string `json:"scope" form:"scope"`
}

// MarkHoliday flags the selected day as a holiday.
func (h *Handler) MarkHoliday(c *gin.Context) {
	h.holiday(c, (*attendance.Engine).MarkHoliday)
}

// UnmarkHoliday clears a holiday flag.
func (h *Handler) UnmarkHoliday(c *gin.Context) {
	h.holiday(c, (*attendance.Engine).UnmarkHoliday)
}

func (h *Handler) holiday(c *gin.Context, call func(*attendance.Engine, context.Context, attendance.HolidayScope) (string, attendance.View, error)) {
	var req holidayRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	scope := attendance.ScopeOf(eng.View().Selection.Session)
	if req.Scope != "" {
		var err error
		if scope, err = attendance.ParseHolidayScope(req.Scope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	msg, v, err := call(eng, remoteContext(c), scope)
	h.save(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "view": v})
}
