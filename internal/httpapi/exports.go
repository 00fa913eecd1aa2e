package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classdesk/internal/auth"
	"classdesk/internal/exports"
	"classdesk/internal/metrics"
	"classdesk/internal/queue"
	"classdesk/internal/report"
)

// Export streams the selected day's report as an xlsx attachment.
func (h *Handler) Export(c *gin.Context) {
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	sel, rep, err := eng.Report(remoteContext(c))
	if err != nil {
		metrics.Exports.WithLabelValues("sync", "error").Inc()
		h.fail(c, err)
		return
	}
	data, err := report.Build(rep, report.Meta{ClassLabel: sel.ClassLabel, Date: sel.Date})
	if err != nil {
		metrics.Exports.WithLabelValues("sync", "error").Inc()
		h.fail(c, err)
		return
	}
	metrics.Exports.WithLabelValues("sync", "ok").Inc()
	name := report.FileName(sel.ClassLabel, sel.Date)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, report.ContentType, data)
}

// QueueExport snapshots the selected day's report and hands it to the worker.
func (h *Handler) QueueExport(c *gin.Context) {
	if h.exports == nil || h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exports disabled"})
		return
	}
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	sel, rep, err := eng.Report(remoteContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	p, _ := auth.FromContext(c)
	exp, err := h.exports.Insert(c.Request.Context(), exports.Export{
		Owner:      p.UserID,
		SchoolID:   sel.SchoolID,
		ClassLabel: sel.ClassLabel,
		Date:       sel.Date,
		Report:     rep,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.queue.Publish(c.Request.Context(), queue.Message{Type: queue.TypeExport, Body: []byte(exp.ID)}); err != nil {
		h.log.Error("enqueue export", zap.String("export", exp.ID), zap.Error(err))
		if merr := h.exports.MarkFailed(c.Request.Context(), exp.ID, "enqueue: "+err.Error()); merr != nil {
			h.log.Error("mark export failed", zap.String("export", exp.ID), zap.Error(merr))
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exp)
}

// GetExport reports the status of one of the caller's exports.
func (h *Handler) GetExport(c *gin.Context) {
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exports disabled"})
		return
	}
	exp, err := h.exports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	p, _ := auth.FromContext(c)
	if exp.Owner != p.UserID && !p.HasRole(auth.RoleSuperAdmin) {
		h.fail(c, exports.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// ListExports pages through the caller's exports.
func (h *Handler) ListExports(c *gin.Context) {
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exports disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	p, _ := auth.FromContext(c)
	list, err := h.exports.ListByOwner(c.Request.Context(), p.UserID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []exports.Export{}
	}
	c.JSON(http.StatusOK, gin.H{"exports": list})
}
