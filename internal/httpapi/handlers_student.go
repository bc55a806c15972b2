package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handler) studentDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	id := userID(c)
	classes, err := h.Catalog.StudentClasses(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.Attendance.StudentSummary(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"classes": classes,
		"stats":   summary.Stats,
		"history": summary.History,
	})
}

func (h *handler) joinClass(c *gin.Context) {
	var req struct {
		ClassID string `json:"classId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "classId is required.")
		return
	}
	class, err := h.Catalog.JoinClass(c.Request.Context(), userID(c), req.ClassID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Joined class successfully!", "class": gin.H{"id": class.ID, "name": class.Name}})
}

func (h *handler) leaveClass(c *gin.Context) {
	if err := h.Catalog.LeaveClass(c.Request.Context(), userID(c), c.Param("classId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "You have left the class."})
}

func (h *handler) markAttendance(c *gin.Context) {
	var req struct {
		SubjectID  string `json:"subjectId" binding:"required"`
		QRCodeData string `json:"qrCodeData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "subjectId is required.")
		return
	}
	if _, err := h.Attendance.Verify(c.Request.Context(), userID(c), req.SubjectID, req.QRCodeData); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Attendance marked!"})
}
