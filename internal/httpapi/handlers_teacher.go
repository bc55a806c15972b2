package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/model"
	"qrattend/internal/token"
)

func (h *handler) teacherClasses(c *gin.Context) {
	classes, err := h.Catalog.TeacherClasses(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "classes": classes})
}

func (h *handler) createClass(c *gin.Context) {
	var req struct {
		ClassName string `json:"className" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "className is required.")
		return
	}
	class, err := h.Catalog.CreateClass(c.Request.Context(), userID(c), req.ClassName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Class created!", "class": class})
}

func (h *handler) deleteClass(c *gin.Context) {
	if err := h.Catalog.DeleteClass(c.Request.Context(), userID(c), c.Param("classId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Class deleted."})
}

func (h *handler) addSubject(c *gin.Context) {
	var req struct {
		SubjectName string `json:"subjectName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "subjectName is required.")
		return
	}
	sub, err := h.Catalog.AddSubject(c.Request.Context(), userID(c), c.Param("classId"), req.SubjectName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Subject added!", "subject": sub})
}

func (h *handler) deleteSubject(c *gin.Context) {
	if err := h.Catalog.DeleteSubject(c.Request.Context(), userID(c), c.Param("subjectId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Subject deleted."})
}

func (h *handler) generateQR(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subjectId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "subjectId is required.")
		return
	}
	if _, err := h.Catalog.OwnedSubject(c.Request.Context(), userID(c), req.SubjectID); err != nil {
		h.fail(c, err)
		return
	}
	data, err := h.Generator.Generate(req.SubjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"qrData":      data,
		"rotateEvery": int(h.RotateEvery / time.Second),
		"sessionTtl":  int(h.SessionTTL / time.Second),
	})
}

const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// qrImage renders a freshly generated token as a PNG. The payload is also
// returned in X-QR-Data so a display can show it as text.
func (h *handler) qrImage(c *gin.Context) {
	subjectID := c.Param("subjectId")
	if _, err := h.Catalog.OwnedSubject(c.Request.Context(), userID(c), subjectID); err != nil {
		h.fail(c, err)
		return
	}
	size := defaultQRSize
	if v := c.Query("size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "size must be a number.")
			return
		}
		size = min(max(parsed, minQRSize), maxQRSize)
	}
	data, err := h.Generator.Generate(subjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	png, err := token.PNG(data, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("X-QR-Data", data)
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) manualRoster(c *gin.Context) {
	day, err := time.Parse(time.DateOnly, c.Query("date"))
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD.")
		return
	}
	students, err := h.Attendance.Roster(c.Request.Context(), userID(c), c.Param("subjectId"), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "students": students})
}

func (h *handler) manualAttendance(c *gin.Context) {
	var req struct {
		SubjectID string       `json:"subjectId" binding:"required"`
		Date      string       `json:"date" binding:"required"`
		Students  []model.Mark `json:"students"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "subjectId and date are required.")
		return
	}
	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD.")
		return
	}
	if err := h.Attendance.Override(c.Request.Context(), userID(c), req.SubjectID, day, req.Students); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Attendance updated successfully."})
}

func (h *handler) resetStudentDevice(c *gin.Context) {
	var req struct {
		StudentID string `json:"studentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "studentId is required.")
		return
	}
	if err := h.Accounts.ResetDeviceByTeacher(c.Request.Context(), userID(c), req.StudentID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Device lock reset."})
}

func (h *handler) subjectReport(c *gin.Context) {
	report, err := h.Attendance.SubjectReport(c.Request.Context(), userID(c), c.Param("subjectId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subject": report.Subject, "days": report.Days})
}

func (h *handler) exportCSV(c *gin.Context) {
	var buf bytes.Buffer
	name, err := h.Attendance.ExportCSV(c.Request.Context(), userID(c), c.Param("subjectId"), &buf)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

const maxScanLog = 500

// scanLog lists recent verification attempts for a subject, newest first.
func (h *handler) scanLog(c *gin.Context) {
	if h.ScanLog == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Scan audit is not enabled."})
		return
	}
	subjectID := c.Param("subjectId")
	if _, err := h.Catalog.OwnedSubject(c.Request.Context(), userID(c), subjectID); err != nil {
		h.fail(c, err)
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, maxScanLog)
		}
	}
	events, err := h.ScanLog.RecentScanEvents(c.Request.Context(), subjectID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if events == nil {
		events = []model.ScanEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
}
