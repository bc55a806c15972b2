package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/account"
	"qrattend/internal/attendance"
	"qrattend/internal/catalog"
)

type failure struct {
	status  int
	message string
}

// Known outcomes and what the client is told. Anything else is a server
// error whose detail stays in the log.
var failures = []struct {
	err error
	failure
}{
	{attendance.ErrInvalidToken, failure{http.StatusBadRequest, "Invalid QR Data."}},
	{attendance.ErrSubjectMismatch, failure{http.StatusBadRequest, "Invalid or mismatched QR Code."}},
	{attendance.ErrTokenExpired, failure{http.StatusBadRequest, "QR Code Expired. Scan the live code."}},
	{attendance.ErrAlreadyMarked, failure{http.StatusBadRequest, "Attendance already marked today."}},
	{attendance.ErrNotFound, failure{http.StatusNotFound, "Subject not found."}},
	{account.ErrInvalidCredentials, failure{http.StatusBadRequest, "Invalid credentials."}},
	{account.ErrDeviceMismatch, failure{http.StatusForbidden, "This account is locked to another device. Reset the device lock to continue."}},
	{account.ErrDeviceRequired, failure{http.StatusBadRequest, "Device identifier is missing."}},
	{account.ErrPasswordMismatch, failure{http.StatusBadRequest, "New passwords do not match."}},
	{account.ErrEmailTaken, failure{http.StatusConflict, "An account with this email already exists."}},
	{account.ErrNotFound, failure{http.StatusNotFound, "Student not found."}},
	{catalog.ErrNotFound, failure{http.StatusNotFound, "Class or subject not found."}},
}

var invalidInput = []error{account.ErrInvalidInput, catalog.ErrInvalidInput, attendance.ErrInvalidInput}

func (h *handler) fail(c *gin.Context, err error) {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			c.JSON(f.status, gin.H{"success": false, "message": f.message})
			return
		}
	}
	for _, target := range invalidInput {
		if errors.Is(err, target) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
	}
	h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error, please try again."})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}
