package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/account"
	"qrattend/internal/auth"
	"qrattend/internal/model"
)

func (h *handler) authenticate() gin.HandlerFunc {
	return auth.Authenticate(h.JWTSigningKey, h.JWTIssuer)
}

func (h *handler) requireRole(role string) gin.HandlerFunc {
	return auth.RequireRole(role)
}

// userID returns the caller's id; only valid behind authenticate.
func userID(c *gin.Context) string {
	claims, _ := auth.ClaimsFrom(c)
	return claims.UserID()
}

func userKey(c *gin.Context) string {
	return "scan:" + userID(c)
}

func (h *handler) signup(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Name, email, password and role are required.")
		return
	}
	u, err := h.Accounts.Signup(c.Request.Context(), account.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
		DeviceID: req.DeviceID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": fmt.Sprintf("Account created for %s as a %s!", u.Name, u.Role),
		"user":    u,
	})
}

func (h *handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email, password and role are required.")
		return
	}
	u, err := h.Accounts.Login(c.Request.Context(), account.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
		DeviceID: req.DeviceID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	session, err := auth.Issue(u.ID, string(u.Role), u.Name, h.JWTIssuer, h.JWTSigningKey, h.AccessTTL, h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     fmt.Sprintf("Login successful as %s!", u.Role),
		"redirectUrl": "/dashboard/" + string(u.Role),
		"accessToken": session.AccessToken,
		"expiresAt":   session.ExpiresAt.Unix(),
	})
}

func (h *handler) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword    string `json:"currentPassword" binding:"required"`
		NewPassword        string `json:"newPassword" binding:"required"`
		ConfirmNewPassword string `json:"confirmNewPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "All password fields are required.")
		return
	}
	err := h.Accounts.ChangePassword(c.Request.Context(), userID(c), req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated successfully."})
}

func (h *handler) resetOwnDevice(c *gin.Context) {
	var req struct {
		PasswordConfirm string `json:"passwordConfirm" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Password confirmation is required.")
		return
	}
	if err := h.Accounts.ResetOwnDevice(c.Request.Context(), userID(c), req.PasswordConfirm); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Device unlinked successfully. You can now login from a new device.",
	})
}
