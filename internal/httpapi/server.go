// Package httpapi exposes the attendance service over JSON HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/account"
	"qrattend/internal/attendance"
	"qrattend/internal/audit"
	"qrattend/internal/catalog"
	"qrattend/internal/httpmiddleware"
	applog "qrattend/internal/logging"
	"qrattend/internal/token"
)

// Deps wires the services behind the router.
type Deps struct {
	Accounts   *account.Service
	Catalog    *catalog.Service
	Attendance *attendance.Service
	ScanLog    audit.Store // optional; enables the scan audit endpoint
	Generator  *token.Generator

	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
	RotateEvery   time.Duration
	SessionTTL    time.Duration

	// Limiter guards every route per client IP; ScanLimiter additionally
	// guards the scan endpoint per student. Either may be nil.
	Limiter     httpmiddleware.Limiter
	ScanLimiter httpmiddleware.Limiter

	Health        map[string]func(context.Context) bool
	Gatherer      prometheus.Gatherer
	LoggerFactory logging.LoggerFactory
	Now           func() time.Time
}

type handler struct {
	Deps
	log logging.LeveledLogger
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RotateEvery <= 0 {
		d.RotateEvery = token.RotateEvery
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = token.SessionTTL
	}
	h := &handler{Deps: d, log: applog.Scoped(d.LoggerFactory, "http")}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Disposition", "X-QR-Data"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.Limit(d.Limiter, httpmiddleware.ClientIP))
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", h.healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/signup", h.signup)
	v1.POST("/auth/login", h.login)

	authed := v1.Group("", h.authenticate())
	authed.POST("/settings/password", h.changePassword)
	authed.POST("/settings/reset-device", h.resetOwnDevice)

	student := authed.Group("/student", h.requireRole("student"))
	student.GET("/dashboard", h.studentDashboard)
	student.POST("/classes", h.joinClass)
	student.DELETE("/classes/:classId", h.leaveClass)
	scan := []gin.HandlerFunc{}
	if d.ScanLimiter != nil {
		scan = append(scan, httpmiddleware.Limit(d.ScanLimiter, userKey))
	}
	student.POST("/attendance", append(scan, h.markAttendance)...)

	teacher := authed.Group("/teacher", h.requireRole("teacher"))
	teacher.GET("/classes", h.teacherClasses)
	teacher.POST("/classes", h.createClass)
	teacher.DELETE("/classes/:classId", h.deleteClass)
	teacher.POST("/classes/:classId/subjects", h.addSubject)
	teacher.DELETE("/subjects/:subjectId", h.deleteSubject)
	teacher.POST("/generate-qr", h.generateQR)
	teacher.GET("/subjects/:subjectId/qr.png", h.qrImage)
	teacher.GET("/subjects/:subjectId/manual", h.manualRoster)
	teacher.POST("/attendance/manual", h.manualAttendance)
	teacher.POST("/reset-device", h.resetStudentDevice)
	teacher.GET("/subjects/:subjectId/report", h.subjectReport)
	teacher.GET("/subjects/:subjectId/export", h.exportCSV)
	teacher.GET("/subjects/:subjectId/scans", h.scanLog)

	return r
}

func (h *handler) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
