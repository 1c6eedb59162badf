package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounth "github.com/tip-mds/clinic-api/internal/handler/account"
	analyticsh "github.com/tip-mds/clinic-api/internal/handler/analytics"
	appointmenth "github.com/tip-mds/clinic-api/internal/handler/appointment"
	documenth "github.com/tip-mds/clinic-api/internal/handler/document"
	healthh "github.com/tip-mds/clinic-api/internal/handler/health"
	medicalh "github.com/tip-mds/clinic-api/internal/handler/medical"
	notificationh "github.com/tip-mds/clinic-api/internal/handler/notification"
	requesth "github.com/tip-mds/clinic-api/internal/handler/request"
	studenth "github.com/tip-mds/clinic-api/internal/handler/student"
	"github.com/tip-mds/clinic-api/internal/middleware"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type Handlers struct {
	Account      *accounth.Handler
	Student      *studenth.Handler
	Medical      *medicalh.Handler
	Request      *requesth.Handler
	Appointment  *appointmenth.Handler
	Notification *notificationh.Handler
	Document     *documenth.Handler
	Analytics    *analyticsh.Handler
	Health       *healthh.Handler
}

// New assembles the gin engine: ambient middleware first, then the public
// surface, then authenticated groups gated by capability.
func New(cfg Config, h Handlers, auth *middleware.AuthMiddleware, m *metrics.Metrics, l *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(l))
	engine.Use(middleware.Logger(l))
	engine.Use(middleware.Metrics(m))
	if cfg.RateLimitRPS > 0 {
		engine.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	engine.GET("/health", h.Health.Live)
	engine.GET("/ready", h.Health.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")

	// Public surface: account bootstrap and third-party certificate checks.
	v1.POST("/auth/register", h.Account.Register)
	v1.POST("/auth/login", h.Account.Login)
	v1.GET("/certificates/verify/:number", h.Document.VerifyCertificate)

	authed := v1.Group("")
	authed.Use(auth.Authenticate())
	{
		authed.GET("/me", h.Account.Me)

		authed.PUT("/profile", h.Student.SaveProfile)
		authed.GET("/profile", h.Student.MyProfile)

		authed.GET("/records", h.Medical.List)
		authed.GET("/records/:id", h.Medical.Get)

		authed.POST("/update-requests", h.Request.Create)
		authed.GET("/update-requests", h.Request.ListMine)
		authed.GET("/update-requests/:id", h.Request.Get)

		authed.POST("/appointments", h.Appointment.Create)
		authed.GET("/appointments", h.Appointment.List)
		authed.GET("/appointments/:id", h.Appointment.Get)
		authed.POST("/appointments/:id/cancel", h.Appointment.Cancel)

		authed.GET("/notifications", h.Notification.List)
		authed.GET("/notifications/unread-count", h.Notification.UnreadCount)
		authed.POST("/notifications/:id/read", h.Notification.MarkRead)
		authed.POST("/notifications/:id/unread", h.Notification.MarkUnread)
		authed.GET("/notifications/preferences", h.Notification.GetPreferences)
		authed.PUT("/notifications/preferences", h.Notification.UpdatePreferences)

		authed.GET("/certificates", h.Document.ListCertificates)
		authed.GET("/certificates/:id", h.Document.GetCertificate)
		authed.GET("/certificates/:id/pdf", h.Document.DownloadCertificate)
		authed.GET("/prescriptions", h.Document.ListPrescriptions)
		authed.GET("/prescriptions/:id", h.Document.GetPrescription)
	}

	records := authed.Group("")
	records.Use(auth.RequireCapability(middleware.CapManageRecords))
	{
		records.POST("/records", h.Medical.Create)
		records.POST("/records/:id/approve", h.Medical.Approve)
		records.POST("/records/:id/decline", h.Medical.Decline)
		records.GET("/students", h.Student.List)
		records.GET("/students/:id", h.Student.Get)
		records.POST("/students/:id/verify", h.Student.Verify)
	}

	reviews := authed.Group("")
	reviews.Use(auth.RequireCapability(middleware.CapReviewRequests))
	{
		reviews.GET("/update-requests/pending", h.Request.ListPending)
		reviews.POST("/update-requests/:id/review", h.Request.Review)
	}

	scheduling := authed.Group("")
	scheduling.Use(auth.RequireCapability(middleware.CapManageAppointments))
	{
		scheduling.POST("/appointments/:id/approve", h.Appointment.Approve)
		scheduling.POST("/appointments/:id/complete", h.Appointment.Complete)
		scheduling.POST("/appointments/:id/no-show", h.Appointment.MarkNoShow)
		scheduling.GET("/appointments/ticket/:ticket", h.Appointment.GetByTicket)
	}

	issuing := authed.Group("")
	issuing.Use(auth.RequireCapability(middleware.CapIssueDocuments))
	{
		issuing.POST("/certificates", h.Document.IssueCertificate)
		issuing.POST("/certificates/:id/revoke", h.Document.RevokeCertificate)
		issuing.POST("/prescriptions", h.Document.IssuePrescription)
	}

	reporting := authed.Group("/analytics")
	reporting.Use(auth.RequireCapability(middleware.CapViewAnalytics))
	{
		reporting.GET("/morbidities", h.Analytics.TopMorbidities)
		reporting.GET("/trends", h.Analytics.ConsultationTrends)
		reporting.GET("/consultations", h.Analytics.GetConsultation)
		reporting.GET("/consultations/summary", h.Analytics.ConsultationSummary)
		reporting.GET("/consultations/export", h.Analytics.ExportConsultationsCSV)
		reporting.GET("/morbidity-statistics", h.Analytics.ListMorbidity)
		reporting.POST("/generate", h.Analytics.Generate)
	}

	admin := authed.Group("/admin")
	admin.Use(auth.RequireCapability(middleware.CapManageAccounts))
	{
		admin.POST("/users", h.Account.CreateStaff)
		admin.GET("/doctors", h.Account.ListDoctors)
		admin.POST("/users/:id/deactivate", h.Account.Deactivate)
	}

	templates := authed.Group("/templates")
	templates.Use(auth.RequireCapability(middleware.CapManageTemplates))
	{
		templates.POST("", h.Document.CreateTemplate)
		templates.GET("", h.Document.ListTemplates)
	}

	return engine
}
