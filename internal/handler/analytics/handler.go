package analytics

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tip-mds/clinic-api/internal/handler"
	"github.com/tip-mds/clinic-api/internal/middleware"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/service/analytics"
)

type Handler struct {
	svc *analytics.Service
}

func NewHandler(svc *analytics.Service) *Handler {
	return &Handler{svc: svc}
}

func dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("from must be YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("to must be YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) TopMorbidities(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	recordType := model.RecordType(c.DefaultQuery("record_type", string(model.RecordTypeMedical)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	counts, err := h.svc.TopMorbidities(c.Request.Context(), recordType, from, to, limit)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(counts))
}

func (h *Handler) ConsultationTrends(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	period := model.PeriodType(c.DefaultQuery("period", string(model.PeriodDaily)))

	points, err := h.svc.ConsultationTrends(c.Request.Context(), period, from, to)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(points))
}

// ConsultationSummary tallies clinic activity over an arbitrary window,
// computed live rather than read from persisted period rows.
func (h *Handler) ConsultationSummary(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	// include the whole last day
	to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)

	stat, err := h.svc.ConsultationStatistics(c.Request.Context(), from, to)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stat))
}

var consultationCSVHeader = []string{
	"period_type", "period_start", "period_end",
	"total_consultations", "medical_consultations", "dental_consultations",
	"total_appointments", "completed_appointments", "cancelled_appointments", "no_show_appointments",
	"certificates_issued", "prescriptions_issued", "new_students_registered",
}

func consultationCSVRow(s *model.ConsultationStatistic) []string {
	return []string{
		string(s.PeriodType),
		s.PeriodStart.Format("2006-01-02"),
		s.PeriodEnd.Format("2006-01-02"),
		strconv.Itoa(s.TotalConsultations),
		strconv.Itoa(s.MedicalConsultations),
		strconv.Itoa(s.DentalConsultations),
		strconv.Itoa(s.TotalAppointments),
		strconv.Itoa(s.CompletedAppointments),
		strconv.Itoa(s.CancelledAppointments),
		strconv.Itoa(s.NoShowAppointments),
		strconv.Itoa(s.CertificatesIssued),
		strconv.Itoa(s.PrescriptionsIssued),
		strconv.Itoa(s.NewStudentsRegistered),
	}
}

// ExportConsultationsCSV streams the persisted consultation statistics for
// the window as a CSV download.
func (h *Handler) ExportConsultationsCSV(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}
	period := model.PeriodType(c.DefaultQuery("period", string(model.PeriodMonthly)))

	stats, err := h.svc.ListConsultation(c.Request.Context(), period, from, to)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="consultation-statistics.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err := w.Write(consultationCSVHeader); err != nil {
		return
	}
	for _, s := range stats {
		if err := w.Write(consultationCSVRow(s)); err != nil {
			return
		}
	}
	w.Flush()
}

func (h *Handler) GetConsultation(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("date must be YYYY-MM-DD"))
		return
	}
	period := model.PeriodType(c.DefaultQuery("period", string(model.PeriodMonthly)))

	stat, err := h.svc.GetConsultation(c.Request.Context(), period, date)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stat))
}

func (h *Handler) ListMorbidity(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("date must be YYYY-MM-DD"))
		return
	}
	period := model.PeriodType(c.DefaultQuery("period", string(model.PeriodMonthly)))

	stats, err := h.svc.ListMorbidity(c.Request.Context(), period, date)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// Generate recomputes statistics for the period containing the given date.
func (h *Handler) Generate(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("date must be YYYY-MM-DD"))
		return
	}
	period := model.PeriodType(c.DefaultQuery("period", string(model.PeriodMonthly)))
	userID, _ := middleware.CurrentUserID(c)

	written, err := h.svc.Generate(c.Request.Context(), period, date, &userID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"rows_written": written}))
}
