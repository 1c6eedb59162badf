package analytics

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/service/analytics"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
)

type stubStatRepo struct {
	consultations []*model.ConsultationStatistic
}

func (r *stubStatRepo) UpsertMorbidity(_ context.Context, _ *model.MorbidityStatistic) error {
	return nil
}

func (r *stubStatRepo) UpsertConsultation(_ context.Context, _ *model.ConsultationStatistic) error {
	return nil
}

func (r *stubStatRepo) GetConsultation(_ context.Context, _ model.PeriodType, _ time.Time) (*model.ConsultationStatistic, error) {
	return nil, apperrors.NotFound("consultation statistic", nil)
}

func (r *stubStatRepo) ListMorbidity(_ context.Context, _ model.PeriodType, _ time.Time) ([]*model.MorbidityStatistic, error) {
	return nil, nil
}

func (r *stubStatRepo) ListConsultation(_ context.Context, _ model.PeriodType, _, _ time.Time) ([]*model.ConsultationStatistic, error) {
	return r.consultations, nil
}

func exportRouter(stats *stubStatRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := analytics.NewService(nil, nil, nil, nil, stats, &logger.Logger{ZL: zerolog.Nop()})
	h := NewHandler(svc)

	r := gin.New()
	r.GET("/analytics/consultations/export", h.ExportConsultationsCSV)
	return r
}

func TestExportConsultationsCSV(t *testing.T) {
	stats := &stubStatRepo{consultations: []*model.ConsultationStatistic{{
		PeriodType:            model.PeriodMonthly,
		PeriodStart:           time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:             time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		TotalConsultations:    30,
		MedicalConsultations:  20,
		DentalConsultations:   10,
		TotalAppointments:     30,
		CompletedAppointments: 25,
		CancelledAppointments: 3,
		NoShowAppointments:    2,
		CertificatesIssued:    6,
		PrescriptionsIssued:   14,
		NewStudentsRegistered: 40,
	}}}
	r := exportRouter(stats)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analytics/consultations/export?from=2025-01-01&to=2025-12-31&period=monthly", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "consultation-statistics.csv")

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, consultationCSVHeader, rows[0])
	assert.Equal(t, []string{
		"monthly", "2025-03-01", "2025-03-31",
		"30", "20", "10",
		"30", "25", "3", "2",
		"6", "14", "40",
	}, rows[1])
}

func TestExportConsultationsCSVEmptyWindow(t *testing.T) {
	r := exportRouter(&stubStatRepo{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analytics/consultations/export?from=2025-01-01&to=2025-01-31", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	// Header only.
	require.Len(t, rows, 1)
}

func TestExportConsultationsCSVRejectsBadDates(t *testing.T) {
	r := exportRouter(&stubStatRepo{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analytics/consultations/export?from=January&to=2025-01-31", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
