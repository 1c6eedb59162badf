package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tip-mds/clinic-api/internal/model"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
)

// statRecordRepo serves canned aggregates; only the aggregate methods are
// exercised by the analytics service.
type statRecordRepo struct {
	diagnosisCounts map[model.RecordType][]*model.MorbidityCount
	dailyCounts     map[string]map[model.RecordType]int
	monthlyCounts   map[string]map[model.RecordType]int
	approvedCounts  map[model.RecordType]int
}

func (r *statRecordRepo) Create(_ context.Context, _ *model.MedicalRecord) error { return nil }

func (r *statRecordRepo) Get(_ context.Context, _ uuid.UUID) (*model.MedicalRecord, error) {
	return nil, apperrors.NotFound("medical record", nil)
}

func (r *statRecordRepo) Update(_ context.Context, _ *model.MedicalRecord) error { return nil }

func (r *statRecordRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _, _ model.RecordStatus, _ *uuid.UUID, _ time.Time) (bool, error) {
	return false, nil
}

func (r *statRecordRepo) List(_ context.Context, _ *model.MedicalRecordFilters) ([]*model.MedicalRecord, error) {
	return nil, nil
}

func (r *statRecordRepo) CountApprovedBetween(_ context.Context, recordType model.RecordType, _, _ time.Time) (int, error) {
	return r.approvedCounts[recordType], nil
}

func (r *statRecordRepo) DiagnosisCounts(_ context.Context, recordType model.RecordType, _, _ time.Time) ([]*model.MorbidityCount, error) {
	return r.diagnosisCounts[recordType], nil
}

func (r *statRecordRepo) DailyCounts(_ context.Context, _, _ time.Time) (map[string]map[model.RecordType]int, error) {
	return r.dailyCounts, nil
}

func (r *statRecordRepo) MonthlyCounts(_ context.Context, _, _ time.Time) (map[string]map[model.RecordType]int, error) {
	return r.monthlyCounts, nil
}

type statAptRepo struct {
	byStatus map[model.AppointmentStatus]int
}

func (r *statAptRepo) Create(_ context.Context, _ *model.Appointment) error { return nil }

func (r *statAptRepo) Get(_ context.Context, _ uuid.UUID) (*model.Appointment, error) {
	return nil, apperrors.NotFound("appointment", nil)
}

func (r *statAptRepo) GetByTicket(_ context.Context, _ string) (*model.Appointment, error) {
	return nil, apperrors.NotFound("appointment", nil)
}

func (r *statAptRepo) Transition(_ context.Context, _ *model.Appointment, _ model.AppointmentStatus) (bool, error) {
	return false, nil
}

func (r *statAptRepo) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	return nil, nil
}

func (r *statAptRepo) ListForReminder(_ context.Context, _ time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (r *statAptRepo) MarkReminderSent(_ context.Context, _ uuid.UUID) error { return nil }

func (r *statAptRepo) CountByStatusBetween(_ context.Context, _, _ time.Time) (map[model.AppointmentStatus]int, error) {
	return r.byStatus, nil
}

type statDocRepo struct {
	certs, prescriptions int
}

func (r *statDocRepo) CreateTemplate(_ context.Context, _ *model.Template) error { return nil }

func (r *statDocRepo) GetTemplate(_ context.Context, _ uuid.UUID) (*model.Template, error) {
	return nil, apperrors.NotFound("template", nil)
}

func (r *statDocRepo) GetDefaultTemplate(_ context.Context, _ model.TemplateType) (*model.Template, error) {
	return nil, apperrors.NotFound("template", nil)
}

func (r *statDocRepo) ListTemplates(_ context.Context, _ model.TemplateType) ([]*model.Template, error) {
	return nil, nil
}

func (r *statDocRepo) CreateCertificate(_ context.Context, _ *model.IssuedCertificate) error {
	return nil
}

func (r *statDocRepo) GetCertificate(_ context.Context, _ uuid.UUID) (*model.IssuedCertificate, error) {
	return nil, apperrors.NotFound("certificate", nil)
}

func (r *statDocRepo) GetCertificateByNumber(_ context.Context, _ string) (*model.IssuedCertificate, error) {
	return nil, apperrors.NotFound("certificate", nil)
}

func (r *statDocRepo) UpdateCertificateStatus(_ context.Context, _ *model.IssuedCertificate, _ model.CertificateStatus) (bool, error) {
	return false, nil
}

func (r *statDocRepo) ListCertificates(_ context.Context, _ uuid.UUID) ([]*model.IssuedCertificate, error) {
	return nil, nil
}

func (r *statDocRepo) ListActiveExpiredCertificates(_ context.Context, _ time.Time) ([]*model.IssuedCertificate, error) {
	return nil, nil
}

func (r *statDocRepo) CountCertificatesBetween(_ context.Context, _, _ time.Time) (int, error) {
	return r.certs, nil
}

func (r *statDocRepo) CreatePrescription(_ context.Context, _ *model.Prescription) error { return nil }

func (r *statDocRepo) GetPrescription(_ context.Context, _ uuid.UUID) (*model.Prescription, error) {
	return nil, apperrors.NotFound("prescription", nil)
}

func (r *statDocRepo) ListPrescriptions(_ context.Context, _ uuid.UUID) ([]*model.Prescription, error) {
	return nil, nil
}

func (r *statDocRepo) CountPrescriptionsBetween(_ context.Context, _, _ time.Time) (int, error) {
	return r.prescriptions, nil
}

type statStudentRepo struct {
	newStudents int
}

func (r *statStudentRepo) Create(_ context.Context, _ *model.StudentProfile) error { return nil }

func (r *statStudentRepo) Get(_ context.Context, _ uuid.UUID) (*model.StudentProfile, error) {
	return nil, apperrors.NotFound("student profile", nil)
}

func (r *statStudentRepo) GetByStudentID(_ context.Context, _ string) (*model.StudentProfile, error) {
	return nil, apperrors.NotFound("student profile", nil)
}

func (r *statStudentRepo) Update(_ context.Context, _ *model.StudentProfile) error { return nil }

func (r *statStudentRepo) List(_ context.Context, _ model.Pagination) ([]*model.StudentProfile, error) {
	return nil, nil
}

func (r *statStudentRepo) CountCreatedBetween(_ context.Context, _, _ time.Time) (int, error) {
	return r.newStudents, nil
}

type fakeStatRepo struct {
	morbidity     []*model.MorbidityStatistic
	consultations map[string]*model.ConsultationStatistic
}

func newFakeStatRepo() *fakeStatRepo {
	return &fakeStatRepo{consultations: map[string]*model.ConsultationStatistic{}}
}

func consultationKey(periodType model.PeriodType, start time.Time) string {
	return string(periodType) + "|" + start.Format("2006-01-02")
}

func (r *fakeStatRepo) UpsertMorbidity(_ context.Context, s *model.MorbidityStatistic) error {
	for i, existing := range r.morbidity {
		if existing.PeriodType == s.PeriodType && existing.PeriodStart.Equal(s.PeriodStart) &&
			existing.Diagnosis == s.Diagnosis && existing.RecordType == s.RecordType {
			r.morbidity[i] = s
			return nil
		}
	}
	r.morbidity = append(r.morbidity, s)
	return nil
}

func (r *fakeStatRepo) UpsertConsultation(_ context.Context, s *model.ConsultationStatistic) error {
	r.consultations[consultationKey(s.PeriodType, s.PeriodStart)] = s
	return nil
}

func (r *fakeStatRepo) GetConsultation(_ context.Context, periodType model.PeriodType, periodStart time.Time) (*model.ConsultationStatistic, error) {
	s, ok := r.consultations[consultationKey(periodType, periodStart)]
	if !ok {
		return nil, apperrors.NotFound("consultation statistic", nil)
	}
	return s, nil
}

func (r *fakeStatRepo) ListMorbidity(_ context.Context, periodType model.PeriodType, periodStart time.Time) ([]*model.MorbidityStatistic, error) {
	var out []*model.MorbidityStatistic
	for _, s := range r.morbidity {
		if s.PeriodType == periodType && s.PeriodStart.Equal(periodStart) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStatRepo) ListConsultation(_ context.Context, periodType model.PeriodType, from, to time.Time) ([]*model.ConsultationStatistic, error) {
	var out []*model.ConsultationStatistic
	for _, s := range r.consultations {
		if s.PeriodType == periodType && !s.PeriodStart.Before(from) && !s.PeriodStart.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func newService(records *statRecordRepo, apts *statAptRepo, docs *statDocRepo, students *statStudentRepo, stats *fakeStatRepo) *Service {
	l := &logger.Logger{ZL: zerolog.Nop()}
	return NewService(records, apts, docs, students, stats, l)
}

func TestTopMorbidities(t *testing.T) {
	records := &statRecordRepo{
		diagnosisCounts: map[model.RecordType][]*model.MorbidityCount{
			model.RecordTypeMedical: {
				{Diagnosis: "Upper respiratory tract infection", Count: 30},
				{Diagnosis: "Hypertension", Count: 15},
				{Diagnosis: "Gastritis", Count: 5},
			},
		},
	}
	svc := newService(records, &statAptRepo{}, &statDocRepo{}, &statStudentRepo{}, newFakeStatRepo())

	out, err := svc.TopMorbidities(context.Background(), model.RecordTypeMedical, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 60.0, out[0].Percentage, 0.001)
	assert.InDelta(t, 30.0, out[1].Percentage, 0.001)
	assert.InDelta(t, 10.0, out[2].Percentage, 0.001)

	// Percentages stay relative to the full total when the list is cut.
	out, err = svc.TopMorbidities(context.Background(), model.RecordTypeMedical, time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 60.0, out[0].Percentage, 0.001)
}

func TestTopMorbiditiesEmptyWindow(t *testing.T) {
	records := &statRecordRepo{diagnosisCounts: map[model.RecordType][]*model.MorbidityCount{}}
	svc := newService(records, &statAptRepo{}, &statDocRepo{}, &statStudentRepo{}, newFakeStatRepo())

	out, err := svc.TopMorbidities(context.Background(), model.RecordTypeDental, time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestConsultationTrends(t *testing.T) {
	records := &statRecordRepo{
		dailyCounts: map[string]map[model.RecordType]int{
			"2025-03-11": {model.RecordTypeMedical: 4, model.RecordTypeDental: 2},
			"2025-03-10": {model.RecordTypeMedical: 1},
			"not-a-date": {model.RecordTypeMedical: 9},
		},
	}
	svc := newService(records, &statAptRepo{}, &statDocRepo{}, &statStudentRepo{}, newFakeStatRepo())

	points, err := svc.ConsultationTrends(context.Background(), model.PeriodDaily, time.Time{}, time.Time{})
	require.NoError(t, err)

	// The malformed bucket is skipped, and points come back sorted.
	require.Len(t, points, 2)
	assert.Equal(t, "2025-03-10", points[0].Bucket)
	assert.Equal(t, 1, points[0].Total)
	assert.Equal(t, "2025-03-11", points[1].Bucket)
	assert.Equal(t, 4, points[1].Medical)
	assert.Equal(t, 2, points[1].Dental)
	assert.Equal(t, 6, points[1].Total)
}

func TestConsultationTrendsMonthly(t *testing.T) {
	records := &statRecordRepo{
		monthlyCounts: map[string]map[model.RecordType]int{
			"2025-02": {model.RecordTypeDental: 7},
			"2025-01": {model.RecordTypeMedical: 12},
		},
	}
	svc := newService(records, &statAptRepo{}, &statDocRepo{}, &statStudentRepo{}, newFakeStatRepo())

	points, err := svc.ConsultationTrends(context.Background(), model.PeriodMonthly, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2025-01", points[0].Bucket)
	assert.Equal(t, "2025-02", points[1].Bucket)
}

func TestConsultationStatisticsWindow(t *testing.T) {
	records := &statRecordRepo{
		approvedCounts: map[model.RecordType]int{
			model.RecordTypeMedical: 8,
			model.RecordTypeDental:  3,
		},
	}
	apts := &statAptRepo{byStatus: map[model.AppointmentStatus]int{
		model.AppointmentStatusCompleted: 9,
		model.AppointmentStatusPending:   2,
	}}
	docs := &statDocRepo{certs: 4, prescriptions: 7}
	students := &statStudentRepo{newStudents: 5}
	stats := newFakeStatRepo()
	svc := newService(records, apts, docs, students, stats)

	// An ad-hoc window, not aligned to any calendar period.
	from := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	stat, err := svc.ConsultationStatistics(context.Background(), from, to)
	require.NoError(t, err)

	assert.Equal(t, 11, stat.TotalConsultations)
	assert.Equal(t, 8, stat.MedicalConsultations)
	assert.Equal(t, 3, stat.DentalConsultations)
	assert.Equal(t, 11, stat.TotalAppointments)
	assert.Equal(t, 9, stat.CompletedAppointments)
	assert.Equal(t, 4, stat.CertificatesIssued)
	assert.Equal(t, 7, stat.PrescriptionsIssued)
	assert.Equal(t, 5, stat.NewStudentsRegistered)
	assert.Equal(t, from, stat.PeriodStart)
	assert.Equal(t, to, stat.PeriodEnd)

	// The tally is computed live; nothing was persisted.
	assert.Empty(t, stats.consultations)
	assert.Empty(t, stats.morbidity)
}

func TestGenerate(t *testing.T) {
	records := &statRecordRepo{
		approvedCounts: map[model.RecordType]int{
			model.RecordTypeMedical: 20,
			model.RecordTypeDental:  10,
		},
		diagnosisCounts: map[model.RecordType][]*model.MorbidityCount{
			model.RecordTypeMedical: {
				{Diagnosis: "Influenza", Count: 12},
				{Diagnosis: "Migraine", Count: 8},
			},
			model.RecordTypeDental: {
				{Diagnosis: "Dental caries", Count: 10},
			},
		},
	}
	apts := &statAptRepo{byStatus: map[model.AppointmentStatus]int{
		model.AppointmentStatusCompleted: 25,
		model.AppointmentStatusCancelled: 3,
		model.AppointmentStatusNoShow:    2,
	}}
	docs := &statDocRepo{certs: 6, prescriptions: 14}
	students := &statStudentRepo{newStudents: 40}
	stats := newFakeStatRepo()
	svc := newService(records, apts, docs, students, stats)

	date := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	written, err := svc.Generate(context.Background(), model.PeriodMonthly, date, nil)
	require.NoError(t, err)
	// One consultation row plus three morbidity rows.
	assert.Equal(t, 4, written)

	stat, err := svc.GetConsultation(context.Background(), model.PeriodMonthly, date)
	require.NoError(t, err)
	assert.Equal(t, 30, stat.TotalConsultations)
	assert.Equal(t, 20, stat.MedicalConsultations)
	assert.Equal(t, 10, stat.DentalConsultations)
	assert.Equal(t, 30, stat.TotalAppointments)
	assert.Equal(t, 25, stat.CompletedAppointments)
	assert.Equal(t, 6, stat.CertificatesIssued)
	assert.Equal(t, 14, stat.PrescriptionsIssued)
	assert.Equal(t, 40, stat.NewStudentsRegistered)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), stat.PeriodStart)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), stat.PeriodEnd)

	rows, err := svc.ListMorbidity(context.Background(), model.PeriodMonthly, date)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		if row.Diagnosis == "Dental caries" {
			// Percentage is within the record type, not across both.
			assert.InDelta(t, 100.0, row.Percentage, 0.001)
		}
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	records := &statRecordRepo{
		approvedCounts: map[model.RecordType]int{model.RecordTypeMedical: 5},
		diagnosisCounts: map[model.RecordType][]*model.MorbidityCount{
			model.RecordTypeMedical: {{Diagnosis: "Influenza", Count: 5}},
		},
	}
	stats := newFakeStatRepo()
	svc := newService(records, &statAptRepo{}, &statDocRepo{}, &statStudentRepo{}, stats)

	date := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.Generate(context.Background(), model.PeriodMonthly, date, nil)
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), model.PeriodMonthly, date, nil)
	require.NoError(t, err)

	// Re-running the same period overwrites rather than duplicates.
	assert.Len(t, stats.consultations, 1)
	assert.Len(t, stats.morbidity, 1)
}
