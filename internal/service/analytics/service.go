package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	"github.com/tip-mds/clinic-api/pkg/logger"
)

const DefaultTopMorbidities = 10

type Service struct {
	recordRepo  repository.MedicalRecordRepository
	aptRepo     repository.AppointmentRepository
	docRepo     repository.DocumentRepository
	studentRepo repository.StudentRepository
	statRepo    repository.StatisticRepository
	logger      *logger.Logger
}

func NewService(recordRepo repository.MedicalRecordRepository, aptRepo repository.AppointmentRepository, docRepo repository.DocumentRepository, studentRepo repository.StudentRepository, statRepo repository.StatisticRepository, l *logger.Logger) *Service {
	return &Service{
		recordRepo:  recordRepo,
		aptRepo:     aptRepo,
		docRepo:     docRepo,
		studentRepo: studentRepo,
		statRepo:    statRepo,
		logger:      l,
	}
}

// TopMorbidities ranks approved diagnoses in the window and attaches each
// one's share of the window total. Percentages are of all counted cases,
// so they sum to 100 when limit covers every diagnosis.
func (s *Service) TopMorbidities(ctx context.Context, recordType model.RecordType, from, to time.Time, limit int) ([]*model.MorbidityCount, error) {
	if limit <= 0 {
		limit = DefaultTopMorbidities
	}

	counts, err := s.recordRepo.DiagnosisCounts(ctx, recordType, from, to)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total > 0 {
		for _, c := range counts {
			c.Percentage = float64(c.Count) / float64(total) * 100
		}
	}

	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

// ConsultationTrends buckets approved visits by day or month. Buckets that
// fail to parse are skipped rather than failing the whole series.
func (s *Service) ConsultationTrends(ctx context.Context, period model.PeriodType, from, to time.Time) ([]*model.TrendPoint, error) {
	var (
		buckets map[string]map[model.RecordType]int
		layout  string
		err     error
	)
	switch period {
	case model.PeriodMonthly:
		buckets, err = s.recordRepo.MonthlyCounts(ctx, from, to)
		layout = "2006-01"
	default:
		buckets, err = s.recordRepo.DailyCounts(ctx, from, to)
		layout = "2006-01-02"
	}
	if err != nil {
		return nil, err
	}

	points := make([]*model.TrendPoint, 0, len(buckets))
	for bucket, byType := range buckets {
		if _, err := time.Parse(layout, bucket); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"bucket": bucket,
			}).Warn(err, "skipping malformed trend bucket")
			continue
		}
		medical := byType[model.RecordTypeMedical]
		dental := byType[model.RecordTypeDental]
		points = append(points, &model.TrendPoint{
			Bucket:  bucket,
			Medical: medical,
			Dental:  dental,
			Total:   medical + dental,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Bucket < points[j].Bucket })
	return points, nil
}

// ConsultationStatistics tallies clinic activity over an arbitrary window
// without persisting anything. PeriodStart and PeriodEnd carry the window
// bounds as given.
func (s *Service) ConsultationStatistics(ctx context.Context, from, to time.Time) (*model.ConsultationStatistic, error) {
	medical, err := s.recordRepo.CountApprovedBetween(ctx, model.RecordTypeMedical, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count medical consultations: %w", err)
	}
	dental, err := s.recordRepo.CountApprovedBetween(ctx, model.RecordTypeDental, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count dental consultations: %w", err)
	}

	byStatus, err := s.aptRepo.CountByStatusBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}
	totalAppointments := 0
	for _, n := range byStatus {
		totalAppointments += n
	}

	certs, err := s.docRepo.CountCertificatesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count certificates: %w", err)
	}
	prescriptions, err := s.docRepo.CountPrescriptionsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	newStudents, err := s.studentRepo.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count new students: %w", err)
	}

	return &model.ConsultationStatistic{
		PeriodStart:           from,
		PeriodEnd:             to,
		TotalConsultations:    medical + dental,
		MedicalConsultations:  medical,
		DentalConsultations:   dental,
		TotalAppointments:     totalAppointments,
		CompletedAppointments: byStatus[model.AppointmentStatusCompleted],
		CancelledAppointments: byStatus[model.AppointmentStatusCancelled],
		NoShowAppointments:    byStatus[model.AppointmentStatusNoShow],
		CertificatesIssued:    certs,
		PrescriptionsIssued:   prescriptions,
		NewStudentsRegistered: newStudents,
	}, nil
}

// Generate recomputes and upserts the consultation and morbidity statistics
// for the period containing date. Re-running a period overwrites the stored
// rows instead of duplicating them. It returns the number of statistic rows
// written.
func (s *Service) Generate(ctx context.Context, periodType model.PeriodType, date time.Time, generatedBy *uuid.UUID) (int, error) {
	start := periodType.PeriodStart(date)
	end := periodType.PeriodEnd(start)
	// include the whole last day
	windowEnd := end.AddDate(0, 0, 1).Add(-time.Nanosecond)

	written := 0

	stat, err := s.ConsultationStatistics(ctx, start, windowEnd)
	if err != nil {
		return written, err
	}
	stat.PeriodType = periodType
	stat.PeriodEnd = end
	if err := s.statRepo.UpsertConsultation(ctx, stat); err != nil {
		return written, err
	}
	written++

	for _, recordType := range []model.RecordType{model.RecordTypeMedical, model.RecordTypeDental} {
		n, err := s.generateMorbidity(ctx, periodType, start, end, windowEnd, recordType, generatedBy)
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (s *Service) generateMorbidity(ctx context.Context, periodType model.PeriodType, start, end, windowEnd time.Time, recordType model.RecordType, generatedBy *uuid.UUID) (int, error) {
	counts, err := s.recordRepo.DiagnosisCounts(ctx, recordType, start, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to get diagnosis counts: %w", err)
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}

	written := 0
	for _, c := range counts {
		pct := 0.0
		if total > 0 {
			pct = float64(c.Count) / float64(total) * 100
		}
		stat := &model.MorbidityStatistic{
			PeriodType:  periodType,
			PeriodStart: start,
			PeriodEnd:   end,
			Diagnosis:   c.Diagnosis,
			RecordType:  recordType,
			CaseCount:   c.Count,
			Percentage:  pct,
			GeneratedBy: generatedBy,
		}
		if err := s.statRepo.UpsertMorbidity(ctx, stat); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (s *Service) GetConsultation(ctx context.Context, periodType model.PeriodType, date time.Time) (*model.ConsultationStatistic, error) {
	return s.statRepo.GetConsultation(ctx, periodType, periodType.PeriodStart(date))
}

func (s *Service) ListMorbidity(ctx context.Context, periodType model.PeriodType, date time.Time) ([]*model.MorbidityStatistic, error) {
	return s.statRepo.ListMorbidity(ctx, periodType, periodType.PeriodStart(date))
}

func (s *Service) ListConsultation(ctx context.Context, periodType model.PeriodType, from, to time.Time) ([]*model.ConsultationStatistic, error) {
	return s.statRepo.ListConsultation(ctx, periodType, from, to)
}
