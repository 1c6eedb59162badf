package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
)

const consultationStatColumns = `
	id, period_type, period_start, period_end,
	total_consultations, medical_consultations, dental_consultations,
	total_appointments, completed_appointments, cancelled_appointments,
	no_show_appointments, certificates_issued, prescriptions_issued,
	new_students_registered, created_at, updated_at
`

type statisticRepository struct {
	BaseRepository
}

func NewStatisticRepository(db *sqlx.DB) repository.StatisticRepository {
	return &statisticRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *statisticRepository) UpsertMorbidity(ctx context.Context, s *model.MorbidityStatistic) error {
	query := `
		INSERT INTO morbidity_statistics (
			id, period_type, period_start, period_end,
			diagnosis, record_type, case_count, percentage, generated_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (period_type, period_start, diagnosis, record_type) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			case_count = EXCLUDED.case_count,
			percentage = EXCLUDED.percentage,
			generated_by = EXCLUDED.generated_by,
			updated_at = EXCLUDED.updated_at
	`
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.PeriodType, s.PeriodStart, s.PeriodEnd,
		s.Diagnosis, s.RecordType, s.CaseCount, s.Percentage, s.GeneratedBy,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert morbidity statistic: %w", err)
	}
	return nil
}

func (r *statisticRepository) UpsertConsultation(ctx context.Context, s *model.ConsultationStatistic) error {
	query := `
		INSERT INTO consultation_statistics (` + consultationStatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (period_type, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			total_consultations = EXCLUDED.total_consultations,
			medical_consultations = EXCLUDED.medical_consultations,
			dental_consultations = EXCLUDED.dental_consultations,
			total_appointments = EXCLUDED.total_appointments,
			completed_appointments = EXCLUDED.completed_appointments,
			cancelled_appointments = EXCLUDED.cancelled_appointments,
			no_show_appointments = EXCLUDED.no_show_appointments,
			certificates_issued = EXCLUDED.certificates_issued,
			prescriptions_issued = EXCLUDED.prescriptions_issued,
			new_students_registered = EXCLUDED.new_students_registered,
			updated_at = EXCLUDED.updated_at
	`
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.PeriodType, s.PeriodStart, s.PeriodEnd,
		s.TotalConsultations, s.MedicalConsultations, s.DentalConsultations,
		s.TotalAppointments, s.CompletedAppointments, s.CancelledAppointments,
		s.NoShowAppointments, s.CertificatesIssued, s.PrescriptionsIssued,
		s.NewStudentsRegistered, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert consultation statistic: %w", err)
	}
	return nil
}

func (r *statisticRepository) GetConsultation(ctx context.Context, periodType model.PeriodType, periodStart time.Time) (*model.ConsultationStatistic, error) {
	query := `
		SELECT ` + consultationStatColumns + `
		FROM consultation_statistics
		WHERE period_type = $1 AND period_start = $2
	`
	var s model.ConsultationStatistic
	if err := r.db.GetContext(ctx, &s, query, periodType, periodStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("consultation statistic", err)
		}
		return nil, fmt.Errorf("failed to get consultation statistic: %w", err)
	}
	return &s, nil
}

func (r *statisticRepository) ListMorbidity(ctx context.Context, periodType model.PeriodType, periodStart time.Time) ([]*model.MorbidityStatistic, error) {
	query := `
		SELECT id, period_type, period_start, period_end,
			diagnosis, record_type, case_count, percentage, generated_by,
			created_at, updated_at
		FROM morbidity_statistics
		WHERE period_type = $1 AND period_start = $2
		ORDER BY case_count DESC, diagnosis ASC
	`
	var stats []*model.MorbidityStatistic
	if err := r.db.SelectContext(ctx, &stats, query, periodType, periodStart); err != nil {
		return nil, fmt.Errorf("failed to list morbidity statistics: %w", err)
	}
	return stats, nil
}

func (r *statisticRepository) ListConsultation(ctx context.Context, periodType model.PeriodType, from, to time.Time) ([]*model.ConsultationStatistic, error) {
	query := `
		SELECT ` + consultationStatColumns + `
		FROM consultation_statistics
		WHERE period_type = $1 AND period_start >= $2 AND period_start <= $3
		ORDER BY period_start ASC
	`
	var stats []*model.ConsultationStatistic
	if err := r.db.SelectContext(ctx, &stats, query, periodType, from, to); err != nil {
		return nil, fmt.Errorf("failed to list consultation statistics: %w", err)
	}
	return stats, nil
}
