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

const recordColumns = `
	id, student_id, doctor_id, record_type, visit_date,
	chief_complaint, diagnosis, procedure, prescription, remarks,
	blood_pressure, temperature, pulse_rate, respiratory_rate,
	status, approved_by, approved_at, created_at, updated_at
`

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(db *sqlx.DB) repository.MedicalRecordRepository {
	return &medicalRecordRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *medicalRecordRepository) Create(ctx context.Context, rec *model.MedicalRecord) error {
	query := `
		INSERT INTO medical_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.StudentID, rec.DoctorID, rec.RecordType, rec.VisitDate,
		rec.ChiefComplaint, rec.Diagnosis, rec.Procedure, rec.Prescription, rec.Remarks,
		rec.BloodPressure, rec.Temperature, rec.PulseRate, rec.RespiratoryRate,
		rec.Status, rec.ApprovedBy, rec.ApprovedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medical record: %w", err)
	}
	return nil
}

func (r *medicalRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE id = $1`

	var rec model.MedicalRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("medical record", err)
		}
		return nil, fmt.Errorf("failed to get medical record: %w", err)
	}
	return &rec, nil
}

func (r *medicalRecordRepository) Update(ctx context.Context, rec *model.MedicalRecord) error {
	query := `
		UPDATE medical_records
		SET chief_complaint = $1, diagnosis = $2, procedure = $3,
			prescription = $4, remarks = $5, blood_pressure = $6,
			temperature = $7, pulse_rate = $8, respiratory_rate = $9,
			updated_at = $10
		WHERE id = $11 AND status = 'pending'
	`
	rec.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		rec.ChiefComplaint, rec.Diagnosis, rec.Procedure,
		rec.Prescription, rec.Remarks, rec.BloodPressure,
		rec.Temperature, rec.PulseRate, rec.RespiratoryRate,
		rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update medical record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.Conflict("record is not editable", nil)
	}
	return nil
}

func (r *medicalRecordRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.RecordStatus, approvedBy *uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE medical_records
		SET status = $1, approved_by = $2, approved_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	result, err := r.db.ExecContext(ctx, query, to, approvedBy, at, at, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update record status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *medicalRecordRepository) List(ctx context.Context, filters *model.MedicalRecordFilters) ([]*model.MedicalRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.StudentID != uuid.Nil {
		query += fmt.Sprintf(" AND student_id = $%d", argCount)
		args = append(args, filters.StudentID)
		argCount++
	}
	if filters.RecordType != "" {
		query += fmt.Sprintf(" AND record_type = $%d", argCount)
		args = append(args, filters.RecordType)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND visit_date >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND visit_date <= $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	query += " ORDER BY visit_date DESC, created_at DESC"

	var records []*model.MedicalRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list medical records: %w", err)
	}
	return records, nil
}

func (r *medicalRecordRepository) CountApprovedBetween(ctx context.Context, recordType model.RecordType, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM medical_records
		WHERE record_type = $1 AND status = 'approved'
		AND visit_date >= $2 AND visit_date <= $3
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, recordType, from, to); err != nil {
		return 0, fmt.Errorf("failed to count medical records: %w", err)
	}
	return count, nil
}

func (r *medicalRecordRepository) DiagnosisCounts(ctx context.Context, recordType model.RecordType, from, to time.Time) ([]*model.MorbidityCount, error) {
	query := `
		SELECT diagnosis, COUNT(*) AS count
		FROM medical_records
		WHERE record_type = $1 AND status = 'approved'
		AND diagnosis <> ''
		AND visit_date >= $2 AND visit_date <= $3
		GROUP BY diagnosis
		ORDER BY count DESC, MIN(created_at) ASC
	`
	var counts []*model.MorbidityCount
	if err := r.db.SelectContext(ctx, &counts, query, recordType, from, to); err != nil {
		return nil, fmt.Errorf("failed to get diagnosis counts: %w", err)
	}
	return counts, nil
}

type bucketCount struct {
	Bucket     sql.NullString   `db:"bucket"`
	RecordType model.RecordType `db:"record_type"`
	Count      int              `db:"count"`
}

func (r *medicalRecordRepository) bucketCounts(ctx context.Context, format string, from, to time.Time) (map[string]map[model.RecordType]int, error) {
	query := `
		SELECT to_char(visit_date, '` + format + `') AS bucket, record_type, COUNT(*) AS count
		FROM medical_records
		WHERE status = 'approved' AND visit_date >= $1 AND visit_date <= $2
		GROUP BY bucket, record_type
		ORDER BY bucket ASC
	`
	var rows []*bucketCount
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to get bucket counts: %w", err)
	}

	out := make(map[string]map[model.RecordType]int)
	for _, row := range rows {
		// Malformed groupings are skipped, not surfaced.
		if !row.Bucket.Valid || row.Bucket.String == "" {
			continue
		}
		if out[row.Bucket.String] == nil {
			out[row.Bucket.String] = make(map[model.RecordType]int)
		}
		out[row.Bucket.String][row.RecordType] += row.Count
	}
	return out, nil
}

func (r *medicalRecordRepository) DailyCounts(ctx context.Context, from, to time.Time) (map[string]map[model.RecordType]int, error) {
	return r.bucketCounts(ctx, "YYYY-MM-DD", from, to)
}

func (r *medicalRecordRepository) MonthlyCounts(ctx context.Context, from, to time.Time) (map[string]map[model.RecordType]int, error) {
	return r.bucketCounts(ctx, "YYYY-MM", from, to)
}
