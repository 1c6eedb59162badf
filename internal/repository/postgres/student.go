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

const studentColumns = `
	user_id, student_id, program, year_level, sex, date_of_birth,
	contact_number, address,
	emergency_contact_name, emergency_contact_relationship,
	emergency_contact_number, emergency_contact_address,
	height_cm, weight_kg, blood_type, allergies, current_medications,
	medical_history, last_dental_visit, dental_history,
	is_complete, is_verified, created_at, updated_at
`

type studentRepository struct {
	BaseRepository
}

func NewStudentRepository(db *sqlx.DB) repository.StudentRepository {
	return &studentRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *studentRepository) Create(ctx context.Context, p *model.StudentProfile) error {
	query := `
		INSERT INTO student_profiles (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.StudentID, p.Program, p.YearLevel, p.Sex, p.DateOfBirth,
		p.ContactNumber, p.Address,
		p.EmergencyContactName, p.EmergencyContactRelationship,
		p.EmergencyContactNumber, p.EmergencyContactAddress,
		p.HeightCM, p.WeightKG, p.BloodType, p.Allergies, p.CurrentMedications,
		p.MedicalHistory, p.LastDentalVisit, p.DentalHistory,
		p.IsComplete, p.IsVerified, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Conflict("student ID already registered", err)
		}
		return fmt.Errorf("failed to create student profile: %w", err)
	}
	return nil
}

func (r *studentRepository) Get(ctx context.Context, userID uuid.UUID) (*model.StudentProfile, error) {
	query := `SELECT ` + studentColumns + ` FROM student_profiles WHERE user_id = $1`

	var p model.StudentProfile
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("student profile", err)
		}
		return nil, fmt.Errorf("failed to get student profile: %w", err)
	}
	return &p, nil
}

func (r *studentRepository) GetByStudentID(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	query := `SELECT ` + studentColumns + ` FROM student_profiles WHERE student_id = $1`

	var p model.StudentProfile
	if err := r.db.GetContext(ctx, &p, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("student profile", err)
		}
		return nil, fmt.Errorf("failed to get student profile: %w", err)
	}
	return &p, nil
}

func (r *studentRepository) Update(ctx context.Context, p *model.StudentProfile) error {
	query := `
		UPDATE student_profiles
		SET program = $1, year_level = $2, sex = $3, date_of_birth = $4,
			contact_number = $5, address = $6,
			emergency_contact_name = $7, emergency_contact_relationship = $8,
			emergency_contact_number = $9, emergency_contact_address = $10,
			height_cm = $11, weight_kg = $12, blood_type = $13,
			allergies = $14, current_medications = $15, medical_history = $16,
			last_dental_visit = $17, dental_history = $18,
			is_complete = $19, is_verified = $20, updated_at = $21
		WHERE user_id = $22
	`
	p.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		p.Program, p.YearLevel, p.Sex, p.DateOfBirth,
		p.ContactNumber, p.Address,
		p.EmergencyContactName, p.EmergencyContactRelationship,
		p.EmergencyContactNumber, p.EmergencyContactAddress,
		p.HeightCM, p.WeightKG, p.BloodType,
		p.Allergies, p.CurrentMedications, p.MedicalHistory,
		p.LastDentalVisit, p.DentalHistory,
		p.IsComplete, p.IsVerified, p.UpdatedAt,
		p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update student profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("student profile", nil)
	}
	return nil
}

func (r *studentRepository) List(ctx context.Context, p model.Pagination) ([]*model.StudentProfile, error) {
	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	query := `SELECT ` + studentColumns + `
		FROM student_profiles
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	var profiles []*model.StudentProfile
	if err := r.db.SelectContext(ctx, &profiles, query, p.PageSize, (p.Page-1)*p.PageSize); err != nil {
		return nil, fmt.Errorf("failed to list student profiles: %w", err)
	}
	return profiles, nil
}

func (r *studentRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM student_profiles WHERE created_at >= $1 AND created_at <= $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, from, to); err != nil {
		return 0, fmt.Errorf("failed to count student profiles: %w", err)
	}
	return count, nil
}
