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

const appointmentColumns = `
	id, ticket_number, student_id, doctor_id, service_type,
	preferred_date, preferred_time_slot, scheduled_at, reason, doctor_notes,
	emergency_contact_name, emergency_contact_number,
	status, approved_by, approved_at, completed_at, cancelled_at,
	cancelled_by, cancellation_reason, reminder_sent, created_at, updated_at
`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = time.Now()
	apt.UpdatedAt = apt.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		apt.ID, apt.TicketNumber, apt.StudentID, apt.DoctorID, apt.ServiceType,
		apt.PreferredDate, apt.PreferredTimeSlot, apt.ScheduledAt, apt.Reason, apt.DoctorNotes,
		apt.EmergencyContactName, apt.EmergencyContactNumber,
		apt.Status, apt.ApprovedBy, apt.ApprovedAt, apt.CompletedAt, apt.CancelledAt,
		apt.CancelledBy, apt.CancellationReason, apt.ReminderSent, apt.CreatedAt, apt.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Conflict("ticket number already exists", err)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var apt model.Appointment
	if err := r.db.GetContext(ctx, &apt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) GetByTicket(ctx context.Context, ticket string) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ticket_number = $1`

	var apt model.Appointment
	if err := r.db.GetContext(ctx, &apt, query, ticket); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment by ticket: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) Transition(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus) (bool, error) {
	query := `
		UPDATE appointments
		SET status = $1, doctor_id = $2, scheduled_at = $3, doctor_notes = $4,
			approved_by = $5, approved_at = $6, completed_at = $7,
			cancelled_at = $8, cancelled_by = $9, cancellation_reason = $10,
			updated_at = $11
		WHERE id = $12 AND status = $13
	`
	apt.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		apt.Status, apt.DoctorID, apt.ScheduledAt, apt.DoctorNotes,
		apt.ApprovedBy, apt.ApprovedAt, apt.CompletedAt,
		apt.CancelledAt, apt.CancelledBy, apt.CancellationReason,
		apt.UpdatedAt, apt.ID, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.StudentID != uuid.Nil {
		query += fmt.Sprintf(" AND student_id = $%d", argCount)
		args = append(args, filters.StudentID)
		argCount++
	}
	if filters.DoctorID != uuid.Nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, filters.DoctorID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND preferred_date >= $%d", argCount)
		args = append(args, filters.From)
		argCount++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND preferred_date <= $%d", argCount)
		args = append(args, filters.To)
		argCount++
	}

	query += " ORDER BY preferred_date ASC, created_at ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListForReminder(ctx context.Context, date time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'approved' AND reminder_sent = FALSE
		AND preferred_date = $1
		ORDER BY preferred_time_slot ASC, created_at ASC
	`
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, day); err != nil {
		return nil, fmt.Errorf("failed to list appointments for reminder: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET reminder_sent = TRUE, updated_at = $1 WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

func (r *appointmentRepository) CountByStatusBetween(ctx context.Context, from, to time.Time) (map[model.AppointmentStatus]int, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM appointments
		WHERE preferred_date >= $1 AND preferred_date <= $2
		GROUP BY status
	`
	var rows []struct {
		Status model.AppointmentStatus `db:"status"`
		Count  int                     `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to count appointments by status: %w", err)
	}

	out := make(map[model.AppointmentStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
