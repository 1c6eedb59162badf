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

const updateRequestColumns = `
	id, student_id, field_name, old_value, new_value, reason, document,
	status, reviewed_by, review_notes, reviewed_at, expiry_date,
	created_at, updated_at
`

type updateRequestRepository struct {
	BaseRepository
}

func NewUpdateRequestRepository(db *sqlx.DB) repository.UpdateRequestRepository {
	return &updateRequestRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *updateRequestRepository) Create(ctx context.Context, req *model.RecordUpdateRequest) error {
	query := `
		INSERT INTO record_update_requests (` + updateRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	req.ID = uuid.New()
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.StudentID, req.FieldName, req.OldValue, req.NewValue,
		req.Reason, req.Document, req.Status, req.ReviewedBy, req.ReviewNotes,
		req.ReviewedAt, req.ExpiryDate, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create update request: %w", err)
	}
	return nil
}

func (r *updateRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.RecordUpdateRequest, error) {
	query := `SELECT ` + updateRequestColumns + ` FROM record_update_requests WHERE id = $1`

	var req model.RecordUpdateRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("update request", err)
		}
		return nil, fmt.Errorf("failed to get update request: %w", err)
	}
	return &req, nil
}

func (r *updateRequestRepository) Resolve(ctx context.Context, req *model.RecordUpdateRequest) (bool, error) {
	query := `
		UPDATE record_update_requests
		SET status = $1, reviewed_by = $2, review_notes = $3, reviewed_at = $4,
			updated_at = $5
		WHERE id = $6 AND status = 'pending'
	`
	req.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		req.Status, req.ReviewedBy, req.ReviewNotes, req.ReviewedAt,
		req.UpdatedAt, req.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve update request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *updateRequestRepository) List(ctx context.Context, studentID uuid.UUID, status model.UpdateRequestStatus) ([]*model.RecordUpdateRequest, error) {
	query := `SELECT ` + updateRequestColumns + ` FROM record_update_requests WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if studentID != uuid.Nil {
		query += fmt.Sprintf(" AND student_id = $%d", argCount)
		args = append(args, studentID)
		argCount++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, status)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	var requests []*model.RecordUpdateRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list update requests: %w", err)
	}
	return requests, nil
}

func (r *updateRequestRepository) ListPendingExpired(ctx context.Context, now time.Time) ([]*model.RecordUpdateRequest, error) {
	query := `
		SELECT ` + updateRequestColumns + `
		FROM record_update_requests
		WHERE status = 'pending' AND expiry_date < $1
		ORDER BY expiry_date ASC
	`
	var requests []*model.RecordUpdateRequest
	if err := r.db.SelectContext(ctx, &requests, query, now); err != nil {
		return nil, fmt.Errorf("failed to list expired update requests: %w", err)
	}
	return requests, nil
}
