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

const notificationColumns = `
	id, recipient_id, type, title, message, priority,
	action_url, action_label, related_object_type, related_object_id,
	is_read, read_at, send_email, email_sent, email_sent_at,
	expires_at, created_at, updated_at
`

const emailLogColumns = `
	id, notification_id, recipient_email, recipient_name, subject, body,
	status, error_message, sent_at, retry_count, max_retries,
	created_at, updated_at
`

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &notificationRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18)
	`
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.RecipientID, n.Type, n.Title, n.Message, n.Priority,
		n.ActionURL, n.ActionLabel, n.RelatedObjectType, n.RelatedObjectID,
		n.IsRead, n.ReadAt, n.SendEmail, n.EmailSent, n.EmailSentAt,
		n.ExpiresAt, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("notification", err)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) error {
	query := `
		UPDATE notifications
		SET is_read = $1, read_at = $2, email_sent = $3, email_sent_at = $4,
			updated_at = $5
		WHERE id = $6
	`
	n.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		n.IsRead, n.ReadAt, n.EmailSent, n.EmailSentAt, n.UpdatedAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, p model.Pagination) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	args := []interface{}{recipientID}
	argCount := 2

	if unreadOnly {
		query += " AND is_read = FALSE"
	}

	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`

	var count int
	if err := r.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkAllExpiredRead(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $1, updated_at = $1
		WHERE is_read = FALSE AND expires_at IS NOT NULL AND expires_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired notifications read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

func (r *notificationRepository) CreateEmailLog(ctx context.Context, l *model.EmailLog) error {
	query := `
		INSERT INTO email_logs (` + emailLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.NotificationID, l.RecipientEmail, l.RecipientName, l.Subject, l.Body,
		l.Status, l.ErrorMessage, l.SentAt, l.RetryCount, l.MaxRetries,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}
	return nil
}

func (r *notificationRepository) UpdateEmailLog(ctx context.Context, l *model.EmailLog) error {
	query := `
		UPDATE email_logs
		SET status = $1, error_message = $2, sent_at = $3, retry_count = $4,
			updated_at = $5
		WHERE id = $6
	`
	l.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		l.Status, l.ErrorMessage, l.SentAt, l.RetryCount, l.UpdatedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update email log: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("email log", nil)
	}
	return nil
}

func (r *notificationRepository) GetEmailLog(ctx context.Context, id uuid.UUID) (*model.EmailLog, error) {
	query := `SELECT ` + emailLogColumns + ` FROM email_logs WHERE id = $1`

	var l model.EmailLog
	if err := r.db.GetContext(ctx, &l, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("email log", err)
		}
		return nil, fmt.Errorf("failed to get email log: %w", err)
	}
	return &l, nil
}

func (r *notificationRepository) ListRetryableEmails(ctx context.Context, limit int) ([]*model.EmailLog, error) {
	query := `
		SELECT ` + emailLogColumns + `
		FROM email_logs
		WHERE status = 'failed' AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $1
	`
	if limit <= 0 {
		limit = 100
	}

	var logs []*model.EmailLog
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list retryable emails: %w", err)
	}
	return logs, nil
}

func (r *notificationRepository) GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	query := `
		SELECT user_id, email_appointment_approved, email_appointment_reminder,
			email_request_status, email_certificate_issued, email_system,
			created_at, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`
	var prefs model.NotificationPreference
	if err := r.db.GetContext(ctx, &prefs, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("notification preferences", err)
		}
		return nil, fmt.Errorf("failed to get notification preferences: %w", err)
	}
	return &prefs, nil
}

func (r *notificationRepository) SavePreferences(ctx context.Context, prefs *model.NotificationPreference) error {
	query := `
		INSERT INTO notification_preferences (
			user_id, email_appointment_approved, email_appointment_reminder,
			email_request_status, email_certificate_issued, email_system,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			email_appointment_approved = EXCLUDED.email_appointment_approved,
			email_appointment_reminder = EXCLUDED.email_appointment_reminder,
			email_request_status = EXCLUDED.email_request_status,
			email_certificate_issued = EXCLUDED.email_certificate_issued,
			email_system = EXCLUDED.email_system,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = now
	}
	prefs.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		prefs.UserID, prefs.EmailAppointmentApproved, prefs.EmailAppointmentReminder,
		prefs.EmailRequestStatus, prefs.EmailCertificateIssued, prefs.EmailSystem,
		prefs.CreatedAt, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification preferences: %w", err)
	}
	return nil
}
