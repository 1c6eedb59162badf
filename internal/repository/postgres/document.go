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

const templateColumns = `
	id, name, type, description, html, css, footer_text,
	is_active, is_default, created_by, created_at, updated_at
`

const certificateColumns = `
	id, certificate_number, student_id, doctor_id, template_id,
	title, purpose, diagnosis, remarks, date_issued, valid_until,
	status, revoked_at, revocation_reason, created_at, updated_at
`

const prescriptionColumns = `
	id, prescription_number, student_id, doctor_id,
	diagnosis, medications, instructions, date_issued, valid_until,
	created_at, updated_at
`

type documentRepository struct {
	BaseRepository
}

func NewDocumentRepository(db *sqlx.DB) repository.DocumentRepository {
	return &documentRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *documentRepository) CreateTemplate(ctx context.Context, t *model.Template) error {
	query := `
		INSERT INTO document_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// A new default displaces the previous one for its type.
		if t.IsDefault {
			unset := `UPDATE document_templates SET is_default = FALSE, updated_at = $1 WHERE type = $2 AND is_default = TRUE`
			if _, err := tx.ExecContext(ctx, unset, t.CreatedAt, t.Type); err != nil {
				return fmt.Errorf("failed to unset default template: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, query,
			t.ID, t.Name, t.Type, t.Description, t.HTML, t.CSS, t.FooterText,
			t.IsActive, t.IsDefault, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		return nil
	})
}

func (r *documentRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM document_templates WHERE id = $1`

	var t model.Template
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("template", err)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

func (r *documentRepository) GetDefaultTemplate(ctx context.Context, templateType model.TemplateType) (*model.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM document_templates
		WHERE type = $1 AND is_active = TRUE AND is_default = TRUE
		LIMIT 1
	`
	var t model.Template
	if err := r.db.GetContext(ctx, &t, query, templateType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("default template", err)
		}
		return nil, fmt.Errorf("failed to get default template: %w", err)
	}
	return &t, nil
}

func (r *documentRepository) ListTemplates(ctx context.Context, templateType model.TemplateType) ([]*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM document_templates WHERE 1=1`
	args := []interface{}{}

	if templateType != "" {
		query += " AND type = $1"
		args = append(args, templateType)
	}
	query += " ORDER BY type ASC, name ASC"

	var templates []*model.Template
	if err := r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *documentRepository) CreateCertificate(ctx context.Context, c *model.IssuedCertificate) error {
	query := `
		INSERT INTO issued_certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.CertificateNumber, c.StudentID, c.DoctorID, c.TemplateID,
		c.Title, c.Purpose, c.Diagnosis, c.Remarks, c.DateIssued, c.ValidUntil,
		c.Status, c.RevokedAt, c.RevocationReason, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Conflict("certificate number already exists", err)
		}
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	return nil
}

func (r *documentRepository) GetCertificate(ctx context.Context, id uuid.UUID) (*model.IssuedCertificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM issued_certificates WHERE id = $1`

	var c model.IssuedCertificate
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("certificate", err)
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return &c, nil
}

func (r *documentRepository) GetCertificateByNumber(ctx context.Context, number string) (*model.IssuedCertificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM issued_certificates WHERE certificate_number = $1`

	var c model.IssuedCertificate
	if err := r.db.GetContext(ctx, &c, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("certificate", err)
		}
		return nil, fmt.Errorf("failed to get certificate by number: %w", err)
	}
	return &c, nil
}

func (r *documentRepository) UpdateCertificateStatus(ctx context.Context, c *model.IssuedCertificate, from model.CertificateStatus) (bool, error) {
	query := `
		UPDATE issued_certificates
		SET status = $1, revoked_at = $2, revocation_reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	c.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		c.Status, c.RevokedAt, c.RevocationReason, c.UpdatedAt, c.ID, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update certificate status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *documentRepository) ListCertificates(ctx context.Context, studentID uuid.UUID) ([]*model.IssuedCertificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM issued_certificates WHERE 1=1`
	args := []interface{}{}

	if studentID != uuid.Nil {
		query += " AND student_id = $1"
		args = append(args, studentID)
	}
	query += " ORDER BY date_issued DESC, created_at DESC"

	var certs []*model.IssuedCertificate
	if err := r.db.SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, nil
}

func (r *documentRepository) ListActiveExpiredCertificates(ctx context.Context, today time.Time) ([]*model.IssuedCertificate, error) {
	query := `
		SELECT ` + certificateColumns + `
		FROM issued_certificates
		WHERE status = 'active' AND valid_until IS NOT NULL AND valid_until < $1
		ORDER BY valid_until ASC
	`
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var certs []*model.IssuedCertificate
	if err := r.db.SelectContext(ctx, &certs, query, day); err != nil {
		return nil, fmt.Errorf("failed to list expired certificates: %w", err)
	}
	return certs, nil
}

func (r *documentRepository) CountCertificatesBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM issued_certificates WHERE date_issued >= $1 AND date_issued <= $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, from, to); err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}
	return count, nil
}

func (r *documentRepository) CreatePrescription(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.PrescriptionNumber, p.StudentID, p.DoctorID,
		p.Diagnosis, p.Medications, p.Instructions, p.DateIssued, p.ValidUntil,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Conflict("prescription number already exists", err)
		}
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *documentRepository) GetPrescription(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1`

	var p model.Prescription
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("prescription", err)
		}
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return &p, nil
}

func (r *documentRepository) ListPrescriptions(ctx context.Context, studentID uuid.UUID) ([]*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE 1=1`
	args := []interface{}{}

	if studentID != uuid.Nil {
		query += " AND student_id = $1"
		args = append(args, studentID)
	}
	query += " ORDER BY date_issued DESC, created_at DESC"

	var prescriptions []*model.Prescription
	if err := r.db.SelectContext(ctx, &prescriptions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

func (r *documentRepository) CountPrescriptionsBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM prescriptions WHERE date_issued >= $1 AND date_issued <= $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, from, to); err != nil {
		return 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}
	return count, nil
}
