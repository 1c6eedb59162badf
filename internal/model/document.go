package model

import (
	"time"

	"github.com/google/uuid"
)

type TemplateType string

const (
	TemplateMedicalCertificate TemplateType = "medical_certificate"
	TemplateDentalCertificate  TemplateType = "dental_certificate"
	TemplateMedicalClearance   TemplateType = "medical_clearance"
	TemplateHealthCertificate  TemplateType = "health_certificate"
	TemplatePrescription       TemplateType = "prescription"
	TemplateExcuseLetter       TemplateType = "excuse_letter"
)

// Template is an HTML document skeleton with {{variable}} placeholders.
type Template struct {
	Base
	Name        string       `db:"name" json:"name"`
	Type        TemplateType `db:"type" json:"type"`
	Description *string      `db:"description" json:"description,omitempty"`
	HTML        string       `db:"html" json:"html"`
	CSS         *string      `db:"css" json:"css,omitempty"`
	FooterText  *string      `db:"footer_text" json:"footer_text,omitempty"`
	IsActive    bool         `db:"is_active" json:"is_active"`
	IsDefault   bool         `db:"is_default" json:"is_default"`
	CreatedBy   *uuid.UUID   `db:"created_by" json:"created_by,omitempty"`
}

// TemplateVariables is the fixed substitution set available to templates.
var TemplateVariables = []string{
	"student_name", "student_id", "program", "year_level",
	"date_issued", "valid_until",
	"doctor_name", "doctor_license",
	"diagnosis", "prescription", "remarks", "purpose",
	"certificate_number", "prescription_number",
	"school_name",
}

type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusExpired CertificateStatus = "expired"
	CertificateStatusRevoked CertificateStatus = "revoked"
)

type IssuedCertificate struct {
	Base
	CertificateNumber string     `db:"certificate_number" json:"certificate_number"`
	StudentID         uuid.UUID  `db:"student_id" json:"student_id"`
	DoctorID          *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	TemplateID        *uuid.UUID `db:"template_id" json:"template_id,omitempty"`

	Title     string  `db:"title" json:"title"`
	Purpose   *string `db:"purpose" json:"purpose,omitempty"`
	Diagnosis *string `db:"diagnosis" json:"diagnosis,omitempty"`
	Remarks   *string `db:"remarks" json:"remarks,omitempty"`

	DateIssued time.Time  `db:"date_issued" json:"date_issued"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`

	Status           CertificateStatus `db:"status" json:"status"`
	RevokedAt        *time.Time        `db:"revoked_at" json:"revoked_at,omitempty"`
	RevocationReason *string           `db:"revocation_reason" json:"revocation_reason,omitempty"`
}

// IsValid requires an active certificate whose validity window, if any,
// has not passed.
func (c *IssuedCertificate) IsValid(today time.Time) bool {
	if c.Status != CertificateStatusActive {
		return false
	}
	if c.ValidUntil == nil {
		return true
	}
	return !truncateDay(today).After(*c.ValidUntil)
}

type Prescription struct {
	Base
	PrescriptionNumber string     `db:"prescription_number" json:"prescription_number"`
	StudentID          uuid.UUID  `db:"student_id" json:"student_id"`
	DoctorID           *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`

	Diagnosis    string  `db:"diagnosis" json:"diagnosis"`
	Medications  string  `db:"medications" json:"medications"`
	Instructions *string `db:"instructions" json:"instructions,omitempty"`

	DateIssued time.Time  `db:"date_issued" json:"date_issued"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
}

type IssueCertificateRequest struct {
	StudentID  uuid.UUID  `json:"student_id" binding:"required"`
	TemplateID *uuid.UUID `json:"template_id"`
	Title      string     `json:"title" binding:"required,max=200"`
	Purpose    *string    `json:"purpose"`
	Diagnosis  *string    `json:"diagnosis"`
	Remarks    *string    `json:"remarks"`
	ValidUntil *time.Time `json:"valid_until"`
}

type IssuePrescriptionRequest struct {
	StudentID    uuid.UUID  `json:"student_id" binding:"required"`
	Diagnosis    string     `json:"diagnosis" binding:"required"`
	Medications  string     `json:"medications" binding:"required"`
	Instructions *string    `json:"instructions"`
	ValidUntil   *time.Time `json:"valid_until"`
}
