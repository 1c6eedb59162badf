package model

import (
	"time"

	"github.com/google/uuid"
)

type RecordType string

const (
	RecordTypeMedical RecordType = "medical"
	RecordTypeDental  RecordType = "dental"
)

type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusApproved RecordStatus = "approved"
	RecordStatusDeclined RecordStatus = "declined"
)

type MedicalRecord struct {
	Base
	StudentID uuid.UUID  `db:"student_id" json:"student_id"`
	DoctorID  *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`

	RecordType     RecordType `db:"record_type" json:"record_type"`
	VisitDate      time.Time  `db:"visit_date" json:"visit_date"`
	ChiefComplaint string     `db:"chief_complaint" json:"chief_complaint"`
	Diagnosis      string     `db:"diagnosis" json:"diagnosis"`
	Procedure      *string    `db:"procedure" json:"procedure,omitempty"`
	Prescription   *string    `db:"prescription" json:"prescription,omitempty"`
	Remarks        *string    `db:"remarks" json:"remarks,omitempty"`

	BloodPressure   *string  `db:"blood_pressure" json:"blood_pressure,omitempty"`
	Temperature     *float64 `db:"temperature" json:"temperature,omitempty"`
	PulseRate       *int     `db:"pulse_rate" json:"pulse_rate,omitempty"`
	RespiratoryRate *int     `db:"respiratory_rate" json:"respiratory_rate,omitempty"`

	Status     RecordStatus `db:"status" json:"status"`
	ApprovedBy *uuid.UUID   `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt *time.Time   `db:"approved_at" json:"approved_at,omitempty"`
}

type CreateMedicalRecordRequest struct {
	StudentID      uuid.UUID  `json:"student_id" binding:"required"`
	RecordType     RecordType `json:"record_type" binding:"required,oneof=medical dental"`
	VisitDate      string     `json:"visit_date" binding:"required,datetime=2006-01-02"`
	ChiefComplaint string     `json:"chief_complaint" binding:"required"`
	Diagnosis      string     `json:"diagnosis" binding:"required"`
	Procedure      *string    `json:"procedure"`
	Prescription   *string    `json:"prescription"`
	Remarks        *string    `json:"remarks"`

	BloodPressure   *string  `json:"blood_pressure"`
	Temperature     *float64 `json:"temperature"`
	PulseRate       *int     `json:"pulse_rate"`
	RespiratoryRate *int     `json:"respiratory_rate"`
}

type MedicalRecordFilters struct {
	StudentID  uuid.UUID
	RecordType RecordType
	Status     RecordStatus
	DateRange
}
