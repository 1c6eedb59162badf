package model

import (
	"time"

	"github.com/google/uuid"
)

type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
	PeriodYearly  PeriodType = "yearly"
)

// PeriodStart normalizes a date to the start of its period.
func (p PeriodType) PeriodStart(date time.Time) time.Time {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeekly:
		offset := (int(d.Weekday()) + 6) % 7 // Monday-based week
		return d.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYearly:
		return time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}

// PeriodEnd returns the inclusive last day of the period starting at start.
func (p PeriodType) PeriodEnd(start time.Time) time.Time {
	switch p {
	case PeriodWeekly:
		return start.AddDate(0, 0, 6)
	case PeriodMonthly:
		return start.AddDate(0, 1, -1)
	case PeriodYearly:
		return start.AddDate(1, 0, -1)
	}
	return start
}

// MorbidityStatistic is one ranked diagnosis count for a period, unique per
// (period_type, period_start, diagnosis, record_type).
type MorbidityStatistic struct {
	Base
	PeriodType  PeriodType `db:"period_type" json:"period_type"`
	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`

	Diagnosis  string     `db:"diagnosis" json:"diagnosis"`
	RecordType RecordType `db:"record_type" json:"record_type"`
	CaseCount  int        `db:"case_count" json:"case_count"`
	Percentage float64    `db:"percentage" json:"percentage"`

	GeneratedBy *uuid.UUID `db:"generated_by" json:"generated_by,omitempty"`
}

// ConsultationStatistic is a flat tally for a period, unique per
// (period_type, period_start).
type ConsultationStatistic struct {
	Base
	PeriodType  PeriodType `db:"period_type" json:"period_type"`
	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`

	TotalConsultations   int `db:"total_consultations" json:"total_consultations"`
	MedicalConsultations int `db:"medical_consultations" json:"medical_consultations"`
	DentalConsultations  int `db:"dental_consultations" json:"dental_consultations"`

	TotalAppointments     int `db:"total_appointments" json:"total_appointments"`
	CompletedAppointments int `db:"completed_appointments" json:"completed_appointments"`
	CancelledAppointments int `db:"cancelled_appointments" json:"cancelled_appointments"`
	NoShowAppointments    int `db:"no_show_appointments" json:"no_show_appointments"`

	CertificatesIssued    int `db:"certificates_issued" json:"certificates_issued"`
	PrescriptionsIssued   int `db:"prescriptions_issued" json:"prescriptions_issued"`
	NewStudentsRegistered int `db:"new_students_registered" json:"new_students_registered"`
}

// MorbidityCount is a ranked diagnosis tally with its share of the window
// total.
type MorbidityCount struct {
	Diagnosis  string  `db:"diagnosis" json:"diagnosis"`
	Count      int     `db:"count" json:"count"`
	Percentage float64 `json:"percentage"`
}

// TrendPoint is one day or month bucket of consultation counts.
type TrendPoint struct {
	Bucket  string `json:"bucket"`
	Medical int    `json:"medical"`
	Dental  int    `json:"dental"`
	Total   int    `json:"total"`
}
