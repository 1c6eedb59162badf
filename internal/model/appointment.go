package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusApproved  AppointmentStatus = "approved"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

// appointmentTransitions is the single authoritative transition table.
// Anything not listed here is an illegal transition, including
// no_show from pending.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:  {AppointmentStatusApproved, AppointmentStatusCancelled},
	AppointmentStatusApproved: {AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow},
}

// CanTransition reports whether moving from s to next is legal.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, t := range appointmentTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s AppointmentStatus) IsTerminal() bool {
	return len(appointmentTransitions[s]) == 0
}

type ServiceType string

const (
	ServiceMedicalConsultation ServiceType = "medical_consultation"
	ServiceDentalCleaning      ServiceType = "dental_cleaning"
	ServiceDentalFilling       ServiceType = "dental_filling"
	ServiceDentalExtraction    ServiceType = "dental_extraction"
	ServiceMedicalClearance    ServiceType = "medical_clearance"
	ServiceHealthCertificate   ServiceType = "health_certificate"
	ServiceVaccination         ServiceType = "vaccination"
	ServicePhysicalExam        ServiceType = "physical_exam"
	ServiceFollowUp            ServiceType = "follow_up"
	ServiceEmergency           ServiceType = "emergency"
	ServiceOther               ServiceType = "other"
)

type TimeSlot string

const (
	TimeSlotMorning   TimeSlot = "morning"
	TimeSlotAfternoon TimeSlot = "afternoon"
)

type Appointment struct {
	Base
	TicketNumber string     `db:"ticket_number" json:"ticket_number"`
	StudentID    uuid.UUID  `db:"student_id" json:"student_id"`
	DoctorID     *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`

	ServiceType       ServiceType `db:"service_type" json:"service_type"`
	PreferredDate     time.Time   `db:"preferred_date" json:"preferred_date"`
	PreferredTimeSlot TimeSlot    `db:"preferred_time_slot" json:"preferred_time_slot"`
	ScheduledAt       *time.Time  `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Reason            string      `db:"reason" json:"reason"`
	DoctorNotes       *string     `db:"doctor_notes" json:"doctor_notes,omitempty"`

	EmergencyContactName   string `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactNumber string `db:"emergency_contact_number" json:"emergency_contact_number"`

	Status             AppointmentStatus `db:"status" json:"status"`
	ApprovedBy         *uuid.UUID        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	ReminderSent bool `db:"reminder_sent" json:"reminder_sent"`
}

// IsUpcoming reports an approved appointment whose preferred date has not
// passed.
func (a *Appointment) IsUpcoming(today time.Time) bool {
	return a.Status == AppointmentStatusApproved && !a.PreferredDate.Before(truncateDay(today))
}

// IsOverdue reports a pending or approved appointment whose preferred date
// has already passed.
func (a *Appointment) IsOverdue(today time.Time) bool {
	if a.Status != AppointmentStatusPending && a.Status != AppointmentStatusApproved {
		return false
	}
	return a.PreferredDate.Before(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

type CreateAppointmentRequest struct {
	ServiceType            ServiceType `json:"service_type" binding:"required,oneof=medical_consultation dental_cleaning dental_filling dental_extraction medical_clearance health_certificate vaccination physical_exam follow_up emergency other"`
	PreferredDate          string      `json:"preferred_date" binding:"required,datetime=2006-01-02"`
	PreferredTimeSlot      TimeSlot    `json:"preferred_time_slot" binding:"required,oneof=morning afternoon"`
	Reason                 string      `json:"reason" binding:"required,max=1000"`
	EmergencyContactName   string      `json:"emergency_contact_name" binding:"required,max=200"`
	EmergencyContactNumber string      `json:"emergency_contact_number" binding:"required,max=20"`
}

type ApproveAppointmentRequest struct {
	DoctorID    *uuid.UUID `json:"doctor_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Notes       *string    `json:"notes"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type AppointmentFilters struct {
	StudentID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
	DateRange
}
