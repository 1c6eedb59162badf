package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAppointmentApproved  NotificationType = "appointment_approved"
	NotificationAppointmentReminder  NotificationType = "appointment_reminder"
	NotificationAppointmentCancelled NotificationType = "appointment_cancelled"
	NotificationRequestApproved      NotificationType = "request_approved"
	NotificationRequestDeclined      NotificationType = "request_declined"
	NotificationCertificateIssued    NotificationType = "certificate_issued"
	NotificationPrescriptionIssued   NotificationType = "prescription_issued"
	NotificationSystem               NotificationType = "system"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

type Notification struct {
	Base
	RecipientID uuid.UUID            `db:"recipient_id" json:"recipient_id"`
	Type        NotificationType     `db:"type" json:"type"`
	Title       string               `db:"title" json:"title"`
	Message     string               `db:"message" json:"message"`
	Priority    NotificationPriority `db:"priority" json:"priority"`

	ActionURL   *string `db:"action_url" json:"action_url,omitempty"`
	ActionLabel *string `db:"action_label" json:"action_label,omitempty"`

	RelatedObjectType *string `db:"related_object_type" json:"related_object_type,omitempty"`
	RelatedObjectID   *string `db:"related_object_id" json:"related_object_id,omitempty"`

	IsRead bool       `db:"is_read" json:"is_read"`
	ReadAt *time.Time `db:"read_at" json:"read_at,omitempty"`

	SendEmail   bool       `db:"send_email" json:"send_email"`
	EmailSent   bool       `db:"email_sent" json:"email_sent"`
	EmailSentAt *time.Time `db:"email_sent_at" json:"email_sent_at,omitempty"`

	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// MarkRead is idempotent; ReadAt keeps the first read timestamp.
func (n *Notification) MarkRead(now time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	n.ReadAt = &now
}

func (n *Notification) MarkUnread() {
	n.IsRead = false
	n.ReadAt = nil
}

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "pending"
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusFailed  EmailStatus = "failed"
	EmailStatusBounced EmailStatus = "bounced"
)

const DefaultMaxEmailRetries = 3

// EmailLog records one outbound email and its delivery bookkeeping.
type EmailLog struct {
	Base
	NotificationID *uuid.UUID `db:"notification_id" json:"notification_id,omitempty"`

	RecipientEmail string  `db:"recipient_email" json:"recipient_email"`
	RecipientName  *string `db:"recipient_name" json:"recipient_name,omitempty"`
	Subject        string  `db:"subject" json:"subject"`
	Body           string  `db:"body" json:"body"`

	Status       EmailStatus `db:"status" json:"status"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time  `db:"sent_at" json:"sent_at,omitempty"`

	RetryCount int `db:"retry_count" json:"retry_count"`
	MaxRetries int `db:"max_retries" json:"max_retries"`
}

// CanRetry allows re-sending only for failed logs under the retry budget.
func (l *EmailLog) CanRetry() bool {
	return l.Status == EmailStatusFailed && l.RetryCount < l.MaxRetries
}

// NotificationPreference controls which notices a user receives. A missing
// row means all-enabled; rows are created lazily on first lookup.
type NotificationPreference struct {
	UserID uuid.UUID `db:"user_id" json:"user_id"`

	EmailAppointmentApproved bool `db:"email_appointment_approved" json:"email_appointment_approved"`
	EmailAppointmentReminder bool `db:"email_appointment_reminder" json:"email_appointment_reminder"`
	EmailRequestStatus       bool `db:"email_request_status" json:"email_request_status"`
	EmailCertificateIssued   bool `db:"email_certificate_issued" json:"email_certificate_issued"`
	EmailSystem              bool `db:"email_system" json:"email_system"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AllowsEmail gates an email send by notification type.
func (p *NotificationPreference) AllowsEmail(t NotificationType) bool {
	switch t {
	case NotificationAppointmentApproved, NotificationAppointmentCancelled:
		return p.EmailAppointmentApproved
	case NotificationAppointmentReminder:
		return p.EmailAppointmentReminder
	case NotificationRequestApproved, NotificationRequestDeclined:
		return p.EmailRequestStatus
	case NotificationCertificateIssued, NotificationPrescriptionIssued:
		return p.EmailCertificateIssued
	case NotificationSystem:
		return p.EmailSystem
	}
	return true
}

// DefaultPreferences returns the all-enabled preference row.
func DefaultPreferences(userID uuid.UUID) *NotificationPreference {
	return &NotificationPreference{
		UserID:                   userID,
		EmailAppointmentApproved: true,
		EmailAppointmentReminder: true,
		EmailRequestStatus:       true,
		EmailCertificateIssued:   true,
		EmailSystem:              true,
	}
}

// NotificationEvent is published to the message broker for in-app delivery.
type NotificationEvent struct {
	ID             uuid.UUID        `json:"id"`
	NotificationID uuid.UUID        `json:"notification_id"`
	RecipientID    uuid.UUID        `json:"recipient_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	CreatedAt      time.Time        `json:"created_at"`
}
