package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		List(ctx context.Context, role model.Role) ([]*model.User, error)

		CreateDoctorProfile(ctx context.Context, profile *model.DoctorProfile) error
		GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error)
		UpdateDoctorProfile(ctx context.Context, profile *model.DoctorProfile) error
	}

	StudentRepository interface {
		Create(ctx context.Context, profile *model.StudentProfile) error
		Get(ctx context.Context, userID uuid.UUID) (*model.StudentProfile, error)
		GetByStudentID(ctx context.Context, studentID string) (*model.StudentProfile, error)
		Update(ctx context.Context, profile *model.StudentProfile) error
		List(ctx context.Context, p model.Pagination) ([]*model.StudentProfile, error)
		CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		Update(ctx context.Context, record *model.MedicalRecord) error
		// UpdateStatus performs a compare-and-swap on the status column and
		// reports whether a row moved.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.RecordStatus, approvedBy *uuid.UUID, at time.Time) (bool, error)
		List(ctx context.Context, filters *model.MedicalRecordFilters) ([]*model.MedicalRecord, error)
		CountApprovedBetween(ctx context.Context, recordType model.RecordType, from, to time.Time) (int, error)
		DiagnosisCounts(ctx context.Context, recordType model.RecordType, from, to time.Time) ([]*model.MorbidityCount, error)
		DailyCounts(ctx context.Context, from, to time.Time) (map[string]map[model.RecordType]int, error)
		MonthlyCounts(ctx context.Context, from, to time.Time) (map[string]map[model.RecordType]int, error)
	}

	UpdateRequestRepository interface {
		Create(ctx context.Context, req *model.RecordUpdateRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.RecordUpdateRequest, error)
		// Resolve moves a pending request to a terminal status; the guard on
		// the source state makes concurrent reviews race-safe.
		Resolve(ctx context.Context, req *model.RecordUpdateRequest) (bool, error)
		List(ctx context.Context, studentID uuid.UUID, status model.UpdateRequestStatus) ([]*model.RecordUpdateRequest, error)
		ListPendingExpired(ctx context.Context, now time.Time) ([]*model.RecordUpdateRequest, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, apt *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		GetByTicket(ctx context.Context, ticket string) (*model.Appointment, error)
		// Transition writes the full bookkeeping of a status change guarded
		// by the expected source status; false means the row was not in the
		// source state anymore.
		Transition(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus) (bool, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		ListForReminder(ctx context.Context, date time.Time) ([]*model.Appointment, error)
		MarkReminderSent(ctx context.Context, id uuid.UUID) error
		CountByStatusBetween(ctx context.Context, from, to time.Time) (map[model.AppointmentStatus]int, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		Update(ctx context.Context, n *model.Notification) error
		List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, p model.Pagination) ([]*model.Notification, error)
		CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
		MarkAllExpiredRead(ctx context.Context, now time.Time) (int, error)

		CreateEmailLog(ctx context.Context, l *model.EmailLog) error
		UpdateEmailLog(ctx context.Context, l *model.EmailLog) error
		GetEmailLog(ctx context.Context, id uuid.UUID) (*model.EmailLog, error)
		ListRetryableEmails(ctx context.Context, limit int) ([]*model.EmailLog, error)

		GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error)
		SavePreferences(ctx context.Context, prefs *model.NotificationPreference) error
	}

	DocumentRepository interface {
		CreateTemplate(ctx context.Context, t *model.Template) error
		GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error)
		GetDefaultTemplate(ctx context.Context, templateType model.TemplateType) (*model.Template, error)
		ListTemplates(ctx context.Context, templateType model.TemplateType) ([]*model.Template, error)

		CreateCertificate(ctx context.Context, c *model.IssuedCertificate) error
		GetCertificate(ctx context.Context, id uuid.UUID) (*model.IssuedCertificate, error)
		GetCertificateByNumber(ctx context.Context, number string) (*model.IssuedCertificate, error)
		UpdateCertificateStatus(ctx context.Context, c *model.IssuedCertificate, from model.CertificateStatus) (bool, error)
		ListCertificates(ctx context.Context, studentID uuid.UUID) ([]*model.IssuedCertificate, error)
		ListActiveExpiredCertificates(ctx context.Context, today time.Time) ([]*model.IssuedCertificate, error)
		CountCertificatesBetween(ctx context.Context, from, to time.Time) (int, error)

		CreatePrescription(ctx context.Context, p *model.Prescription) error
		GetPrescription(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		ListPrescriptions(ctx context.Context, studentID uuid.UUID) ([]*model.Prescription, error)
		CountPrescriptionsBetween(ctx context.Context, from, to time.Time) (int, error)
	}

	StatisticRepository interface {
		UpsertMorbidity(ctx context.Context, s *model.MorbidityStatistic) error
		UpsertConsultation(ctx context.Context, s *model.ConsultationStatistic) error
		GetConsultation(ctx context.Context, periodType model.PeriodType, periodStart time.Time) (*model.ConsultationStatistic, error)
		ListMorbidity(ctx context.Context, periodType model.PeriodType, periodStart time.Time) ([]*model.MorbidityStatistic, error)
		ListConsultation(ctx context.Context, periodType model.PeriodType, from, to time.Time) ([]*model.ConsultationStatistic, error)
	}
)
