package appointment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	"github.com/tip-mds/clinic-api/internal/service/notification"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

// maxTicketAttempts bounds regeneration on ticket number collisions. The
// suffix space makes more than a couple of retries vanishingly unlikely.
const maxTicketAttempts = 100

type Service struct {
	repo     repository.AppointmentRepository
	notifier *notification.Service
	metrics  *metrics.Metrics
	logger   *logger.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	nowFn func() time.Time
}

func NewService(repo repository.AppointmentRepository, notifier *notification.Service, m *metrics.Metrics, l *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		metrics:  m,
		logger:   l,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn:    time.Now,
	}
}

func (s *Service) newTicketNumber(year int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.NewReferenceNumber(model.TicketPrefix, year, model.TicketSuffixLen, s.rng)
}

// Create books a pending appointment. The clinic is closed on weekends and
// a preferred date in the past is meaningless, so both are rejected.
func (s *Service) Create(ctx context.Context, studentID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	date, err := time.Parse("2006-01-02", req.PreferredDate)
	if err != nil {
		return nil, apperrors.BadRequest("preferred_date must be YYYY-MM-DD", err)
	}

	now := s.nowFn()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return nil, apperrors.BadRequest("preferred date cannot be in the past", nil)
	}
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, apperrors.BadRequest("the clinic is closed on weekends", nil)
	}

	apt := &model.Appointment{
		StudentID:              studentID,
		ServiceType:            req.ServiceType,
		PreferredDate:          date,
		PreferredTimeSlot:      req.PreferredTimeSlot,
		Reason:                 req.Reason,
		EmergencyContactName:   req.EmergencyContactName,
		EmergencyContactNumber: req.EmergencyContactNumber,
		Status:                 model.AppointmentStatusPending,
	}

	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		apt.TicketNumber = s.newTicketNumber(now.Year())
		err := s.repo.Create(ctx, apt)
		if err == nil {
			return apt, nil
		}
		if !apperrors.IsCode(err, apperrors.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to allocate a unique ticket number after %d attempts", maxTicketAttempts)
}

func (s *Service) Get(ctx context.Context, id, requesterID uuid.UUID, requesterRole model.Role) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requesterRole.IsStaff() && apt.StudentID != requesterID {
		return nil, apperrors.NotFound("appointment", nil)
	}
	return apt, nil
}

func (s *Service) GetByTicket(ctx context.Context, ticket string) (*model.Appointment, error) {
	return s.repo.GetByTicket(ctx, ticket)
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters, requesterID uuid.UUID, requesterRole model.Role) ([]*model.Appointment, error) {
	if !requesterRole.IsStaff() {
		filters.StudentID = requesterID
	}
	return s.repo.List(ctx, filters)
}

// Approve moves a pending appointment to approved and notifies the student.
func (s *Service) Approve(ctx context.Context, id, approverID uuid.UUID, req *model.ApproveAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(apt.Status, model.AppointmentStatusApproved); err != nil {
		return nil, err
	}

	now := s.nowFn()
	from := apt.Status
	apt.Status = model.AppointmentStatusApproved
	apt.ApprovedBy = &approverID
	apt.ApprovedAt = &now
	if req.DoctorID != nil {
		apt.DoctorID = req.DoctorID
	}
	if req.ScheduledAt != nil {
		if req.ScheduledAt.Before(now) {
			return nil, apperrors.BadRequest("scheduled time cannot be in the past", nil)
		}
		apt.ScheduledAt = req.ScheduledAt
	}
	if req.Notes != nil {
		apt.DoctorNotes = req.Notes
	}

	if err := s.transition(ctx, apt, from); err != nil {
		return nil, err
	}

	objType := "appointment"
	objID := apt.ID.String()
	if _, err := s.notifier.Notify(ctx, notification.Notice{
		RecipientID: apt.StudentID,
		Type:        model.NotificationAppointmentApproved,
		Title:       fmt.Sprintf("Appointment %s approved", apt.TicketNumber),
		Message: fmt.Sprintf("Your appointment %s on %s (%s) has been approved. Please arrive 10 minutes early and bring your student ID.",
			apt.TicketNumber, apt.PreferredDate.Format("January 2, 2006"), apt.PreferredTimeSlot),
		Priority:          model.PriorityHigh,
		RelatedObjectType: &objType,
		RelatedObjectID:   &objID,
		SendEmail:         true,
	}); err != nil {
		s.logger.Error(err, "failed to notify appointment approval")
	}
	return apt, nil
}

// Cancel is available to the owning student while the appointment is still
// open, and to staff at any open stage. Staff cancellations notify the
// student.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, actorRole model.Role, reason string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actorRole.IsStaff() && apt.StudentID != actorID {
		return nil, apperrors.NotFound("appointment", nil)
	}
	if err := s.checkTransition(apt.Status, model.AppointmentStatusCancelled); err != nil {
		return nil, err
	}

	now := s.nowFn()
	from := apt.Status
	apt.Status = model.AppointmentStatusCancelled
	apt.CancelledAt = &now
	apt.CancelledBy = &actorID
	apt.CancellationReason = &reason

	if err := s.transition(ctx, apt, from); err != nil {
		return nil, err
	}

	if actorRole.IsStaff() {
		objType := "appointment"
		objID := apt.ID.String()
		if _, err := s.notifier.Notify(ctx, notification.Notice{
			RecipientID:       apt.StudentID,
			Type:              model.NotificationAppointmentCancelled,
			Title:             fmt.Sprintf("Appointment %s cancelled", apt.TicketNumber),
			Message:           fmt.Sprintf("Your appointment %s has been cancelled by the clinic. Reason: %s", apt.TicketNumber, reason),
			Priority:          model.PriorityHigh,
			RelatedObjectType: &objType,
			RelatedObjectID:   &objID,
			SendEmail:         true,
		}); err != nil {
			s.logger.Error(err, "failed to notify appointment cancellation")
		}
	}
	return apt, nil
}

// Complete closes out an approved appointment after the visit.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes *string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(apt.Status, model.AppointmentStatusCompleted); err != nil {
		return nil, err
	}

	now := s.nowFn()
	from := apt.Status
	apt.Status = model.AppointmentStatusCompleted
	apt.CompletedAt = &now
	if notes != nil {
		apt.DoctorNotes = notes
	}
	if err := s.transition(ctx, apt, from); err != nil {
		return nil, err
	}
	return apt, nil
}

// MarkNoShow records a student who did not turn up for an approved slot.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(apt.Status, model.AppointmentStatusNoShow); err != nil {
		return nil, err
	}

	from := apt.Status
	apt.Status = model.AppointmentStatusNoShow
	if err := s.transition(ctx, apt, from); err != nil {
		return nil, err
	}
	return apt, nil
}

func (s *Service) checkTransition(from, to model.AppointmentStatus) error {
	if !from.CanTransition(to) {
		return apperrors.Conflict(fmt.Sprintf("cannot move appointment from %s to %s", from, to), nil)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus) error {
	moved, err := s.repo.Transition(ctx, apt, from)
	if err != nil {
		return err
	}
	if !moved {
		return apperrors.Conflict("appointment status changed concurrently", nil)
	}
	s.metrics.AppointmentTransitions.WithLabelValues(string(apt.Status)).Inc()
	return nil
}

// SendReminders notifies students with approved appointments on the given
// date, once per appointment, and returns how many reminders went out.
func (s *Service) SendReminders(ctx context.Context, date time.Time) (int, error) {
	due, err := s.repo.ListForReminder(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("failed to list appointments for reminder: %w", err)
	}

	sent := 0
	for _, apt := range due {
		objType := "appointment"
		objID := apt.ID.String()
		if _, err := s.notifier.Notify(ctx, notification.Notice{
			RecipientID: apt.StudentID,
			Type:        model.NotificationAppointmentReminder,
			Title:       fmt.Sprintf("Reminder: appointment %s", apt.TicketNumber),
			Message: fmt.Sprintf("This is a reminder for your appointment %s on %s (%s).",
				apt.TicketNumber, apt.PreferredDate.Format("January 2, 2006"), apt.PreferredTimeSlot),
			RelatedObjectType: &objType,
			RelatedObjectID:   &objID,
			SendEmail:         true,
		}); err != nil {
			s.logger.Error(err, "failed to send appointment reminder")
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, apt.ID); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"appointment_id": apt.ID.String(),
			}).Error(err, "failed to mark reminder sent")
			continue
		}
		sent++
	}
	return sent, nil
}
