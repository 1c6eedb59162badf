package request

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	"github.com/tip-mds/clinic-api/internal/service/notification"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

type Service struct {
	repo        repository.UpdateRequestRepository
	studentRepo repository.StudentRepository
	notifier    *notification.Service
	metrics     *metrics.Metrics
	logger      *logger.Logger
	nowFn       func() time.Time
}

func NewService(repo repository.UpdateRequestRepository, studentRepo repository.StudentRepository, notifier *notification.Service, m *metrics.Metrics, l *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		studentRepo: studentRepo,
		notifier:    notifier,
		metrics:     m,
		logger:      l,
		nowFn:       time.Now,
	}
}

// Create files an update request for one profile field. The field must
// belong to the closed updatable set, the proposed value must parse through
// the field's typed setter, and only one pending request per field is
// allowed at a time.
func (s *Service) Create(ctx context.Context, studentUserID uuid.UUID, req *model.CreateUpdateRequestRequest) (*model.RecordUpdateRequest, error) {
	if !model.IsUpdatableField(req.FieldName) {
		return nil, apperrors.BadRequest(fmt.Sprintf("field %q cannot be changed through an update request", req.FieldName), nil)
	}
	field := model.UpdatableField(req.FieldName)

	profile, err := s.studentRepo.Get(ctx, studentUserID)
	if err != nil {
		return nil, err
	}

	// Dry-run the typed setter so a malformed value is rejected at
	// submission, not at review.
	scratch := *profile
	if err := scratch.ApplyField(field, req.NewValue); err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	oldValue, err := profile.FieldValue(field)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	if oldValue == req.NewValue {
		return nil, apperrors.BadRequest("new value is identical to the current value", nil)
	}

	pending, err := s.repo.List(ctx, studentUserID, model.UpdateRequestStatusPending)
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		if p.FieldName == field && !p.IsExpired(s.nowFn()) {
			return nil, apperrors.Conflict(fmt.Sprintf("a pending request for %q already exists", field), nil)
		}
	}

	now := s.nowFn()
	ur := &model.RecordUpdateRequest{
		StudentID:  studentUserID,
		FieldName:  field,
		OldValue:   oldValue,
		NewValue:   req.NewValue,
		Reason:     req.Reason,
		Document:   req.Document,
		Status:     model.UpdateRequestStatusPending,
		ExpiryDate: now.Add(model.UpdateRequestTTL),
	}
	if err := s.repo.Create(ctx, ur); err != nil {
		return nil, err
	}
	return ur, nil
}

func (s *Service) Get(ctx context.Context, id, requesterID uuid.UUID, requesterRole model.Role) (*model.RecordUpdateRequest, error) {
	ur, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requesterRole.IsStaff() && ur.StudentID != requesterID {
		return nil, apperrors.NotFound("update request", nil)
	}
	return ur, nil
}

func (s *Service) List(ctx context.Context, studentID uuid.UUID, status model.UpdateRequestStatus) ([]*model.RecordUpdateRequest, error) {
	return s.repo.List(ctx, studentID, status)
}

// Review resolves a pending request. Approval applies the proposed value to
// the profile before the resolution is recorded; a request past its expiry
// is expired instead of reviewed.
func (s *Service) Review(ctx context.Context, id, reviewerID uuid.UUID, approve bool, notes string) (*model.RecordUpdateRequest, error) {
	ur, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ur.Status != model.UpdateRequestStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("request is already %s", ur.Status), nil)
	}

	now := s.nowFn()
	if ur.IsExpired(now) {
		if _, err := s.expireOne(ctx, ur, now); err != nil {
			return nil, err
		}
		return nil, apperrors.Conflict("request has expired and can no longer be reviewed", nil)
	}

	if approve {
		profile, err := s.studentRepo.Get(ctx, ur.StudentID)
		if err != nil {
			return nil, err
		}
		if err := profile.ApplyField(ur.FieldName, ur.NewValue); err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		if err := s.studentRepo.Update(ctx, profile); err != nil {
			return nil, err
		}
		ur.Status = model.UpdateRequestStatusApproved
	} else {
		ur.Status = model.UpdateRequestStatusDeclined
	}
	ur.ReviewedBy = &reviewerID
	ur.ReviewedAt = &now
	if notes != "" {
		ur.ReviewNotes = &notes
	}

	moved, err := s.repo.Resolve(ctx, ur)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperrors.Conflict("request was reviewed concurrently", nil)
	}
	s.metrics.RequestResolutions.WithLabelValues(string(ur.Status)).Inc()

	s.notifyResolution(ctx, ur)
	return ur, nil
}

func (s *Service) notifyResolution(ctx context.Context, ur *model.RecordUpdateRequest) {
	nType := model.NotificationRequestDeclined
	title := fmt.Sprintf("Update request for %s declined", ur.FieldName)
	priority := model.PriorityNormal
	if ur.Status == model.UpdateRequestStatusApproved {
		nType = model.NotificationRequestApproved
		title = fmt.Sprintf("Update request for %s approved", ur.FieldName)
		priority = model.PriorityHigh
	}

	message := fmt.Sprintf("Your request to change %s has been %s.", ur.FieldName, ur.Status)
	if ur.ReviewNotes != nil {
		message += " Notes: " + *ur.ReviewNotes
	}

	objType := "record_update_request"
	objID := ur.ID.String()
	if _, err := s.notifier.Notify(ctx, notification.Notice{
		RecipientID:       ur.StudentID,
		Type:              nType,
		Title:             title,
		Message:           message,
		Priority:          priority,
		RelatedObjectType: &objType,
		RelatedObjectID:   &objID,
		SendEmail:         true,
	}); err != nil {
		s.logger.Error(err, "failed to notify update request resolution")
	}
}

func (s *Service) expireOne(ctx context.Context, ur *model.RecordUpdateRequest, now time.Time) (bool, error) {
	ur.Status = model.UpdateRequestStatusExpired
	ur.ReviewedAt = &now
	moved, err := s.repo.Resolve(ctx, ur)
	if err != nil {
		return false, err
	}
	if moved {
		s.metrics.RequestResolutions.WithLabelValues(string(model.UpdateRequestStatusExpired)).Inc()
	}
	return moved, nil
}

// ExpireStale sweeps pending requests past their review window and returns
// how many were expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.nowFn()
	stale, err := s.repo.ListPendingExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale requests: %w", err)
	}

	expired := 0
	for _, ur := range stale {
		moved, err := s.expireOne(ctx, ur, now)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"request_id": ur.ID.String(),
			}).Error(err, "failed to expire update request")
			continue
		}
		if !moved {
			continue
		}
		expired++

		objType := "record_update_request"
		objID := ur.ID.String()
		if _, err := s.notifier.Notify(ctx, notification.Notice{
			RecipientID:       ur.StudentID,
			Type:              model.NotificationSystem,
			Title:             fmt.Sprintf("Update request for %s expired", ur.FieldName),
			Message:           "Your update request was not reviewed within 7 days and has expired. You may submit it again.",
			RelatedObjectType: &objType,
			RelatedObjectID:   &objID,
			SendEmail:         false,
		}); err != nil {
			s.logger.Error(err, "failed to notify request expiry")
		}
	}
	return expired, nil
}
