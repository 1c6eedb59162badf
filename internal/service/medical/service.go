package medical

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
)

type Service struct {
	repo        repository.MedicalRecordRepository
	studentRepo repository.StudentRepository
	logger      *logger.Logger
	nowFn       func() time.Time
}

func NewService(repo repository.MedicalRecordRepository, studentRepo repository.StudentRepository, l *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		studentRepo: studentRepo,
		logger:      l,
		nowFn:       time.Now,
	}
}

// Create files a visit record against a student. Records filed by the
// attending doctor are approved immediately; only records entering through
// a non-doctor path would start pending.
func (s *Service) Create(ctx context.Context, req *model.CreateMedicalRecordRequest, doctorID uuid.UUID) (*model.MedicalRecord, error) {
	if _, err := s.studentRepo.Get(ctx, req.StudentID); err != nil {
		return nil, err
	}

	visitDate, err := time.Parse("2006-01-02", req.VisitDate)
	if err != nil {
		return nil, apperrors.BadRequest("visit_date must be YYYY-MM-DD", err)
	}
	if visitDate.After(s.nowFn()) {
		return nil, apperrors.BadRequest("visit date cannot be in the future", nil)
	}

	rec := &model.MedicalRecord{
		StudentID:       req.StudentID,
		DoctorID:        &doctorID,
		RecordType:      req.RecordType,
		VisitDate:       visitDate,
		ChiefComplaint:  req.ChiefComplaint,
		Diagnosis:       req.Diagnosis,
		Procedure:       req.Procedure,
		Prescription:    req.Prescription,
		Remarks:         req.Remarks,
		BloodPressure:   req.BloodPressure,
		Temperature:     req.Temperature,
		PulseRate:       req.PulseRate,
		RespiratoryRate: req.RespiratoryRate,
		Status:          model.RecordStatusApproved,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get enforces ownership for students: a student may read only their own
// records, and only approved ones.
func (s *Service) Get(ctx context.Context, id, requesterID uuid.UUID, requesterRole model.Role) (*model.MedicalRecord, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requesterRole.IsStaff() {
		if rec.StudentID != requesterID || rec.Status != model.RecordStatusApproved {
			return nil, apperrors.NotFound("medical record", nil)
		}
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, filters *model.MedicalRecordFilters, requesterID uuid.UUID, requesterRole model.Role) ([]*model.MedicalRecord, error) {
	if !requesterRole.IsStaff() {
		filters.StudentID = requesterID
		filters.Status = model.RecordStatusApproved
	}
	return s.repo.List(ctx, filters)
}

// Update edits a still-pending record's clinical content.
func (s *Service) Update(ctx context.Context, rec *model.MedicalRecord) error {
	return s.repo.Update(ctx, rec)
}

// Approve moves pending to approved with a compare-and-swap; a concurrent
// reviewer losing the race gets a conflict.
func (s *Service) Approve(ctx context.Context, id, reviewerID uuid.UUID) (*model.MedicalRecord, error) {
	return s.resolve(ctx, id, reviewerID, model.RecordStatusApproved)
}

func (s *Service) Decline(ctx context.Context, id, reviewerID uuid.UUID) (*model.MedicalRecord, error) {
	return s.resolve(ctx, id, reviewerID, model.RecordStatusDeclined)
}

func (s *Service) resolve(ctx context.Context, id, reviewerID uuid.UUID, to model.RecordStatus) (*model.MedicalRecord, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.RecordStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("record is already %s", rec.Status), nil)
	}

	now := s.nowFn()
	moved, err := s.repo.UpdateStatus(ctx, id, model.RecordStatusPending, to, &reviewerID, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperrors.Conflict("record was reviewed concurrently", nil)
	}

	rec.Status = to
	rec.ApprovedBy = &reviewerID
	rec.ApprovedAt = &now
	s.logger.WithFields(map[string]interface{}{
		"record_id": id.String(),
		"status":    string(to),
	}).Info("medical record reviewed")
	return rec, nil
}
