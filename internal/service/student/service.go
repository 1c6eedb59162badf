package student

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/validator"
)

type Service struct {
	repo  repository.StudentRepository
	nowFn func() time.Time
}

func NewService(repo repository.StudentRepository) *Service {
	return &Service{repo: repo, nowFn: time.Now}
}

// SaveProfile creates or replaces the student's own profile and recomputes
// the completion flag.
func (s *Service) SaveProfile(ctx context.Context, profile *model.StudentProfile) (*model.StudentProfile, error) {
	if err := s.validate(profile); err != nil {
		return nil, err
	}
	profile.CheckCompletion()

	existing, err := s.repo.Get(ctx, profile.UserID)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		if err := s.repo.Create(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}

	// The student number is immutable once set.
	if existing.StudentID != "" && existing.StudentID != profile.StudentID {
		return nil, apperrors.BadRequest("student number cannot be changed", nil)
	}
	profile.IsVerified = existing.IsVerified
	profile.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) validate(profile *model.StudentProfile) error {
	if profile.ContactNumber != "" && !validator.IsPhone(profile.ContactNumber) {
		return apperrors.BadRequest("contact number is not a valid phone number", nil)
	}
	if profile.EmergencyContactNumber != "" && !validator.IsPhone(profile.EmergencyContactNumber) {
		return apperrors.BadRequest("emergency contact number is not a valid phone number", nil)
	}
	if !profile.DateOfBirth.IsZero() && profile.DateOfBirth.After(s.nowFn()) {
		return apperrors.BadRequest("date of birth cannot be in the future", nil)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*model.StudentProfile, error) {
	return s.repo.Get(ctx, userID)
}

func (s *Service) GetByStudentID(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	return s.repo.GetByStudentID(ctx, studentID)
}

func (s *Service) List(ctx context.Context, p model.Pagination) ([]*model.StudentProfile, error) {
	return s.repo.List(ctx, p)
}

// Verify is a staff action confirming the profile against registrar data.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID) error {
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !profile.IsComplete {
		return apperrors.BadRequest("cannot verify an incomplete profile", nil)
	}
	profile.IsVerified = true
	if err := s.repo.Update(ctx, profile); err != nil {
		return fmt.Errorf("failed to verify profile: %w", err)
	}
	return nil
}
