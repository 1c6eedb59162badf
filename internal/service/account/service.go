package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	"github.com/tip-mds/clinic-api/pkg/auth"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/security"
	"github.com/tip-mds/clinic-api/pkg/validator"
)

type Service struct {
	repo        repository.UserRepository
	hasher      security.PasswordHasher
	tokens      *auth.TokenService
	logger      *logger.Logger
	emailDomain string
}

func NewService(repo repository.UserRepository, hasher security.PasswordHasher, tokens *auth.TokenService, l *logger.Logger, emailDomain string) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		logger:      l,
		emailDomain: emailDomain,
	}
}

// Register creates a student account. Only institutional addresses are
// accepted; staff accounts are provisioned by an admin instead.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	email := model.NormalizeEmail(req.Email)
	if s.emailDomain != "" && !validator.HasEmailDomain(email, s.emailDomain) {
		return nil, apperrors.BadRequest(fmt.Sprintf("email must be a @%s address", s.emailDomain), nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleStudent,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
	}
	if req.Phone != "" {
		user.PhoneNumber = &req.Phone
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID.String(),
	}).Info("student account registered")
	return user, nil
}

// Login verifies credentials and issues a JWT. Bad email and bad password
// produce the same error.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.repo.GetByEmail(ctx, model.NormalizeEmail(req.Email))
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(nil)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is deactivated")
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(nil)
	}

	token, err := s.tokens.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &model.LoginResponse{Token: token, User: user}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.repo.Get(ctx, id)
}

// CreateStaff provisions a doctor or admin account, with an optional
// doctor profile.
func (s *Service) CreateStaff(ctx context.Context, req *model.RegisterRequest, role model.Role, profile *model.DoctorProfile) (*model.User, error) {
	if !role.IsStaff() {
		return nil, apperrors.BadRequest("role must be doctor or admin", nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        model.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
	}
	if req.Phone != "" {
		user.PhoneNumber = &req.Phone
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	if role == model.RoleDoctor && profile != nil {
		profile.UserID = user.ID
		if err := s.repo.CreateDoctorProfile(ctx, profile); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *Service) GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	return s.repo.GetDoctorProfile(ctx, userID)
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, profile *model.DoctorProfile) error {
	return s.repo.UpdateDoctorProfile(ctx, profile)
}

// Deactivate keeps the row but blocks future logins.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	user.IsActive = false
	return s.repo.Update(ctx, user)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*model.User, error) {
	return s.repo.List(ctx, model.RoleDoctor)
}
