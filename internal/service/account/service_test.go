package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/pkg/auth"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/security"
)

type fakeUserRepo struct {
	users    map[uuid.UUID]*model.User
	profiles map[uuid.UUID]*model.DoctorProfile
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    map[uuid.UUID]*model.User{},
		profiles: map[uuid.UUID]*model.DoctorProfile{},
	}
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return apperrors.Conflict("email already registered", nil)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

func (r *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, role model.Role) ([]*model.User, error) {
	var out []*model.User
	for _, u := range r.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) CreateDoctorProfile(_ context.Context, p *model.DoctorProfile) error {
	r.profiles[p.UserID] = p
	return nil
}

func (r *fakeUserRepo) GetDoctorProfile(_ context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, apperrors.NotFound("doctor profile", nil)
	}
	return p, nil
}

func (r *fakeUserRepo) UpdateDoctorProfile(_ context.Context, p *model.DoctorProfile) error {
	r.profiles[p.UserID] = p
	return nil
}

func newService(repo *fakeUserRepo) *Service {
	hasher := security.NewBcryptHasher(bcryptTestCost)
	tokens := auth.NewTokenService("test-secret", time.Hour)
	l := &logger.Logger{ZL: zerolog.Nop()}
	return NewService(repo, hasher, tokens, l, "tip.edu.ph")
}

// bcryptTestCost keeps hashing fast in tests.
const bcryptTestCost = 4

func registerReq() *model.RegisterRequest {
	return &model.RegisterRequest{
		Email:     "Juan.DelaCruz@TIP.edu.ph",
		Password:  "correct-horse",
		FirstName: "Juan",
		LastName:  "Dela Cruz",
	}
}

func TestRegister(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newService(repo)

	user, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)
	assert.Equal(t, "juan.delacruz@tip.edu.ph", user.Email)
	assert.Equal(t, model.RoleStudent, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)
}

func TestRegisterRejectsForeignDomain(t *testing.T) {
	svc := newService(newFakeUserRepo())

	req := registerReq()
	req.Email = "juan@gmail.com"
	_, err := svc.Register(context.Background(), req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerReq())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestLogin(t *testing.T) {
	svc := newService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "juan.delacruz@tip.edu.ph",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "juan.delacruz@tip.edu.ph", resp.User.Email)
}

func TestLoginSameErrorForBadEmailAndBadPassword(t *testing.T) {
	svc := newService(newFakeUserRepo())

	_, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	_, badEmail := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "nobody@tip.edu.ph",
		Password: "correct-horse",
	})
	_, badPassword := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "juan.delacruz@tip.edu.ph",
		Password: "wrong",
	})

	// Neither response reveals which part was wrong.
	assert.True(t, apperrors.IsCode(badEmail, apperrors.ErrUnauthorized))
	assert.True(t, apperrors.IsCode(badPassword, apperrors.ErrUnauthorized))
	assert.Equal(t, badEmail.Error(), badPassword.Error())
}

func TestLoginDeactivatedAccount(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newService(repo)

	user, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), user.ID))

	_, err = svc.Login(context.Background(), &model.LoginRequest{
		Email:    "juan.delacruz@tip.edu.ph",
		Password: "correct-horse",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestCreateStaff(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newService(repo)

	license := "PRC-0123456"
	req := &model.RegisterRequest{
		Email:     "dr.santos@tip.edu.ph",
		Password:  "stethoscope1",
		FirstName: "Ana",
		LastName:  "Santos",
	}
	user, err := svc.CreateStaff(context.Background(), req, model.RoleDoctor, &model.DoctorProfile{
		LicenseNumber:  &license,
		Specialization: "General Medicine",
		Department:     "Medical",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, user.Role)

	profile, err := svc.GetDoctorProfile(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.LicenseNumber)
	assert.Equal(t, license, *profile.LicenseNumber)
}

func TestCreateStaffRejectsStudentRole(t *testing.T) {
	svc := newService(newFakeUserRepo())

	_, err := svc.CreateStaff(context.Background(), registerReq(), model.RoleStudent, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}
