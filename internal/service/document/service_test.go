package document

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/service/notification"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

type fakeDocumentRepo struct {
	templates     map[uuid.UUID]*model.Template
	certsByID     map[uuid.UUID]*model.IssuedCertificate
	certsByNumber map[string]*model.IssuedCertificate
	rxByID        map[uuid.UUID]*model.Prescription
	rxByNumber    map[string]*model.Prescription
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		templates:     map[uuid.UUID]*model.Template{},
		certsByID:     map[uuid.UUID]*model.IssuedCertificate{},
		certsByNumber: map[string]*model.IssuedCertificate{},
		rxByID:        map[uuid.UUID]*model.Prescription{},
		rxByNumber:    map[string]*model.Prescription{},
	}
}

func (r *fakeDocumentRepo) CreateTemplate(_ context.Context, t *model.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	r.templates[t.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) GetTemplate(_ context.Context, id uuid.UUID) (*model.Template, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, apperrors.NotFound("template", nil)
	}
	cp := *tpl
	return &cp, nil
}

func (r *fakeDocumentRepo) GetDefaultTemplate(_ context.Context, templateType model.TemplateType) (*model.Template, error) {
	for _, tpl := range r.templates {
		if tpl.Type == templateType && tpl.IsDefault && tpl.IsActive {
			cp := *tpl
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("template", nil)
}

func (r *fakeDocumentRepo) ListTemplates(_ context.Context, templateType model.TemplateType) ([]*model.Template, error) {
	var out []*model.Template
	for _, tpl := range r.templates {
		if templateType == "" || tpl.Type == templateType {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) CreateCertificate(_ context.Context, c *model.IssuedCertificate) error {
	if _, taken := r.certsByNumber[c.CertificateNumber]; taken {
		return apperrors.Conflict("certificate number already exists", nil)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.certsByID[c.ID] = &cp
	r.certsByNumber[c.CertificateNumber] = &cp
	return nil
}

func (r *fakeDocumentRepo) GetCertificate(_ context.Context, id uuid.UUID) (*model.IssuedCertificate, error) {
	c, ok := r.certsByID[id]
	if !ok {
		return nil, apperrors.NotFound("certificate", nil)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeDocumentRepo) GetCertificateByNumber(_ context.Context, number string) (*model.IssuedCertificate, error) {
	c, ok := r.certsByNumber[number]
	if !ok {
		return nil, apperrors.NotFound("certificate", nil)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeDocumentRepo) UpdateCertificateStatus(_ context.Context, c *model.IssuedCertificate, from model.CertificateStatus) (bool, error) {
	stored, ok := r.certsByID[c.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	cp := *c
	r.certsByID[c.ID] = &cp
	r.certsByNumber[c.CertificateNumber] = &cp
	return true, nil
}

func (r *fakeDocumentRepo) ListCertificates(_ context.Context, studentID uuid.UUID) ([]*model.IssuedCertificate, error) {
	var out []*model.IssuedCertificate
	for _, c := range r.certsByID {
		if c.StudentID == studentID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) ListActiveExpiredCertificates(_ context.Context, today time.Time) ([]*model.IssuedCertificate, error) {
	var out []*model.IssuedCertificate
	for _, c := range r.certsByID {
		if c.Status == model.CertificateStatusActive && c.ValidUntil != nil && c.ValidUntil.Before(today) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) CountCertificatesBetween(_ context.Context, _, _ time.Time) (int, error) {
	return len(r.certsByID), nil
}

func (r *fakeDocumentRepo) CreatePrescription(_ context.Context, p *model.Prescription) error {
	if _, taken := r.rxByNumber[p.PrescriptionNumber]; taken {
		return apperrors.Conflict("prescription number already exists", nil)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.rxByID[p.ID] = &cp
	r.rxByNumber[p.PrescriptionNumber] = &cp
	return nil
}

func (r *fakeDocumentRepo) GetPrescription(_ context.Context, id uuid.UUID) (*model.Prescription, error) {
	p, ok := r.rxByID[id]
	if !ok {
		return nil, apperrors.NotFound("prescription", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeDocumentRepo) ListPrescriptions(_ context.Context, studentID uuid.UUID) ([]*model.Prescription, error) {
	var out []*model.Prescription
	for _, p := range r.rxByID {
		if p.StudentID == studentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) CountPrescriptionsBetween(_ context.Context, _, _ time.Time) (int, error) {
	return len(r.rxByID), nil
}

type fakeStudentRepo struct {
	profiles map[uuid.UUID]*model.StudentProfile
}

func (r *fakeStudentRepo) Create(_ context.Context, p *model.StudentProfile) error {
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

func (r *fakeStudentRepo) Get(_ context.Context, userID uuid.UUID) (*model.StudentProfile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, apperrors.NotFound("student profile", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeStudentRepo) GetByStudentID(_ context.Context, _ string) (*model.StudentProfile, error) {
	return nil, apperrors.NotFound("student profile", nil)
}

func (r *fakeStudentRepo) Update(_ context.Context, p *model.StudentProfile) error {
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

func (r *fakeStudentRepo) List(_ context.Context, _ model.Pagination) ([]*model.StudentProfile, error) {
	return nil, nil
}

func (r *fakeStudentRepo) CountCreatedBetween(_ context.Context, _, _ time.Time) (int, error) {
	return 0, nil
}

type fakeUserRepo struct {
	users          map[uuid.UUID]*model.User
	doctorProfiles map[uuid.UUID]*model.DoctorProfile
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, apperrors.NotFound("user", nil)
}

func (r *fakeUserRepo) Update(_ context.Context, _ *model.User) error { return nil }

func (r *fakeUserRepo) List(_ context.Context, _ model.Role) ([]*model.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) CreateDoctorProfile(_ context.Context, dp *model.DoctorProfile) error {
	cp := *dp
	r.doctorProfiles[dp.UserID] = &cp
	return nil
}

func (r *fakeUserRepo) GetDoctorProfile(_ context.Context, userID uuid.UUID) (*model.DoctorProfile, error) {
	dp, ok := r.doctorProfiles[userID]
	if !ok {
		return nil, apperrors.NotFound("doctor profile", nil)
	}
	cp := *dp
	return &cp, nil
}

func (r *fakeUserRepo) UpdateDoctorProfile(_ context.Context, _ *model.DoctorProfile) error {
	return nil
}

type stubNotificationRepo struct {
	created []*model.Notification
}

func (r *stubNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	n.ID = uuid.New()
	r.created = append(r.created, n)
	return nil
}

func (r *stubNotificationRepo) Get(_ context.Context, _ uuid.UUID) (*model.Notification, error) {
	return nil, apperrors.NotFound("notification", nil)
}

func (r *stubNotificationRepo) Update(_ context.Context, _ *model.Notification) error { return nil }

func (r *stubNotificationRepo) List(_ context.Context, _ uuid.UUID, _ bool, _ model.Pagination) ([]*model.Notification, error) {
	return nil, nil
}

func (r *stubNotificationRepo) CountUnread(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

func (r *stubNotificationRepo) MarkAllExpiredRead(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (r *stubNotificationRepo) CreateEmailLog(_ context.Context, l *model.EmailLog) error {
	l.ID = uuid.New()
	return nil
}

func (r *stubNotificationRepo) UpdateEmailLog(_ context.Context, _ *model.EmailLog) error { return nil }

func (r *stubNotificationRepo) GetEmailLog(_ context.Context, _ uuid.UUID) (*model.EmailLog, error) {
	return nil, apperrors.NotFound("email log", nil)
}

func (r *stubNotificationRepo) ListRetryableEmails(_ context.Context, _ int) ([]*model.EmailLog, error) {
	return nil, nil
}

func (r *stubNotificationRepo) GetPreferences(_ context.Context, _ uuid.UUID) (*model.NotificationPreference, error) {
	return nil, apperrors.NotFound("notification preferences", nil)
}

func (r *stubNotificationRepo) SavePreferences(_ context.Context, _ *model.NotificationPreference) error {
	return nil
}

type stubSender struct{ sent int }

func (s *stubSender) Send(_ context.Context, _, _, _, _ string) error {
	s.sent++
	return nil
}

type stubBroker struct{}

func (stubBroker) Publish(_ context.Context, _ string, _ interface{}) error { return nil }

func (stubBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) { return nil, nil }

func (stubBroker) Close() error { return nil }

type stubRenderer struct {
	lastHTML string
}

func (r *stubRenderer) Render(_ context.Context, html string) ([]byte, error) {
	r.lastHTML = html
	return []byte("%PDF-1.4 stub"), nil
}

type fixture struct {
	svc       *Service
	repo      *fakeDocumentRepo
	students  *fakeStudentRepo
	users     *fakeUserRepo
	notifRepo *stubNotificationRepo
	renderer  *stubRenderer

	studentID uuid.UUID
	doctorID  uuid.UUID
}

var docNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeDocumentRepo()
	students := &fakeStudentRepo{profiles: map[uuid.UUID]*model.StudentProfile{}}
	users := &fakeUserRepo{
		users:          map[uuid.UUID]*model.User{},
		doctorProfiles: map[uuid.UUID]*model.DoctorProfile{},
	}
	notifRepo := &stubNotificationRepo{}
	m := metrics.NewWithRegistry("test", prometheus.NewRegistry())
	l := &logger.Logger{ZL: zerolog.Nop()}
	notifier := notification.NewService(notifRepo, users, &stubSender{}, stubBroker{}, m, l)
	renderer := &stubRenderer{}

	svc := NewService(repo, students, users, notifier, renderer, l, "Technological Institute of the Philippines")
	svc.nowFn = func() time.Time { return docNow }
	svc.rng = rand.New(rand.NewSource(1))

	f := &fixture{
		svc:       svc,
		repo:      repo,
		students:  students,
		users:     users,
		notifRepo: notifRepo,
		renderer:  renderer,
		studentID: uuid.New(),
		doctorID:  uuid.New(),
	}

	users.users[f.studentID] = &model.User{
		Base:      model.Base{ID: f.studentID},
		Email:     "juan.delacruz@tip.edu.ph",
		Role:      model.RoleStudent,
		FirstName: "Juan",
		LastName:  "Dela Cruz",
		IsActive:  true,
	}
	students.profiles[f.studentID] = &model.StudentProfile{
		UserID:    f.studentID,
		StudentID: "2021-01234",
		Program:   "BS Computer Engineering",
		YearLevel: "3",
	}
	users.users[f.doctorID] = &model.User{
		Base:      model.Base{ID: f.doctorID},
		Email:     "doc@tip.edu.ph",
		Role:      model.RoleDoctor,
		FirstName: "Ana",
		LastName:  "Reyes",
		IsActive:  true,
	}
	license := "PRC-0123456"
	users.doctorProfiles[f.doctorID] = &model.DoctorProfile{
		UserID:        f.doctorID,
		LicenseNumber: &license,
		Department:    "Medical",
	}
	return f
}

func certificateRequest(studentID uuid.UUID) *model.IssueCertificateRequest {
	purpose := "OJT requirement"
	return &model.IssueCertificateRequest{
		StudentID: studentID,
		Title:     "Medical Certificate",
		Purpose:   &purpose,
	}
}

func TestIssueCertificate(t *testing.T) {
	f := newFixture(t)

	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)
	assert.Regexp(t, `^CERT-2025-[A-Z0-9]{8}$`, cert.CertificateNumber)
	assert.Equal(t, model.CertificateStatusActive, cert.Status)
	assert.Equal(t, docNow, cert.DateIssued)
	require.NotNil(t, cert.DoctorID)
	assert.Equal(t, f.doctorID, *cert.DoctorID)

	require.Len(t, f.notifRepo.created, 1)
	assert.Equal(t, model.NotificationCertificateIssued, f.notifRepo.created[0].Type)
	assert.Equal(t, f.studentID, f.notifRepo.created[0].RecipientID)
}

func TestIssueCertificateUnknownStudent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(uuid.New()))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	assert.Empty(t, f.notifRepo.created)
}

func TestIssueCertificateUnknownTemplate(t *testing.T) {
	f := newFixture(t)

	req := certificateRequest(f.studentID)
	missing := uuid.New()
	req.TemplateID = &missing

	_, err := f.svc.IssueCertificate(context.Background(), f.doctorID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestIssueCertificateRetriesOnNumberCollision(t *testing.T) {
	f := newFixture(t)

	// Pre-claim the first number the seeded generator will produce.
	colliding := model.NewReferenceNumber(model.CertificatePrefix, 2025, model.CertificateSuffixLen, rand.New(rand.NewSource(1)))
	taken := &model.IssuedCertificate{
		CertificateNumber: colliding,
		StudentID:         uuid.New(),
		Title:             "Medical Certificate",
		DateIssued:        docNow,
		Status:            model.CertificateStatusActive,
	}
	require.NoError(t, f.repo.CreateCertificate(context.Background(), taken))

	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)
	assert.NotEqual(t, colliding, cert.CertificateNumber)
}

func TestIssuePrescription(t *testing.T) {
	f := newFixture(t)

	rx, err := f.svc.IssuePrescription(context.Background(), f.doctorID, &model.IssuePrescriptionRequest{
		StudentID:   f.studentID,
		Diagnosis:   "Acute pharyngitis",
		Medications: "Amoxicillin 500mg capsule, 3x daily for 7 days",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^RX-2025-[A-Z0-9]{6}$`, rx.PrescriptionNumber)
	assert.Equal(t, docNow, rx.DateIssued)

	require.Len(t, f.notifRepo.created, 1)
	assert.Equal(t, model.NotificationPrescriptionIssued, f.notifRepo.created[0].Type)
}

func TestGetCertificateOwnership(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)

	// The owning student and any staff member can read it.
	_, err = f.svc.GetCertificate(context.Background(), cert.ID, f.studentID, model.RoleStudent)
	assert.NoError(t, err)
	_, err = f.svc.GetCertificate(context.Background(), cert.ID, f.doctorID, model.RoleDoctor)
	assert.NoError(t, err)

	// Another student sees not-found, not forbidden.
	_, err = f.svc.GetCertificate(context.Background(), cert.ID, uuid.New(), model.RoleStudent)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestVerifyCertificate(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)

	got, valid, err := f.svc.VerifyCertificate(context.Background(), cert.CertificateNumber)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, cert.ID, got.ID)

	_, _, err = f.svc.VerifyCertificate(context.Background(), "CERT-2025-NOSUCHNO")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestVerifyCertificatePastValidity(t *testing.T) {
	f := newFixture(t)

	req := certificateRequest(f.studentID)
	lastWeek := docNow.AddDate(0, 0, -7)
	req.ValidUntil = &lastWeek

	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, req)
	require.NoError(t, err)

	_, valid, err := f.svc.VerifyCertificate(context.Background(), cert.CertificateNumber)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestRevokeCertificate(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)

	revoked, err := f.svc.RevokeCertificate(context.Background(), cert.ID, "issued to the wrong student")
	require.NoError(t, err)
	assert.Equal(t, model.CertificateStatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)
	require.NotNil(t, revoked.RevocationReason)
	assert.Equal(t, "issued to the wrong student", *revoked.RevocationReason)

	// A revoked certificate no longer verifies.
	_, valid, err := f.svc.VerifyCertificate(context.Background(), cert.CertificateNumber)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = f.svc.RevokeCertificate(context.Background(), cert.ID, "again")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestExpireCertificates(t *testing.T) {
	f := newFixture(t)

	stale := certificateRequest(f.studentID)
	lastWeek := docNow.AddDate(0, 0, -7)
	stale.ValidUntil = &lastWeek
	expired, err := f.svc.IssueCertificate(context.Background(), f.doctorID, stale)
	require.NoError(t, err)

	// Open-ended certificates never expire.
	kept, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)

	count, err := f.svc.ExpireCertificates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.repo.GetCertificate(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertificateStatusExpired, got.Status)

	got, err = f.repo.GetCertificate(context.Background(), kept.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertificateStatusActive, got.Status)

	count, err = f.svc.ExpireCertificates(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetPrescriptionOwnership(t *testing.T) {
	f := newFixture(t)
	rx, err := f.svc.IssuePrescription(context.Background(), f.doctorID, &model.IssuePrescriptionRequest{
		StudentID:   f.studentID,
		Diagnosis:   "Tension headache",
		Medications: "Paracetamol 500mg tablet as needed",
	})
	require.NoError(t, err)

	_, err = f.svc.GetPrescription(context.Background(), rx.ID, f.studentID, model.RoleStudent)
	assert.NoError(t, err)

	_, err = f.svc.GetPrescription(context.Background(), rx.ID, uuid.New(), model.RoleStudent)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestCertificatePDF(t *testing.T) {
	f := newFixture(t)

	css := "body { font-family: serif; }"
	footer := "Issued by {{school_name}}"
	tpl := &model.Template{
		Name:       "Default Medical Certificate",
		Type:       model.TemplateMedicalCertificate,
		HTML:       "<h1>{{school_name}}</h1><p>This certifies that {{student_name}} ({{student_id}}) was examined on {{date_issued}}. Ref: {{certificate_number}}</p>",
		CSS:        &css,
		FooterText: &footer,
		IsActive:   true,
		IsDefault:  true,
	}
	require.NoError(t, f.repo.CreateTemplate(context.Background(), tpl))

	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)

	out, err := f.svc.CertificatePDF(context.Background(), cert)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	html := f.renderer.lastHTML
	assert.Contains(t, html, "Juan Dela Cruz")
	assert.Contains(t, html, "2021-01234")
	assert.Contains(t, html, "March 10, 2025")
	assert.Contains(t, html, cert.CertificateNumber)
	assert.Contains(t, html, css)
	assert.Contains(t, html, "<footer>Issued by Technological Institute of the Philippines</footer>")
	assert.NotContains(t, html, "{{")
}

func TestCertificatePDFExplicitTemplate(t *testing.T) {
	f := newFixture(t)

	tpl := &model.Template{
		Name:     "Dental Clearance",
		Type:     model.TemplateDentalCertificate,
		HTML:     "<p>{{student_name}} is cleared. Attending: {{doctor_name}} ({{doctor_license}})</p>",
		IsActive: true,
	}
	require.NoError(t, f.repo.CreateTemplate(context.Background(), tpl))

	req := certificateRequest(f.studentID)
	req.TemplateID = &tpl.ID
	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, req)
	require.NoError(t, err)

	_, err = f.svc.CertificatePDF(context.Background(), cert)
	require.NoError(t, err)
	assert.Contains(t, f.renderer.lastHTML, "Ana Reyes")
	assert.Contains(t, f.renderer.lastHTML, "PRC-0123456")
}

func TestCertificatePDFWithoutTemplate(t *testing.T) {
	f := newFixture(t)

	cert, err := f.svc.IssueCertificate(context.Background(), f.doctorID, certificateRequest(f.studentID))
	require.NoError(t, err)

	// No default template configured.
	_, err = f.svc.CertificatePDF(context.Background(), cert)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
