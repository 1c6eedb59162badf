package document

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasttemplate"

	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/pdf"
	"github.com/tip-mds/clinic-api/internal/repository"
	"github.com/tip-mds/clinic-api/internal/service/notification"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
)

const maxNumberAttempts = 100

type Service struct {
	repo        repository.DocumentRepository
	studentRepo repository.StudentRepository
	userRepo    repository.UserRepository
	notifier    *notification.Service
	renderer    pdf.Renderer
	logger      *logger.Logger
	schoolName  string

	mu    sync.Mutex
	rng   *rand.Rand
	nowFn func() time.Time
}

func NewService(repo repository.DocumentRepository, studentRepo repository.StudentRepository, userRepo repository.UserRepository, notifier *notification.Service, renderer pdf.Renderer, l *logger.Logger, schoolName string) *Service {
	return &Service{
		repo:        repo,
		studentRepo: studentRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		renderer:    renderer,
		logger:      l,
		schoolName:  schoolName,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn:       time.Now,
	}
}

func (s *Service) newNumber(prefix string, suffixLen int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.NewReferenceNumber(prefix, s.nowFn().Year(), suffixLen, s.rng)
}

// IssueCertificate creates an active certificate with a fresh number and
// notifies the student.
func (s *Service) IssueCertificate(ctx context.Context, doctorID uuid.UUID, req *model.IssueCertificateRequest) (*model.IssuedCertificate, error) {
	if _, err := s.studentRepo.Get(ctx, req.StudentID); err != nil {
		return nil, err
	}
	if req.TemplateID != nil {
		if _, err := s.repo.GetTemplate(ctx, *req.TemplateID); err != nil {
			return nil, err
		}
	}

	now := s.nowFn()
	cert := &model.IssuedCertificate{
		StudentID:  req.StudentID,
		DoctorID:   &doctorID,
		TemplateID: req.TemplateID,
		Title:      req.Title,
		Purpose:    req.Purpose,
		Diagnosis:  req.Diagnosis,
		Remarks:    req.Remarks,
		DateIssued: now,
		ValidUntil: req.ValidUntil,
		Status:     model.CertificateStatusActive,
	}

	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		cert.CertificateNumber = s.newNumber(model.CertificatePrefix, model.CertificateSuffixLen)
		err = s.repo.CreateCertificate(ctx, cert)
		if err == nil {
			s.notifyIssued(ctx, cert.StudentID, model.NotificationCertificateIssued,
				fmt.Sprintf("Certificate %s issued", cert.CertificateNumber),
				fmt.Sprintf("Your %s has been issued with reference number %s.", cert.Title, cert.CertificateNumber),
				"certificate", cert.ID)
			return cert, nil
		}
		if !apperrors.IsCode(err, apperrors.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to allocate a unique certificate number after %d attempts", maxNumberAttempts)
}

// IssuePrescription creates a prescription with a fresh number and notifies
// the student.
func (s *Service) IssuePrescription(ctx context.Context, doctorID uuid.UUID, req *model.IssuePrescriptionRequest) (*model.Prescription, error) {
	if _, err := s.studentRepo.Get(ctx, req.StudentID); err != nil {
		return nil, err
	}

	now := s.nowFn()
	rx := &model.Prescription{
		StudentID:    req.StudentID,
		DoctorID:     &doctorID,
		Diagnosis:    req.Diagnosis,
		Medications:  req.Medications,
		Instructions: req.Instructions,
		DateIssued:   now,
		ValidUntil:   req.ValidUntil,
	}

	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		rx.PrescriptionNumber = s.newNumber(model.PrescriptionPrefix, model.PrescriptionSuffixLen)
		err = s.repo.CreatePrescription(ctx, rx)
		if err == nil {
			s.notifyIssued(ctx, rx.StudentID, model.NotificationPrescriptionIssued,
				fmt.Sprintf("Prescription %s issued", rx.PrescriptionNumber),
				fmt.Sprintf("A prescription has been issued for you with reference number %s.", rx.PrescriptionNumber),
				"prescription", rx.ID)
			return rx, nil
		}
		if !apperrors.IsCode(err, apperrors.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to allocate a unique prescription number after %d attempts", maxNumberAttempts)
}

func (s *Service) notifyIssued(ctx context.Context, studentID uuid.UUID, nType model.NotificationType, title, message, objType string, objID uuid.UUID) {
	id := objID.String()
	if _, err := s.notifier.Notify(ctx, notification.Notice{
		RecipientID:       studentID,
		Type:              nType,
		Title:             title,
		Message:           message,
		RelatedObjectType: &objType,
		RelatedObjectID:   &id,
		SendEmail:         true,
	}); err != nil {
		s.logger.Error(err, "failed to notify document issuance")
	}
}

func (s *Service) GetCertificate(ctx context.Context, id, requesterID uuid.UUID, requesterRole model.Role) (*model.IssuedCertificate, error) {
	cert, err := s.repo.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requesterRole.IsStaff() && cert.StudentID != requesterID {
		return nil, apperrors.NotFound("certificate", nil)
	}
	return cert, nil
}

// VerifyCertificate is the public lookup behind a printed reference number.
// It reveals validity, not clinical content.
func (s *Service) VerifyCertificate(ctx context.Context, number string) (*model.IssuedCertificate, bool, error) {
	cert, err := s.repo.GetCertificateByNumber(ctx, number)
	if err != nil {
		return nil, false, err
	}
	return cert, cert.IsValid(s.nowFn()), nil
}

func (s *Service) ListCertificates(ctx context.Context, studentID uuid.UUID) ([]*model.IssuedCertificate, error) {
	return s.repo.ListCertificates(ctx, studentID)
}

// RevokeCertificate moves an active certificate to revoked. Revoking an
// already terminal certificate is a conflict.
func (s *Service) RevokeCertificate(ctx context.Context, id uuid.UUID, reason string) (*model.IssuedCertificate, error) {
	cert, err := s.repo.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != model.CertificateStatusActive {
		return nil, apperrors.Conflict(fmt.Sprintf("certificate is already %s", cert.Status), nil)
	}

	now := s.nowFn()
	cert.Status = model.CertificateStatusRevoked
	cert.RevokedAt = &now
	cert.RevocationReason = &reason

	moved, err := s.repo.UpdateCertificateStatus(ctx, cert, model.CertificateStatusActive)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperrors.Conflict("certificate status changed concurrently", nil)
	}
	return cert, nil
}

// ExpireCertificates sweeps active certificates past their validity window
// and returns how many were expired.
func (s *Service) ExpireCertificates(ctx context.Context) (int, error) {
	today := s.nowFn()
	stale, err := s.repo.ListActiveExpiredCertificates(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired certificates: %w", err)
	}

	expired := 0
	for _, cert := range stale {
		cert.Status = model.CertificateStatusExpired
		moved, err := s.repo.UpdateCertificateStatus(ctx, cert, model.CertificateStatusActive)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"certificate_id": cert.ID.String(),
			}).Error(err, "failed to expire certificate")
			continue
		}
		if moved {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) GetPrescription(ctx context.Context, id, requesterID uuid.UUID, requesterRole model.Role) (*model.Prescription, error) {
	rx, err := s.repo.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requesterRole.IsStaff() && rx.StudentID != requesterID {
		return nil, apperrors.NotFound("prescription", nil)
	}
	return rx, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, studentID uuid.UUID) ([]*model.Prescription, error) {
	return s.repo.ListPrescriptions(ctx, studentID)
}

func (s *Service) CreateTemplate(ctx context.Context, t *model.Template) error {
	return s.repo.CreateTemplate(ctx, t)
}

func (s *Service) ListTemplates(ctx context.Context, templateType model.TemplateType) ([]*model.Template, error) {
	return s.repo.ListTemplates(ctx, templateType)
}

// CertificatePDF renders the certificate through its template (or the
// default for its type) into A4 PDF bytes.
func (s *Service) CertificatePDF(ctx context.Context, cert *model.IssuedCertificate) ([]byte, error) {
	tpl, err := s.templateFor(ctx, cert)
	if err != nil {
		return nil, err
	}

	vars, err := s.certificateVars(ctx, cert)
	if err != nil {
		return nil, err
	}

	html := s.renderHTML(tpl, vars)
	out, err := s.renderer.Render(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("failed to render certificate pdf: %w", err)
	}
	return out, nil
}

func (s *Service) templateFor(ctx context.Context, cert *model.IssuedCertificate) (*model.Template, error) {
	if cert.TemplateID != nil {
		return s.repo.GetTemplate(ctx, *cert.TemplateID)
	}
	return s.repo.GetDefaultTemplate(ctx, model.TemplateMedicalCertificate)
}

func (s *Service) certificateVars(ctx context.Context, cert *model.IssuedCertificate) (map[string]interface{}, error) {
	profile, err := s.studentRepo.Get(ctx, cert.StudentID)
	if err != nil {
		return nil, err
	}
	studentUser, err := s.userRepo.Get(ctx, cert.StudentID)
	if err != nil {
		return nil, err
	}

	vars := map[string]interface{}{
		"student_name":       studentUser.FullName(),
		"student_id":         profile.StudentID,
		"program":            profile.Program,
		"year_level":         profile.YearLevel,
		"date_issued":        cert.DateIssued.Format("January 2, 2006"),
		"valid_until":        "",
		"doctor_name":        "",
		"doctor_license":     "",
		"diagnosis":          strOrEmpty(cert.Diagnosis),
		"prescription":       "",
		"remarks":            strOrEmpty(cert.Remarks),
		"purpose":            strOrEmpty(cert.Purpose),
		"certificate_number": cert.CertificateNumber,
		"prescription_number": "",
		"school_name":        s.schoolName,
	}
	if cert.ValidUntil != nil {
		vars["valid_until"] = cert.ValidUntil.Format("January 2, 2006")
	}
	if cert.DoctorID != nil {
		doctor, err := s.userRepo.Get(ctx, *cert.DoctorID)
		if err == nil {
			vars["doctor_name"] = doctor.FullName()
		}
		if dp, err := s.userRepo.GetDoctorProfile(ctx, *cert.DoctorID); err == nil && dp.LicenseNumber != nil {
			vars["doctor_license"] = *dp.LicenseNumber
		}
	}
	return vars, nil
}

// renderHTML substitutes {{variable}} placeholders and wraps the body with
// the template's stylesheet and footer.
func (s *Service) renderHTML(tpl *model.Template, vars map[string]interface{}) string {
	body := fasttemplate.ExecuteString(tpl.HTML, "{{", "}}", vars)

	css := ""
	if tpl.CSS != nil {
		css = *tpl.CSS
	}
	footer := ""
	if tpl.FooterText != nil {
		footer = fmt.Sprintf(`<footer>%s</footer>`, fasttemplate.ExecuteString(*tpl.FooterText, "{{", "}}", vars))
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>%s</style></head><body>%s%s</body></html>`, css, body, footer)
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
