package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/tip-mds/clinic-api/internal/email"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/messaging"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

const (
	// DefaultExpiryDays is how long a notification stays actionable before
	// the sweep job marks it read.
	DefaultExpiryDays = 30

	// EventChannel is the broker channel in-app clients subscribe to.
	EventChannel = "notifications"

	prefsCacheTTL = 5 * time.Minute
)

// Notice describes one notification to deliver. Zero ExpiresInDays means
// the default window.
type Notice struct {
	RecipientID uuid.UUID
	Type        model.NotificationType
	Title       string
	Message     string
	Priority    model.NotificationPriority

	ActionURL   *string
	ActionLabel *string

	RelatedObjectType *string
	RelatedObjectID   *string

	SendEmail     bool
	ExpiresInDays int
}

type Service struct {
	repo     repository.NotificationRepository
	userRepo repository.UserRepository
	sender   email.Sender
	broker   messaging.Broker
	metrics  *metrics.Metrics
	logger   *logger.Logger

	prefsCache *gocache.Cache
	nowFn      func() time.Time
}

func NewService(repo repository.NotificationRepository, userRepo repository.UserRepository, sender email.Sender, broker messaging.Broker, m *metrics.Metrics, l *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		userRepo:   userRepo,
		sender:     sender,
		broker:     broker,
		metrics:    m,
		logger:     l,
		prefsCache: gocache.New(prefsCacheTTL, 2*prefsCacheTTL),
		nowFn:      time.Now,
	}
}

// Notify persists the notification, then delivers it best-effort: broker
// publish failures and email failures are logged and counted but never
// surface to the caller that triggered them.
func (s *Service) Notify(ctx context.Context, n Notice) (*model.Notification, error) {
	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}
	days := n.ExpiresInDays
	if days <= 0 {
		days = DefaultExpiryDays
	}
	expiresAt := s.nowFn().AddDate(0, 0, days)

	notif := &model.Notification{
		RecipientID:       n.RecipientID,
		Type:              n.Type,
		Title:             n.Title,
		Message:           n.Message,
		Priority:          n.Priority,
		ActionURL:         n.ActionURL,
		ActionLabel:       n.ActionLabel,
		RelatedObjectType: n.RelatedObjectType,
		RelatedObjectID:   n.RelatedObjectID,
		SendEmail:         n.SendEmail,
		ExpiresAt:         &expiresAt,
	}
	if err := s.repo.Create(ctx, notif); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	s.publishEvent(ctx, notif)

	if notif.SendEmail && s.emailAllowed(ctx, notif.RecipientID, notif.Type) {
		s.sendNotificationEmail(ctx, notif)
	}
	return notif, nil
}

func (s *Service) publishEvent(ctx context.Context, n *model.Notification) {
	event := model.NotificationEvent{
		ID:             uuid.New(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Type:           n.Type,
		Title:          n.Title,
		CreatedAt:      n.CreatedAt,
	}
	if err := s.broker.Publish(ctx, EventChannel, event); err != nil {
		s.metrics.BrokerPublishErrors.Inc()
		s.logger.WithFields(map[string]interface{}{
			"notification_id": n.ID.String(),
		}).Error(err, "failed to publish notification event")
	}
}

func (s *Service) emailAllowed(ctx context.Context, userID uuid.UUID, t model.NotificationType) bool {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Error(err, "failed to load notification preferences, defaulting to allow")
		return true
	}
	return prefs.AllowsEmail(t)
}

// sendNotificationEmail writes the email log first so a delivery failure
// leaves a retryable record behind.
func (s *Service) sendNotificationEmail(ctx context.Context, n *model.Notification) {
	user, err := s.userRepo.Get(ctx, n.RecipientID)
	if err != nil {
		s.logger.Error(err, "failed to resolve email recipient")
		return
	}
	name := user.FullName()

	log := &model.EmailLog{
		NotificationID: &n.ID,
		RecipientEmail: user.Email,
		RecipientName:  &name,
		Subject:        n.Title,
		Body:           n.Message,
		Status:         model.EmailStatusPending,
		MaxRetries:     model.DefaultMaxEmailRetries,
	}
	if err := s.repo.CreateEmailLog(ctx, log); err != nil {
		s.logger.Error(err, "failed to create email log")
		return
	}

	if err := s.deliver(ctx, log); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"email_log_id": log.ID.String(),
		}).Error(err, "failed to send notification email")
		return
	}

	now := s.nowFn()
	n.EmailSent = true
	n.EmailSentAt = &now
	if err := s.repo.Update(ctx, n); err != nil {
		s.logger.Error(err, "failed to record email sent flag")
	}
}

// deliver attempts one send and persists the outcome on the log. Every
// failed attempt consumes one unit of the retry budget.
func (s *Service) deliver(ctx context.Context, log *model.EmailLog) error {
	name := ""
	if log.RecipientName != nil {
		name = *log.RecipientName
	}
	sendErr := s.sender.Send(ctx, log.RecipientEmail, name, log.Subject, log.Body)

	now := s.nowFn()
	if sendErr != nil {
		msg := sendErr.Error()
		log.Status = model.EmailStatusFailed
		log.ErrorMessage = &msg
		log.RetryCount++
		s.metrics.EmailsFailed.Inc()
	} else {
		log.Status = model.EmailStatusSent
		log.SentAt = &now
		log.ErrorMessage = nil
		s.metrics.EmailsSent.Inc()
	}
	if err := s.repo.UpdateEmailLog(ctx, log); err != nil {
		s.logger.Error(err, "failed to update email log")
	}
	return sendErr
}

// RetryFailedEmails re-sends failed emails still under their retry budget
// and returns how many were attempted.
func (s *Service) RetryFailedEmails(ctx context.Context, limit int) (int, error) {
	logs, err := s.repo.ListRetryableEmails(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable emails: %w", err)
	}

	attempted := 0
	for _, log := range logs {
		if !log.CanRetry() {
			continue
		}
		s.metrics.EmailRetries.Inc()
		attempted++

		if err := s.deliver(ctx, log); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"email_log_id": log.ID.String(),
				"retry_count":  log.RetryCount,
			}).Warn(err, "email retry failed")
		}
	}
	return attempted, nil
}

func (s *Service) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, p model.Pagination) ([]*model.Notification, error) {
	return s.repo.List(ctx, recipientID, unreadOnly, p)
}

func (s *Service) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

// MarkRead flips a notification read for its recipient. Reading someone
// else's notification is a not-found, not a forbidden, to avoid leaking
// existence.
func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipientID {
		return nil, apperrors.NotFound("notification", nil)
	}
	n.MarkRead(s.nowFn())
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n, nil
}

func (s *Service) MarkUnread(ctx context.Context, id, recipientID uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipientID {
		return nil, apperrors.NotFound("notification", nil)
	}
	n.MarkUnread()
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to mark notification unread: %w", err)
	}
	return n, nil
}

// MarkExpiredRead is the sweep entry point; it returns how many rows moved.
func (s *Service) MarkExpiredRead(ctx context.Context) (int, error) {
	return s.repo.MarkAllExpiredRead(ctx, s.nowFn())
}

// GetPreferences returns the user's preference row, creating the
// all-enabled default lazily on first lookup. Rows are cached briefly
// since the email path checks them on every send.
func (s *Service) GetPreferences(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	if cached, ok := s.prefsCache.Get(userID.String()); ok {
		return cached.(*model.NotificationPreference), nil
	}

	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, err
		}
		prefs = model.DefaultPreferences(userID)
		if err := s.repo.SavePreferences(ctx, prefs); err != nil {
			return nil, fmt.Errorf("failed to create default preferences: %w", err)
		}
	}

	s.prefsCache.Set(userID.String(), prefs, gocache.DefaultExpiration)
	return prefs, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, prefs *model.NotificationPreference) error {
	if err := s.repo.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	s.prefsCache.Delete(prefs.UserID.String())
	return nil
}
