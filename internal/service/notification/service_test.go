package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tip-mds/clinic-api/internal/model"
	apperrors "github.com/tip-mds/clinic-api/pkg/errors"
	"github.com/tip-mds/clinic-api/pkg/logger"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

type fakeNotificationRepo struct {
	notifications map[uuid.UUID]*model.Notification
	emailLogs     map[uuid.UUID]*model.EmailLog
	preferences   map[uuid.UUID]*model.NotificationPreference

	prefsLookups int
	createErr    error
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		notifications: map[uuid.UUID]*model.Notification{},
		emailLogs:     map[uuid.UUID]*model.EmailLog{},
		preferences:   map[uuid.UUID]*model.NotificationPreference{},
	}
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()
	r.notifications[n.ID] = n
	return nil
}

func (r *fakeNotificationRepo) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return nil, apperrors.NotFound("notification", nil)
	}
	cp := *n
	return &cp, nil
}

func (r *fakeNotificationRepo) Update(_ context.Context, n *model.Notification) error {
	if _, ok := r.notifications[n.ID]; !ok {
		return apperrors.NotFound("notification", nil)
	}
	r.notifications[n.ID] = n
	return nil
}

func (r *fakeNotificationRepo) List(_ context.Context, recipientID uuid.UUID, unreadOnly bool, _ model.Pagination) ([]*model.Notification, error) {
	var out []*model.Notification
	for _, n := range r.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, recipientID uuid.UUID) (int, error) {
	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) MarkAllExpiredRead(_ context.Context, now time.Time) (int, error) {
	moved := 0
	for _, n := range r.notifications {
		if !n.IsRead && n.IsExpired(now) {
			n.MarkRead(now)
			moved++
		}
	}
	return moved, nil
}

func (r *fakeNotificationRepo) CreateEmailLog(_ context.Context, l *model.EmailLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	r.emailLogs[l.ID] = l
	return nil
}

func (r *fakeNotificationRepo) UpdateEmailLog(_ context.Context, l *model.EmailLog) error {
	r.emailLogs[l.ID] = l
	return nil
}

func (r *fakeNotificationRepo) GetEmailLog(_ context.Context, id uuid.UUID) (*model.EmailLog, error) {
	l, ok := r.emailLogs[id]
	if !ok {
		return nil, apperrors.NotFound("email log", nil)
	}
	return l, nil
}

func (r *fakeNotificationRepo) ListRetryableEmails(_ context.Context, limit int) ([]*model.EmailLog, error) {
	var out []*model.EmailLog
	for _, l := range r.emailLogs {
		if l.CanRetry() {
			out = append(out, l)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) GetPreferences(_ context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	r.prefsLookups++
	p, ok := r.preferences[userID]
	if !ok {
		return nil, apperrors.NotFound("notification preferences", nil)
	}
	return p, nil
}

func (r *fakeNotificationRepo) SavePreferences(_ context.Context, prefs *model.NotificationPreference) error {
	r.preferences[prefs.UserID] = prefs
	return nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
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

func (r *fakeUserRepo) CreateDoctorProfile(_ context.Context, _ *model.DoctorProfile) error {
	return nil
}

func (r *fakeUserRepo) GetDoctorProfile(_ context.Context, _ uuid.UUID) (*model.DoctorProfile, error) {
	return nil, apperrors.NotFound("doctor profile", nil)
}

func (r *fakeUserRepo) UpdateDoctorProfile(_ context.Context, _ *model.DoctorProfile) error {
	return nil
}

type fakeSender struct {
	sent    []string
	failNow bool
}

func (s *fakeSender) Send(_ context.Context, to, _, _, _ string) error {
	if s.failNow {
		return errors.New("smtp unreachable")
	}
	s.sent = append(s.sent, to)
	return nil
}

type fakeBroker struct {
	published []string
	failNow   bool
}

func (b *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	if b.failNow {
		return errors.New("broker down")
	}
	b.published = append(b.published, channel)
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBroker) Close() error { return nil }

type fixture struct {
	svc    *Service
	repo   *fakeNotificationRepo
	users  *fakeUserRepo
	sender *fakeSender
	broker *fakeBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeNotificationRepo()
	users := &fakeUserRepo{users: map[uuid.UUID]*model.User{}}
	sender := &fakeSender{}
	broker := &fakeBroker{}
	m := metrics.NewWithRegistry("test", prometheus.NewRegistry())
	l := &logger.Logger{ZL: zerolog.Nop()}
	return &fixture{
		svc:    NewService(repo, users, sender, broker, m, l),
		repo:   repo,
		users:  users,
		sender: sender,
		broker: broker,
	}
}

func (f *fixture) addUser(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{
		Email:     "juan.delacruz@tip.edu.ph",
		Role:      model.RoleStudent,
		FirstName: "Juan",
		LastName:  "Dela Cruz",
		IsActive:  true,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func TestNotifyPersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)

	n, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationSystem,
		Title:       "Welcome",
		Message:     "Your account is ready.",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, n.Priority)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, []string{EventChannel}, f.broker.published)
	assert.Empty(t, f.sender.sent)
}

func TestNotifySendsEmailWhenRequested(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)

	n, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationCertificateIssued,
		Title:       "Certificate issued",
		Message:     "Your certificate is ready for download.",
		SendEmail:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{user.Email}, f.sender.sent)

	stored := f.repo.notifications[n.ID]
	assert.True(t, stored.EmailSent)
	require.Len(t, f.repo.emailLogs, 1)
	for _, l := range f.repo.emailLogs {
		assert.Equal(t, model.EmailStatusSent, l.Status)
		assert.Equal(t, user.Email, l.RecipientEmail)
	}
}

func TestNotifySwallowsDeliveryFailures(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	f.sender.failNow = true
	f.broker.failNow = true

	n, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationSystem,
		Title:       "Heads up",
		Message:     "Something happened.",
		SendEmail:   true,
	})
	require.NoError(t, err)

	// The notification row exists; the failed send left a retryable log
	// with one attempt already charged against the budget.
	assert.False(t, f.repo.notifications[n.ID].EmailSent)
	require.Len(t, f.repo.emailLogs, 1)
	for _, l := range f.repo.emailLogs {
		assert.Equal(t, model.EmailStatusFailed, l.Status)
		assert.Equal(t, 1, l.RetryCount)
		assert.True(t, l.CanRetry())
	}
}

func TestEmailRetryBudgetExhausted(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)
	f.sender.failNow = true

	_, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationSystem,
		Title:       "Heads up",
		Message:     "Something happened.",
		SendEmail:   true,
	})
	require.NoError(t, err)

	var logID uuid.UUID
	for id := range f.repo.emailLogs {
		logID = id
	}
	assert.Equal(t, 1, f.repo.emailLogs[logID].RetryCount)

	// Two more failed sends drain the budget of three.
	for want := 2; want <= model.DefaultMaxEmailRetries; want++ {
		attempted, err := f.svc.RetryFailedEmails(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, attempted)
		assert.Equal(t, want, f.repo.emailLogs[logID].RetryCount)
	}
	assert.False(t, f.repo.emailLogs[logID].CanRetry())

	// A fourth attempt is never made and the count never moves.
	attempted, err := f.svc.RetryFailedEmails(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, attempted)
	assert.Equal(t, model.DefaultMaxEmailRetries, f.repo.emailLogs[logID].RetryCount)
}

func TestNotifyRespectsEmailPreferences(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)

	prefs := model.DefaultPreferences(user.ID)
	prefs.EmailCertificateIssued = false
	require.NoError(t, f.repo.SavePreferences(context.Background(), prefs))

	_, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationCertificateIssued,
		Title:       "Certificate issued",
		Message:     "Ready.",
		SendEmail:   true,
	})
	require.NoError(t, err)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.repo.emailLogs)
}

func TestRetryFailedEmails(t *testing.T) {
	f := newFixture(t)

	failed := &model.EmailLog{
		RecipientEmail: "juan.delacruz@tip.edu.ph",
		Subject:        "Certificate issued",
		Body:           "Ready.",
		Status:         model.EmailStatusFailed,
		RetryCount:     1,
		MaxRetries:     model.DefaultMaxEmailRetries,
	}
	require.NoError(t, f.repo.CreateEmailLog(context.Background(), failed))

	exhausted := &model.EmailLog{
		RecipientEmail: "maria.santos@tip.edu.ph",
		Subject:        "Reminder",
		Body:           "Tomorrow.",
		Status:         model.EmailStatusFailed,
		RetryCount:     model.DefaultMaxEmailRetries,
		MaxRetries:     model.DefaultMaxEmailRetries,
	}
	require.NoError(t, f.repo.CreateEmailLog(context.Background(), exhausted))

	attempted, err := f.svc.RetryFailedEmails(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, []string{"juan.delacruz@tip.edu.ph"}, f.sender.sent)

	// A successful retry does not consume budget; only failures count.
	assert.Equal(t, model.EmailStatusSent, f.repo.emailLogs[failed.ID].Status)
	assert.Equal(t, 1, f.repo.emailLogs[failed.ID].RetryCount)
	assert.Equal(t, model.EmailStatusFailed, f.repo.emailLogs[exhausted.ID].Status)
}

func TestMarkReadOwnership(t *testing.T) {
	f := newFixture(t)
	owner := f.addUser(t)

	n, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: owner.ID,
		Type:        model.NotificationSystem,
		Title:       "Hello",
		Message:     "World",
	})
	require.NoError(t, err)

	// A stranger reading it gets not-found, not a read flip.
	_, err = f.svc.MarkRead(context.Background(), n.ID, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	assert.False(t, f.repo.notifications[n.ID].IsRead)

	read, err := f.svc.MarkRead(context.Background(), n.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	unread, err := f.svc.MarkUnread(context.Background(), n.ID, owner.ID)
	require.NoError(t, err)
	assert.False(t, unread.IsRead)
}

func TestGetPreferencesLazyDefault(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	prefs, err := f.svc.GetPreferences(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, prefs.EmailSystem)

	// The default row was persisted, not just returned.
	saved, ok := f.repo.preferences[userID]
	require.True(t, ok)
	assert.True(t, saved.EmailAppointmentApproved)

	// Second lookup is served from the cache.
	lookups := f.repo.prefsLookups
	_, err = f.svc.GetPreferences(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, lookups, f.repo.prefsLookups)
}

func TestUpdatePreferencesInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	_, err := f.svc.GetPreferences(context.Background(), userID)
	require.NoError(t, err)

	updated := model.DefaultPreferences(userID)
	updated.EmailSystem = false
	require.NoError(t, f.svc.UpdatePreferences(context.Background(), updated))

	prefs, err := f.svc.GetPreferences(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, prefs.EmailSystem)
}

func TestMarkExpiredRead(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t)

	fresh, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationSystem,
		Title:       "Fresh",
		Message:     "Still valid.",
	})
	require.NoError(t, err)

	stale, err := f.svc.Notify(context.Background(), Notice{
		RecipientID: user.ID,
		Type:        model.NotificationSystem,
		Title:       "Stale",
		Message:     "Long gone.",
	})
	require.NoError(t, err)
	past := time.Now().AddDate(0, 0, -1)
	f.repo.notifications[stale.ID].ExpiresAt = &past

	moved, err := f.svc.MarkExpiredRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.True(t, f.repo.notifications[stale.ID].IsRead)
	assert.False(t, f.repo.notifications[fresh.ID].IsRead)
}
