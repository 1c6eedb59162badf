package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tip-mds/clinic-api/internal/config"
	"github.com/tip-mds/clinic-api/internal/email"
	"github.com/tip-mds/clinic-api/internal/model"
	"github.com/tip-mds/clinic-api/internal/repository/postgres"
	analyticsService "github.com/tip-mds/clinic-api/internal/service/analytics"
	appointmentService "github.com/tip-mds/clinic-api/internal/service/appointment"
	documentService "github.com/tip-mds/clinic-api/internal/service/document"
	notificationService "github.com/tip-mds/clinic-api/internal/service/notification"
	requestService "github.com/tip-mds/clinic-api/internal/service/request"
	"github.com/tip-mds/clinic-api/pkg/logger"
	redisbroker "github.com/tip-mds/clinic-api/pkg/messaging/redis"
	"github.com/tip-mds/clinic-api/pkg/metrics"
)

// services bundles everything the job commands need. Construction is
// deferred until a command actually runs so --help works without a
// database.
type services struct {
	appointments  *appointmentService.Service
	requests      *requestService.Service
	notifications *notificationService.Service
	documents     *documentService.Service
	analytics     *analyticsService.Service
	metrics       *metrics.Metrics
	logger        *logger.Logger
	close         func()
}

func buildServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	l := logger.New(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	broker, err := redisbroker.NewBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &l.ZL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := metrics.New("clinic_jobs")

	userRepo := postgres.NewUserRepository(db)
	studentRepo := postgres.NewStudentRepository(db)
	recordRepo := postgres.NewMedicalRecordRepository(db)
	requestRepo := postgres.NewUpdateRequestRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	documentRepo := postgres.NewDocumentRepository(db)
	statisticRepo := postgres.NewStatisticRepository(db)

	sender := email.NewSMTPSender(cfg.SMTP)
	notificationSvc := notificationService.NewService(notificationRepo, userRepo, sender, broker, m, l)

	return &services{
		appointments:  appointmentService.NewService(appointmentRepo, notificationSvc, m, l),
		requests:      requestService.NewService(requestRepo, studentRepo, notificationSvc, m, l),
		notifications: notificationSvc,
		documents:     documentService.NewService(documentRepo, studentRepo, userRepo, notificationSvc, nil, l, cfg.Clinic.SchoolName),
		analytics:     analyticsService.NewService(recordRepo, appointmentRepo, documentRepo, studentRepo, statisticRepo, l),
		metrics:       m,
		logger:        l,
		close: func() {
			broker.Close()
			db.Close()
		},
	}, nil
}

// withJob runs fn with built services and records job duration and item
// counts.
func withJob(name string, fn func(ctx context.Context, s *services) (int, error)) error {
	s, err := buildServices()
	if err != nil {
		return err
	}
	defer s.close()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	items, err := fn(ctx, s)
	s.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	s.metrics.JobItems.WithLabelValues(name).Add(float64(items))
	fmt.Printf("%s: processed %d item(s) in %s\n", name, items, time.Since(start).Round(time.Millisecond))
	return nil
}

// parseDate returns the given YYYY-MM-DD date, or today's UTC midnight
// shifted by defaultOffsetDays when raw is empty.
func parseDate(raw string, defaultOffsetDays int) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return today.AddDate(0, 0, defaultOffsetDays), nil
	}
	return time.Parse("2006-01-02", raw)
}

func main() {
	root := &cobra.Command{
		Use:   "clinic-jobs",
		Short: "Scheduled maintenance jobs for the clinic service, intended to run from cron",
	}

	var statsPeriod, statsDate string
	generateStats := &cobra.Command{
		Use:   "generate-statistics",
		Short: "Recompute consultation and morbidity statistics for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			period := model.PeriodType(statsPeriod)
			switch period {
			case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly, model.PeriodYearly:
			default:
				return fmt.Errorf("invalid period %q", statsPeriod)
			}
			date, err := parseDate(statsDate, 0)
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			return withJob("generate_statistics", func(ctx context.Context, s *services) (int, error) {
				return s.analytics.Generate(ctx, period, date, nil)
			})
		},
	}
	generateStats.Flags().StringVar(&statsPeriod, "period", string(model.PeriodMonthly), "period type: daily, weekly, monthly or yearly")
	generateStats.Flags().StringVar(&statsDate, "date", "", "any date inside the period, YYYY-MM-DD (default today)")

	var reminderDate string
	sendReminders := &cobra.Command{
		Use:   "send-reminders",
		Short: "Notify students with approved appointments on the given date",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reminders go out the day before the visit.
			date, err := parseDate(reminderDate, 1)
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			return withJob("send_reminders", func(ctx context.Context, s *services) (int, error) {
				return s.appointments.SendReminders(ctx, date)
			})
		},
	}
	sendReminders.Flags().StringVar(&reminderDate, "date", "", "appointment date, YYYY-MM-DD (default tomorrow)")

	sweepExpiry := &cobra.Command{
		Use:   "sweep-expiry",
		Short: "Expire stale update requests, overdue certificates and old notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob("sweep_expiry", func(ctx context.Context, s *services) (int, error) {
				total := 0

				n, err := s.requests.ExpireStale(ctx)
				if err != nil {
					return total, fmt.Errorf("failed to expire update requests: %w", err)
				}
				fmt.Printf("update requests expired: %d\n", n)
				total += n

				n, err = s.documents.ExpireCertificates(ctx)
				if err != nil {
					return total, fmt.Errorf("failed to expire certificates: %w", err)
				}
				fmt.Printf("certificates expired: %d\n", n)
				total += n

				n, err = s.notifications.MarkExpiredRead(ctx)
				if err != nil {
					return total, fmt.Errorf("failed to sweep notifications: %w", err)
				}
				fmt.Printf("notifications marked read: %d\n", n)
				total += n

				return total, nil
			})
		},
	}

	var retryLimit int
	retryEmails := &cobra.Command{
		Use:   "retry-emails",
		Short: "Re-send failed emails still under their retry budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob("retry_emails", func(ctx context.Context, s *services) (int, error) {
				return s.notifications.RetryFailedEmails(ctx, retryLimit)
			})
		},
	}
	retryEmails.Flags().IntVar(&retryLimit, "limit", 100, "maximum number of emails to retry")

	root.AddCommand(generateStats, sendReminders, sweepExpiry, retryEmails)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
