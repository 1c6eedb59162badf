package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tip-mds/clinic-api/internal/config"
	"github.com/tip-mds/clinic-api/internal/email"
	accounth "github.com/tip-mds/clinic-api/internal/handler/account"
	analyticsh "github.com/tip-mds/clinic-api/internal/handler/analytics"
	appointmenth "github.com/tip-mds/clinic-api/internal/handler/appointment"
	documenth "github.com/tip-mds/clinic-api/internal/handler/document"
	healthh "github.com/tip-mds/clinic-api/internal/handler/health"
	medicalh "github.com/tip-mds/clinic-api/internal/handler/medical"
	notificationh "github.com/tip-mds/clinic-api/internal/handler/notification"
	requesth "github.com/tip-mds/clinic-api/internal/handler/request"
	studenth "github.com/tip-mds/clinic-api/internal/handler/student"
	"github.com/tip-mds/clinic-api/internal/middleware"
	"github.com/tip-mds/clinic-api/internal/pdf"
	"github.com/tip-mds/clinic-api/internal/repository/postgres"
	"github.com/tip-mds/clinic-api/internal/router"
	accountService "github.com/tip-mds/clinic-api/internal/service/account"
	analyticsService "github.com/tip-mds/clinic-api/internal/service/analytics"
	appointmentService "github.com/tip-mds/clinic-api/internal/service/appointment"
	documentService "github.com/tip-mds/clinic-api/internal/service/document"
	medicalService "github.com/tip-mds/clinic-api/internal/service/medical"
	notificationService "github.com/tip-mds/clinic-api/internal/service/notification"
	requestService "github.com/tip-mds/clinic-api/internal/service/request"
	studentService "github.com/tip-mds/clinic-api/internal/service/student"
	"github.com/tip-mds/clinic-api/pkg/auth"
	"github.com/tip-mds/clinic-api/pkg/logger"
	redisbroker "github.com/tip-mds/clinic-api/pkg/messaging/redis"
	"github.com/tip-mds/clinic-api/pkg/metrics"
	"github.com/tip-mds/clinic-api/pkg/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.New(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &l.ZL)
	if err != nil {
		l.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.New("clinic")

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	studentRepo := postgres.NewStudentRepository(db)
	recordRepo := postgres.NewMedicalRecordRepository(db)
	requestRepo := postgres.NewUpdateRequestRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	documentRepo := postgres.NewDocumentRepository(db)
	statisticRepo := postgres.NewStatisticRepository(db)

	// Services
	sender := email.NewSMTPSender(cfg.SMTP)
	renderer := pdf.NewRenderer(cfg.Clinic.PDFBinPath)
	hasher := security.NewBcryptHasher(0)
	tokens := auth.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	notificationSvc := notificationService.NewService(notificationRepo, userRepo, sender, broker, m, l)
	accountSvc := accountService.NewService(userRepo, hasher, tokens, l, cfg.Clinic.EmailDomain)
	studentSvc := studentService.NewService(studentRepo)
	medicalSvc := medicalService.NewService(recordRepo, studentRepo, l)
	requestSvc := requestService.NewService(requestRepo, studentRepo, notificationSvc, m, l)
	appointmentSvc := appointmentService.NewService(appointmentRepo, notificationSvc, m, l)
	documentSvc := documentService.NewService(documentRepo, studentRepo, userRepo, notificationSvc, renderer, l, cfg.Clinic.SchoolName)
	analyticsSvc := analyticsService.NewService(recordRepo, appointmentRepo, documentRepo, studentRepo, statisticRepo, l)

	// HTTP surface
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	handlers := router.Handlers{
		Account:      accounth.NewHandler(accountSvc),
		Student:      studenth.NewHandler(studentSvc),
		Medical:      medicalh.NewHandler(medicalSvc),
		Request:      requesth.NewHandler(requestSvc),
		Appointment:  appointmenth.NewHandler(appointmentSvc),
		Notification: notificationh.NewHandler(notificationSvc),
		Document:     documenth.NewHandler(documentSvc),
		Analytics:    analyticsh.NewHandler(analyticsSvc),
		Health:       healthh.NewHandler(db),
	}

	engine := router.New(router.Config{
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, handlers, authMiddleware, m, l)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		l.WithFields(map[string]interface{}{"port": cfg.Server.Port}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("shutting down")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Error(err, "forced shutdown")
	}
}
