package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-taskpulse/internal/application/audit"
	"github.com/go-taskpulse/internal/application/notification"
	"github.com/go-taskpulse/internal/application/preference"
	"github.com/go-taskpulse/internal/application/recurrence"
	"github.com/go-taskpulse/internal/application/user"
	"github.com/go-taskpulse/internal/config"
	"github.com/go-taskpulse/internal/infrastructure/awsenv"
	"github.com/go-taskpulse/internal/infrastructure/dynamo"
	"github.com/go-taskpulse/internal/infrastructure/eventbus"
	jwtinfra "github.com/go-taskpulse/internal/infrastructure/jwt"
	"github.com/go-taskpulse/internal/infrastructure/realtime"
	s3infra "github.com/go-taskpulse/internal/infrastructure/s3"
	"github.com/go-taskpulse/internal/infrastructure/smtp"
	"github.com/go-taskpulse/internal/infrastructure/sns"
	"github.com/go-taskpulse/internal/pkg/secret"
	"github.com/go-taskpulse/internal/supervisor"
	transporthttp "github.com/go-taskpulse/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	awsCfg, err := awsenv.Load(context.Background(), cfg, cfg.AWSRegion)
	if err != nil {
		return err
	}
	endpoint := awsenv.Endpoint(cfg)

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, endpoint)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables, logger)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}
	box, err := secret.NewBox(cfg.SMTPOverrideKey)
	if err != nil {
		return fmt.Errorf("smtp override key: %w", err)
	}

	taskRepo := dynamo.NewTaskRepo(dynamoClient, cfg.DynamoTables.Tasks)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	preferenceRepo := dynamo.NewPreferenceRepo(dynamoClient, cfg.DynamoTables.Preferences)
	auditRepo := dynamo.NewAuditRepo(dynamoClient, cfg.DynamoTables.AuditLogs)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)

	// Email: templates (optionally overridden from S3), composer, breaker-guarded mailer, queue.
	var templateSource notification.TemplateSource
	if cfg.TemplateBucket != "" {
		templateSource = s3infra.NewTemplateStore(s3infra.NewClient(awsCfg, endpoint), cfg.TemplateBucket, cfg.TemplatePrefix)
	}
	templates := notification.NewTemplates(templateSource, logger)
	composer := notification.NewComposer(userRepo, templates, cfg.AppBaseURL)
	mailer := smtp.NewMailer(cfg, box, logger)
	mailQueue := smtp.NewQueue(cfg.MailQueueSize, cfg.MailWorkers, composer, mailer, logger)

	// Live sessions are fed from the in-process bus.
	bus := eventbus.New(logger, 256)
	defer bus.Close()
	registry := realtime.NewRegistry(logger)

	auditSvc := audit.NewService(audit.ServiceDeps{AuditRepo: auditRepo, Logger: logger})
	prefSvc := preference.NewService(preference.ServiceDeps{PreferenceRepo: preferenceRepo, Logger: logger})
	notifSvc := notification.NewService(notification.ServiceDeps{
		NotificationRepo: notificationRepo,
		Resolver:         prefSvc,
		Publisher:        bus,
		MailQueue:        mailQueue,
		Logger:           logger,
	})
	emailSettingsSvc := user.NewService(user.ServiceDeps{UserRepo: userRepo, Box: box, Audit: auditSvc, Logger: logger})

	scheduler, err := recurrence.NewScheduler(recurrence.SchedulerDeps{
		TaskRepo:    taskRepo,
		Audit:       auditSvc,
		Notifier:    notifSvc,
		Schedule:    cfg.RecurrenceSchedule,
		TaskTimeout: cfg.RecurrenceTaskTimeout,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("recurrence scheduler: %w", err)
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Notifications: notifSvc,
		Preferences:   prefSvc,
		Audit:         auditSvc,
		EmailSettings: emailSettingsSvc,
		Recurrence:    scheduler,
		Registry:      registry,
		JWTProvider:   jwtProvider,
		Logger:        logger,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{})
	tree.AddDeliveryService(mailQueue)
	tree.AddDeliveryService(eventbus.NewConsumer("realtime-relay", bus, realtime.NewRelay(registry).HandleNotification, logger))
	if cfg.SNSTopicARN != "" {
		snsCfg, err := awsenv.Load(context.Background(), cfg, cfg.SNSRegion)
		if err != nil {
			return err
		}
		forwarder := sns.NewForwarder(sns.NewClient(snsCfg, endpoint), cfg.SNSTopicARN)
		tree.AddDeliveryService(eventbus.NewConsumer("sns-forwarder", bus, forwarder.HandleNotification, logger))
	}
	tree.AddAPIService(scheduler)
	tree.AddAPIService(supervisor.NewHTTPService(srv, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "schedule", cfg.RecurrenceSchedule)
	err = tree.Serve(ctx)
	registry.CloseAll()
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logger.Warn("services did not stop in time", "count", len(report))
	}
	logger.Info("server stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
