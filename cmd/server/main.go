// Command server runs the reminder API together with the background dispatch
// scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/config"
	"github.com/tbourn/go-reminder-backend/internal/domain"
	httpapi "github.com/tbourn/go-reminder-backend/internal/http"
	"github.com/tbourn/go-reminder-backend/internal/notify"
	"github.com/tbourn/go-reminder-backend/internal/observability"
	"github.com/tbourn/go-reminder-backend/internal/repo"
	"github.com/tbourn/go-reminder-backend/internal/scheduler"
	"github.com/tbourn/go-reminder-backend/internal/services"
	"github.com/tbourn/go-reminder-backend/internal/sysutil"
)

var version = "dev"

// dispatchRepoShim adapts the repository free functions to
// services.DispatchRepo.
type dispatchRepoShim struct{}

func (dispatchRepoShim) ListDueReminders(ctx context.Context, db *gorm.DB, asOf time.Time) ([]domain.Reminder, error) {
	return repo.ListDueReminders(ctx, db, asOf)
}

func (dispatchRepoShim) MarkReminderSent(ctx context.Context, db *gorm.DB, id uint) error {
	return repo.MarkReminderSent(ctx, db, id)
}

func (dispatchRepoShim) CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) error {
	return repo.CreateReminder(ctx, db, r)
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	gin.SetMode(cfg.GinMode)
	logger := sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("database init failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			logger.Warn().Err(err).Msg("gorm tracing not enabled")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	emailCfg := notify.EmailConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.User,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		Timeout:  cfg.Email.Timeout,
	}
	if !emailCfg.Configured() {
		logger.Warn().Msg("EMAIL_USER/EMAIL_PASS not set; email reminders will fail")
	}
	email := notify.NewEmail(emailCfg)
	webhook := notify.NewWebhook(notify.WebhookConfig{
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		BaseDelay:      cfg.Webhook.BaseDelay,
		FailureBackoff: cfg.Webhook.FailureBackoff,
		MaxDelay:       cfg.Webhook.MaxDelay,
		AttemptTimeout: cfg.Webhook.Timeout,
		RatePerSec:     cfg.Webhook.RateRPS,
	}, &http.Client{})

	dispatcher := services.NewDispatcher(db, dispatchRepoShim{}, notify.NewRegistry(email, webhook))
	driver := scheduler.New(dispatcher, scheduler.Config{
		Interval:    cfg.Scheduler.Interval,
		ScanTimeout: cfg.Scheduler.ScanTimeout,
	}, logger)
	housekeeper := scheduler.NewHousekeeper(func(ctx context.Context) {
		n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		if err != nil {
			log.Warn().Err(err).Msg("idempotency purge failed")
			return
		}
		if n > 0 {
			log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
		}
	}, time.Hour, logger)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	if err := housekeeper.Start(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("housekeeping start failed")
	}
	if cfg.Scheduler.Enabled {
		if err := driver.Start(rootCtx); err != nil {
			logger.Fatal().Err(err).Msg("scheduler start failed")
		}
	} else {
		logger.Info().Msg("scheduler disabled; use POST /reminders/check to deliver")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, driver, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	waitForShutdown(srv, driver, housekeeper, shutdownOTel)
}

func waitForShutdown(srv *http.Server, driver *scheduler.Driver, housekeeper *scheduler.Housekeeper, shutdownOTel func(context.Context) error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver.Stop(ctx)
	housekeeper.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown error")
	}
}
