// Package services – ReminderService
//
// This file implements ReminderService, which owns the lifecycle of reminders
// as seen by the HTTP API. It normalizes and validates input, applies the
// recurrence default, and coordinates repository operations for creating,
// listing (with pagination), updating, and deleting reminders.
//
// Service-level errors (ErrReminderNotFound, ErrInvalidReminder,
// ErrUnknownNotifyType) are returned for predictable cases so handlers can
// map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/domain"
)

// ReminderRepo defines the repository contract required by ReminderService.
type ReminderRepo interface {
	// CreateReminder inserts r and assigns its ID.
	CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) error

	// GetReminder fetches a reminder by ID.
	GetReminder(ctx context.Context, db *gorm.DB, id uint) (*domain.Reminder, error)

	// CountReminders returns the total number of reminders for pagination.
	CountReminders(ctx context.Context, db *gorm.DB) (int64, error)

	// ListRemindersPage returns a page of reminders ordered by due time.
	ListRemindersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Reminder, error)

	// UpdateReminder replaces the editable fields and resets sent.
	UpdateReminder(ctx context.Context, db *gorm.DB, id uint, r *domain.Reminder) error

	// DeleteReminder removes a reminder.
	DeleteReminder(ctx context.Context, db *gorm.DB, id uint) error
}

// ReminderInput carries the client-editable fields of a reminder.
type ReminderInput struct {
	Title         string
	Message       string
	NotifyType    string
	NotifyTarget  string
	RemindAt      time.Time
	Recurrence    string
	RecurrenceEnd *time.Time
}

// ReminderService provides reminder CRUD with validation.
type ReminderService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the reminder repository used by this service.
	Repo ReminderRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// MessageMaxLen rejects longer messages. Zero disables the check.
	MessageMaxLen int
}

// NewReminderService constructs a ReminderService with default limits.
func NewReminderService(db *gorm.DB, r ReminderRepo) *ReminderService {
	return &ReminderService{
		DB:            db,
		Repo:          r,
		TitleMaxLen:   255,
		MessageMaxLen: 4000,
	}
}

// Create validates in and stores a new unsent reminder.
func (s *ReminderService) Create(ctx context.Context, in ReminderInput) (*domain.Reminder, error) {
	ctx, span := otel.Tracer("services/ReminderService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("notify.type", in.NotifyType)),
	)
	defer span.End()

	r, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateReminder(ctx, s.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the reminder with the given id.
func (s *ReminderService) Get(ctx context.Context, id uint) (*domain.Reminder, error) {
	r, err := s.Repo.GetReminder(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	return r, nil
}

// ListPage returns a page of reminders ordered by due time and the total count.
// It applies defaults for invalid page/pageSize.
func (s *ReminderService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Reminder, int64, error) {
	ctx, span := otel.Tracer("services/ReminderService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountReminders(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Reminder{}, 0, nil
	}

	items, err := s.Repo.ListRemindersPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Update replaces reminder id with in and re-arms it (sent=false).
func (s *ReminderService) Update(ctx context.Context, id uint, in ReminderInput) (*domain.Reminder, error) {
	ctx, span := otel.Tracer("services/ReminderService").Start(ctx, "Update",
		trace.WithAttributes(attribute.Int64("reminder.id", int64(id))),
	)
	defer span.End()

	r, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateReminder(ctx, s.DB, id, r); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes reminder id.
func (s *ReminderService) Delete(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteReminder(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReminderNotFound
		}
		return err
	}
	return nil
}

// build normalizes and validates in.
func (s *ReminderService) build(in ReminderInput) (*domain.Reminder, error) {
	title := s.clip(normalizeTitle(in.Title))
	if title == "" {
		return nil, invalid("title is required")
	}
	message := strings.TrimSpace(norm.NFC.String(in.Message))
	if message == "" {
		return nil, invalid("message is required")
	}
	if s.MessageMaxLen > 0 && utf8.RuneCountInString(message) > s.MessageMaxLen {
		return nil, invalid(fmt.Sprintf("message exceeds %d characters", s.MessageMaxLen))
	}

	nt := domain.NotifyType(strings.ToLower(strings.TrimSpace(in.NotifyType)))
	if nt == "" {
		return nil, invalid("notify_type is required")
	}
	if !nt.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotifyType, in.NotifyType)
	}

	target := strings.TrimSpace(in.NotifyTarget)
	if target == "" {
		return nil, invalid("notify_target is required")
	}
	if err := validateTarget(nt, target); err != nil {
		return nil, err
	}

	if in.RemindAt.IsZero() {
		return nil, invalid("remind_at is required")
	}
	remindAt := in.RemindAt.UTC()

	rec := domain.ParseRecurrence(in.Recurrence)
	var end *time.Time
	if in.RecurrenceEnd != nil && rec != domain.RecurrenceNone {
		e := in.RecurrenceEnd.UTC()
		if e.Before(remindAt) {
			return nil, invalid("recurrence_end must not be before remind_at")
		}
		end = &e
	}

	return &domain.Reminder{
		Title:         title,
		Message:       message,
		NotifyType:    nt,
		NotifyTarget:  target,
		RemindAt:      remindAt,
		Recurrence:    rec,
		RecurrenceEnd: end,
	}, nil
}

func validateTarget(nt domain.NotifyType, target string) error {
	switch nt {
	case domain.NotifyEmail:
		addr, err := mail.ParseAddress(target)
		if err != nil || addr.Address != target {
			return invalid("notify_target must be a plain email address")
		}
	case domain.NotifyWebhook:
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return invalid("notify_target must be an http(s) webhook URL")
		}
	}
	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidReminder, reason)
}

// clip truncates a title to the configured maximum rune length.
func (s *ReminderService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle applies NFC, trims whitespace and collapses runs of spaces.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
