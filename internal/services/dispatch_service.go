// Package services – Dispatcher
//
// This file implements the dispatch loop: one pass over the reminders that are
// due at a given instant. Each reminder is processed sequentially through
// deliver, mark sent and (for recurring reminders) insert next occurrence.
// A failure on one reminder is recorded in the summary and never aborts the
// batch; only a failure of the due query itself fails the pass.
//
// Observability: RunOnce and each per-reminder dispatch are traced, outcomes
// are counted in Prometheus, and failures are logged with the reminder id.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/domain"
	"github.com/tbourn/go-reminder-backend/internal/notify"
	"github.com/tbourn/go-reminder-backend/internal/observability"
)

// DispatchRepo is the store contract consumed by the dispatch loop.
type DispatchRepo interface {
	// ListDueReminders returns unsent reminders with remind_at <= asOf, earliest first.
	ListDueReminders(ctx context.Context, db *gorm.DB, asOf time.Time) ([]domain.Reminder, error)

	// MarkReminderSent flips sent to true; it reports gorm.ErrRecordNotFound
	// when the reminder is gone or already sent.
	MarkReminderSent(ctx context.Context, db *gorm.DB, id uint) error

	// CreateReminder inserts a next occurrence.
	CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) error
}

// ChannelLookup resolves the delivery channel of a notify type.
type ChannelLookup interface {
	Lookup(t domain.NotifyType) (notify.Channel, bool)
}

// DispatchError describes one reminder that could not be completed.
type DispatchError struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// DispatchSummary is the result of one pass over the due reminders.
type DispatchSummary struct {
	Checked int             `json:"checked"`
	Sent    int             `json:"sent"`
	Failed  int             `json:"failed"`
	Errors  []DispatchError `json:"errors"`
}

// Dispatcher delivers due reminders and advances recurring ones.
type Dispatcher struct {
	DB       *gorm.DB
	Repo     DispatchRepo
	Channels ChannelLookup
	Logger   zerolog.Logger
}

// NewDispatcher wires a Dispatcher logging through the global logger.
func NewDispatcher(db *gorm.DB, r DispatchRepo, channels ChannelLookup) *Dispatcher {
	return &Dispatcher{
		DB:       db,
		Repo:     r,
		Channels: channels,
		Logger:   log.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// RunOnce processes every reminder due at asOf.
//
// Reminders are handled one at a time in due order. Checked equals
// Sent + Failed on return. The error is non-nil only when the due query
// failed, in which case nothing was processed.
func (d *Dispatcher) RunOnce(ctx context.Context, asOf time.Time) (DispatchSummary, error) {
	start := time.Now()
	ctx, span := otel.Tracer("services/Dispatcher").Start(ctx, "RunOnce",
		trace.WithAttributes(attribute.String("as_of", asOf.UTC().Format(time.RFC3339))),
	)
	defer span.End()

	sum := DispatchSummary{Errors: []DispatchError{}}

	due, err := d.Repo.ListDueReminders(ctx, d.DB, asOf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "due query failed")
		observability.ObserveScan(observability.OutcomeError, time.Since(start))
		d.Logger.Error().Err(err).Msg("scan due reminders failed")
		return sum, fmt.Errorf("scan due reminders: %w", err)
	}
	sum.Checked = len(due)

	for i := range due {
		r := &due[i]
		if err := d.dispatch(ctx, r); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, DispatchError{ID: r.ID, Title: r.Title, Error: err.Error()})
			continue
		}
		sum.Sent++
	}

	span.SetAttributes(
		attribute.Int("reminders.checked", sum.Checked),
		attribute.Int("reminders.sent", sum.Sent),
		attribute.Int("reminders.failed", sum.Failed),
	)
	observability.ObserveScan(observability.OutcomeOK, time.Since(start))
	if sum.Checked > 0 {
		d.Logger.Info().
			Int("checked", sum.Checked).
			Int("sent", sum.Sent).
			Int("failed", sum.Failed).
			Dur("took", time.Since(start)).
			Msg("reminder scan finished")
	}
	return sum, nil
}

// dispatch runs the per-reminder pipeline. A non-nil error means the
// reminder counts as failed.
func (d *Dispatcher) dispatch(ctx context.Context, r *domain.Reminder) error {
	ctx, span := otel.Tracer("services/Dispatcher").Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.Int64("reminder.id", int64(r.ID)),
			attribute.String("notify.type", string(r.NotifyType)),
			attribute.String("recurrence", string(r.Recurrence)),
		),
	)
	defer span.End()

	lg := d.Logger.With().Uint("reminder_id", r.ID).Str("channel", string(r.NotifyType)).Logger()
	fail := func(err error, msg string) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		lg.Warn().Err(err).Msg(msg)
		return err
	}

	var ch notify.Channel
	ok := false
	if d.Channels != nil {
		ch, ok = d.Channels.Lookup(r.NotifyType)
	}
	if !ok {
		observability.ObserveDelivery(string(r.NotifyType), observability.OutcomeError)
		return fail(fmt.Errorf("%w: %q", ErrUnknownNotifyType, r.NotifyType), "no channel for notify type")
	}

	if err := ch.Deliver(ctx, r.NotifyTarget, r.Title, r.Message); err != nil {
		observability.ObserveDelivery(string(r.NotifyType), observability.OutcomeError)
		return fail(err, "reminder delivery failed")
	}
	observability.ObserveDelivery(string(r.NotifyType), observability.OutcomeOK)

	if err := d.Repo.MarkReminderSent(ctx, d.DB, r.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(ErrAlreadySent, "reminder delivered but already marked by another scan")
		}
		return fail(fmt.Errorf("%w: mark sent: %w", ErrStore, err), "mark sent failed")
	}

	next := r.NextOccurrence()
	if next == nil {
		return nil
	}
	if err := d.Repo.CreateReminder(ctx, d.DB, next); err != nil {
		// Delivered and marked; the chain stops here until someone re-creates it.
		observability.ObserveSpawn(observability.OutcomeError)
		span.RecordError(err)
		lg.Error().Err(err).Time("next_remind_at", next.RemindAt).Msg("insert next occurrence failed")
		return nil
	}
	observability.ObserveSpawn(observability.OutcomeOK)
	lg.Debug().Uint("next_id", next.ID).Time("next_remind_at", next.RemindAt).Msg("next occurrence scheduled")
	return nil
}
