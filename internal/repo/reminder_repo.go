// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Reminder
// model: CRUD used by the HTTP API and the three operations the dispatch
// engine consumes (due scan, mark sent, insert next occurrence).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - When a reminder is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateReminder inserts r and fills in its generated ID. RemindAt and
// RecurrenceEnd are stored in UTC.
func CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) error {
	r.RemindAt = r.RemindAt.UTC()
	if r.RecurrenceEnd != nil {
		end := r.RecurrenceEnd.UTC()
		r.RecurrenceEnd = &end
	}
	if r.Recurrence == "" {
		r.Recurrence = domain.RecurrenceNone
	}
	return db.WithContext(ctx).Create(r).Error
}

// ListReminders returns all reminders ordered by due time ascending.
func ListReminders(ctx context.Context, db *gorm.DB) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Order("remind_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// CountReminders returns the total number of reminders.
func CountReminders(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Reminder{}).Count(&total).Error
	return total, err
}

// ListRemindersPage returns a page of reminders ordered by due time ascending.
// The caller computes offset and limit (e.g., (page-1)*pageSize).
func ListRemindersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Order("remind_at asc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetReminder fetches a single reminder by id or returns ErrNotFound.
func GetReminder(ctx context.Context, db *gorm.DB, id uint) (*domain.Reminder, error) {
	var r domain.Reminder
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReminder replaces the editable fields of reminder id with those of r
// and resets sent to false so the edited reminder fires again.
func UpdateReminder(ctx context.Context, db *gorm.DB, id uint, r *domain.Reminder) error {
	var end any
	if r.RecurrenceEnd != nil {
		end = r.RecurrenceEnd.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":          r.Title,
			"message":        r.Message,
			"notify_type":    r.NotifyType,
			"notify_target":  r.NotifyTarget,
			"remind_at":      r.RemindAt.UTC(),
			"sent":           false,
			"recurrence":     r.Recurrence,
			"recurrence_end": end,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReminder removes reminder id, returning ErrNotFound if it is missing.
func DeleteReminder(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Reminder{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueReminders returns every unsent reminder whose remind_at is at or
// before asOf, earliest first.
func ListDueReminders(ctx context.Context, db *gorm.DB, asOf time.Time) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Where("remind_at <= ? AND sent = ?", asOf.UTC(), false).
		Order("remind_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// MarkReminderSent flips sent to true for reminder id. The update only
// matches unsent rows, so a reminder that was deleted or already marked by a
// concurrent scan yields ErrNotFound.
func MarkReminderSent(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND sent = ?", id, false).
		Update("sent", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
