// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (weak ETags) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/domain"
)

// RemindersStats returns the total number of reminders and the greatest
// UpdatedAt among them. When the table is empty, count is 0 and maxUpdatedAt
// is nil.
func RemindersStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Reminder{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Reminder{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// DueStats returns how many reminders are currently due at asOf, used by the
// health endpoint to expose scheduler backlog.
func DueStats(ctx context.Context, db *gorm.DB, asOf time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Reminder{}).
		Where("remind_at <= ? AND sent = ?", asOf.UTC(), false).
		Count(&n).Error
	return n, err
}
