// Package domain defines the persistence models for reminders and their
// recurrence rules. These types are mapped with GORM and form the core data
// layer of the reminder service.
package domain

import (
	"strings"
	"time"
)

// NotifyType selects the delivery channel of a reminder.
type NotifyType string

const (
	// NotifyEmail delivers the reminder as an email to NotifyTarget.
	NotifyEmail NotifyType = "email"
	// NotifyWebhook posts the reminder to the chat webhook URL in NotifyTarget.
	// The stored value stays "discord" for compatibility with existing rows.
	NotifyWebhook NotifyType = "discord"
)

// Valid reports whether t is one of the supported notify types.
func (t NotifyType) Valid() bool {
	switch t {
	case NotifyEmail, NotifyWebhook:
		return true
	}
	return false
}

// Recurrence is the cadence of a repeating reminder.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence normalizes s into a Recurrence. Empty or unknown values map
// to RecurrenceNone.
func ParseRecurrence(s string) Recurrence {
	switch r := Recurrence(strings.ToLower(strings.TrimSpace(s))); r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return r
	}
	return RecurrenceNone
}

// Next returns the due time of the occurrence following current.
//
// Daily and weekly add 1 and 7 calendar days. Monthly adds one calendar month
// with time.Time.AddDate, which normalizes days the target month lacks: Jan 31
// becomes Mar 3 (Mar 2 in a leap year) rather than clamping to the month end.
//
// The second result is false for RecurrenceNone and unknown cadences.
func (r Recurrence) Next(current time.Time) (time.Time, bool) {
	switch r {
	case RecurrenceDaily:
		return current.AddDate(0, 0, 1), true
	case RecurrenceWeekly:
		return current.AddDate(0, 0, 7), true
	case RecurrenceMonthly:
		return current.AddDate(0, 1, 0), true
	default:
		return time.Time{}, false
	}
}

// Reminder is a single occurrence of a possibly repeating notification.
//
// Fields:
//   - ID: autoincrement primary key assigned by the store.
//   - Title / Message: free text delivered to the target.
//   - NotifyType / NotifyTarget: channel selector and its address (email or webhook URL).
//   - RemindAt: absolute instant at which the occurrence becomes due (stored in UTC).
//   - Sent: flipped to true once a delivery for this occurrence succeeded.
//   - Recurrence / RecurrenceEnd: cadence and optional inclusive end of the chain.
//   - ParentID: root reminder of the chain; nil on the root itself.
type Reminder struct {
	ID            uint       `json:"id"             gorm:"primaryKey;autoIncrement"`
	Title         string     `json:"title"          gorm:"type:varchar(255);not null"`
	Message       string     `json:"message"        gorm:"type:text;not null"`
	NotifyType    NotifyType `json:"notify_type"    gorm:"type:varchar(16);not null;check:notify_type IN ('email','discord')"`
	NotifyTarget  string     `json:"notify_target"  gorm:"type:text;not null"`
	RemindAt      time.Time  `json:"remind_at"      gorm:"not null;index:idx_reminders_due,priority:2"`
	Sent          bool       `json:"sent"           gorm:"not null;default:false;index:idx_reminders_due,priority:1"`
	Recurrence    Recurrence `json:"recurrence"     gorm:"type:varchar(16);not null;default:'none';check:recurrence IN ('none','daily','weekly','monthly')"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
	ParentID      *uint      `json:"parent_id,omitempty" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Reminder.
func (Reminder) TableName() string { return "reminders" }

// IsDue reports whether the reminder is unsent and its due time is at or
// before asOf.
func (r *Reminder) IsDue(asOf time.Time) bool {
	return !r.Sent && !r.RemindAt.After(asOf)
}

// ChainRoot returns the id every occurrence spawned from r must reference.
func (r *Reminder) ChainRoot() uint {
	if r.ParentID != nil {
		return *r.ParentID
	}
	return r.ID
}

// NextOccurrence builds the unsent successor of r, or returns nil when r does
// not repeat or the next due time falls after RecurrenceEnd.
func (r *Reminder) NextOccurrence() *Reminder {
	next, ok := r.Recurrence.Next(r.RemindAt)
	if !ok {
		return nil
	}
	if r.RecurrenceEnd != nil && next.After(*r.RecurrenceEnd) {
		return nil
	}
	root := r.ChainRoot()
	var end *time.Time
	if r.RecurrenceEnd != nil {
		e := *r.RecurrenceEnd
		end = &e
	}
	return &Reminder{
		Title:         r.Title,
		Message:       r.Message,
		NotifyType:    r.NotifyType,
		NotifyTarget:  r.NotifyTarget,
		RemindAt:      next.UTC(),
		Recurrence:    r.Recurrence,
		RecurrenceEnd: end,
		ParentID:      &root,
	}
}
