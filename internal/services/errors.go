// Package services defines the business logic for reminders: CRUD with
// validation for the HTTP API and the dispatch loop that delivers due
// reminders. This file centralizes service-level error values so that they
// can be consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrReminderNotFound indicates that the requested reminder does not exist.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrInvalidReminder is returned when a reminder payload fails validation.
	// It is usually wrapped with the offending field.
	ErrInvalidReminder = errors.New("invalid reminder")

	// ErrUnknownNotifyType is returned when a reminder names a notify type
	// outside the supported set, or one with no channel bound.
	ErrUnknownNotifyType = errors.New("unknown notify type")

	// ErrStore wraps persistence failures hit while dispatching a reminder.
	ErrStore = errors.New("store error")

	// ErrAlreadySent is returned by the dispatch loop when a reminder was
	// marked sent (or removed) by someone else between scan and mark.
	ErrAlreadySent = errors.New("reminder already sent or removed")
)
