// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and travel in the `code` field of every
// ErrorResponse. Generic codes mirror HTTP status semantics; the domain codes
// below them name reminder operations that failed for server-side reasons.
// Clients branch on the code, never on the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "unknown_notify_type",
//	  "message": "notify_type must be 'email' or 'discord'"
//	}
package handlers

import "github.com/tbourn/go-reminder-backend/internal/http/middleware"

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = middleware.ErrCodeRateLimited
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation        = "validation_failed"
	ErrCodeUnknownNotifyType = "unknown_notify_type"
	ErrCodeCreateFailed      = "create_failed"
	ErrCodeUpdateFailed      = "update_failed"
	ErrCodeDeleteFailed      = "delete_failed"
	ErrCodeListFailed        = "list_failed"
	ErrCodeScanFailed        = "scan_failed"
)
