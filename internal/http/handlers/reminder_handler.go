// Reminder HTTP handlers.
//
// This file exposes REST endpoints for reminder resources:
//   - GET    /reminders          (list, paginated, ETag support)
//   - POST   /reminders          (create, Idempotency-Key aware)
//   - GET    /reminders/{id}     (fetch one)
//   - PUT    /reminders/{id}     (full replace, re-arms the reminder)
//   - DELETE /reminders/{id}     (remove)
//   - POST   /reminders/check    (run one dispatch scan now)
//
// Handlers are transport-thin: they parse input, call the reminder service or
// dispatcher, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/domain"
	"github.com/tbourn/go-reminder-backend/internal/http/middleware"
	"github.com/tbourn/go-reminder-backend/internal/repo"
	"github.com/tbourn/go-reminder-backend/internal/services"
	"github.com/tbourn/go-reminder-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ReminderService defines reminder CRUD consumed by HTTP handlers.
type ReminderService interface {
	Create(ctx context.Context, in services.ReminderInput) (*domain.Reminder, error)
	Get(ctx context.Context, id uint) (*domain.Reminder, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Reminder, int64, error)
	Update(ctx context.Context, id uint, in services.ReminderInput) (*domain.Reminder, error)
	Delete(ctx context.Context, id uint) error
}

// DispatchRunner runs a single dispatch scan as of the given instant.
type DispatchRunner interface {
	RunOnce(ctx context.Context, asOf time.Time) (services.DispatchSummary, error)
}

//
// Handler wiring
//

// Handlers groups the reminder endpoints.
type Handlers struct {
	reminders  ReminderService
	dispatcher DispatchRunner

	// IdempotencyTTL is how long a create keyed by Idempotency-Key replays.
	IdempotencyTTL time.Duration
	// Now is the clock used for scans and idempotency records.
	Now func() time.Time
}

// New constructs Handlers bound to the reminder service and dispatcher.
func New(reminders ReminderService, dispatcher DispatchRunner) *Handlers {
	return &Handlers{
		reminders:      reminders,
		dispatcher:     dispatcher,
		IdempotencyTTL: 24 * time.Hour,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// db returns the store handle behind the concrete service, or nil when the
// service is a fake. ETags and idempotent replay need it and are skipped
// without it.
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.reminders.(*services.ReminderService); ok {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// ReminderRequest is the JSON payload for creating or replacing a reminder.
type ReminderRequest struct {
	Title        string `json:"title" example:"Pay rent"`
	Message      string `json:"message" example:"Transfer to landlord before noon"`
	NotifyType   string `json:"notify_type" enums:"email,discord" example:"email"`
	NotifyTarget string `json:"notify_target" example:"me@example.com"`
	// RemindAt is RFC 3339, or a datetime-local value (2006-01-02T15:04) read as UTC.
	RemindAt   string `json:"remind_at" example:"2025-03-01T09:00:00Z"`
	Recurrence string `json:"recurrence,omitempty" enums:"none,daily,weekly,monthly" example:"weekly"`
	// RecurrenceEnd is optional and accepts the same formats as RemindAt.
	RecurrenceEnd string `json:"recurrence_end,omitempty" example:"2025-06-01T00:00:00Z"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRemindersResponse wraps a page of reminders and pagination information.
type ListRemindersResponse struct {
	Reminders  []domain.Reminder `json:"reminders"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 and the zone-less forms browsers and
// SQLite produce; zone-less values are taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// toInput converts the request into service input, rejecting missing or
// malformed timestamps.
func (req ReminderRequest) toInput() (services.ReminderInput, error) {
	in := services.ReminderInput{
		Title:        req.Title,
		Message:      req.Message,
		NotifyType:   req.NotifyType,
		NotifyTarget: req.NotifyTarget,
		Recurrence:   req.Recurrence,
	}
	if strings.TrimSpace(req.RemindAt) == "" {
		return in, errors.New("remind_at is required")
	}
	at, err := parseTimestamp(req.RemindAt)
	if err != nil {
		return in, fmt.Errorf("remind_at: %w", err)
	}
	in.RemindAt = at
	if strings.TrimSpace(req.RecurrenceEnd) != "" {
		end, err := parseTimestamp(req.RecurrenceEnd)
		if err != nil {
			return in, fmt.Errorf("recurrence_end: %w", err)
		}
		in.RecurrenceEnd = &end
	}
	return in, nil
}

// bindReminder decodes the body into service input or writes a 400.
func bindReminder(c *gin.Context) (services.ReminderInput, bool) {
	var req ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return services.ReminderInput{}, false
	}
	in, err := req.toInput()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return in, false
	}
	return in, true
}

// reminderID parses the :id path parameter or writes a 400.
func reminderID(c *gin.Context) (uint, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reminder id must be a positive integer")
		return 0, false
	}
	return id, true
}

//
// Handlers
//

// ListReminders godoc
// @ID          listReminders
// @Summary     List reminders (paginated)
// @Description Returns reminders ordered by due time, earliest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Reminders
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"reminders:1:20:3:1700000000000000000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRemindersResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reminders [get]
func (h *Handlers) ListReminders(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if db := h.db(); db != nil {
		if count, maxTS, err := repo.RemindersStats(ctx, db); err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"reminders:%d:%d:%d:%d"`, page, pageSize, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.reminders.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListRemindersResponse{
		Reminders: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetReminder godoc
// @ID          getReminder
// @Summary     Get a reminder
// @Tags        Reminders
// @Produce     json
// @Param       id   path  int  true  "Reminder ID"  minimum(1)
// @Success     200  {object} domain.Reminder
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reminder not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reminders/{id} [get]
func (h *Handlers) GetReminder(c *gin.Context) {
	id, valid := reminderID(c)
	if !valid {
		return
	}
	r, err := h.reminders.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, r)
}

// CreateReminder godoc
// @ID          createReminder
// @Summary     Create a reminder
// @Description Stores an unsent reminder. Unknown or empty recurrence becomes "none".
// @Description With an Idempotency-Key header, a retried request returns the reminder created by the first one (200, Idempotency-Replayed: true).
// @Tags        Reminders
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       X-Client-ID      header  string  false "Client identity scoping the key (defaults to the caller IP)"
// @Param       body             body    handlers.ReminderRequest  true  "Reminder payload"
//
// @Success     201  {object}  domain.Reminder
// @Success     200  {object}  domain.Reminder  "Replayed result"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reminders [post]
func (h *Handlers) CreateReminder(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.db()
	key, hasKey := middleware.GetIdempotencyKey(c)
	clientID := middleware.ClientID(c)

	if hasKey && db != nil && middleware.IsReplay(c) {
		if prev := h.replay(ctx, db, clientID, key); prev != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	in, valid := bindReminder(c)
	if !valid {
		return
	}

	r, err := h.reminders.Create(ctx, in)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}

	if hasKey && db != nil {
		if _, err := repo.CreateIdempotency(ctx, db, clientID, key, r.ID, http.StatusCreated, h.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Uint("reminder_id", r.ID).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, r)
}

// replay returns the reminder recorded for (clientID, key), or nil when the
// record expired or its reminder has since been deleted.
func (h *Handlers) replay(ctx context.Context, db *gorm.DB, clientID, key string) *domain.Reminder {
	rec, err := repo.GetIdempotency(ctx, db, clientID, key, h.Now())
	if err != nil {
		return nil
	}
	prev, err := h.reminders.Get(ctx, rec.ReminderID)
	if err != nil {
		return nil
	}
	return prev
}

// UpdateReminder godoc
// @ID          updateReminder
// @Summary     Replace a reminder
// @Description Replaces every editable field and resets sent to false so the reminder fires again.
// @Tags        Reminders
// @Accept      json
// @Produce     json
// @Param       id    path  int                       true  "Reminder ID"  minimum(1)
// @Param       body  body  handlers.ReminderRequest  true  "Reminder payload"
// @Success     200  {object} domain.Reminder
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reminder not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reminders/{id} [put]
func (h *Handlers) UpdateReminder(c *gin.Context) {
	id, valid := reminderID(c)
	if !valid {
		return
	}
	in, valid := bindReminder(c)
	if !valid {
		return
	}
	r, err := h.reminders.Update(c.Request.Context(), id, in)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteReminder godoc
// @ID          deleteReminder
// @Summary     Delete a reminder
// @Tags        Reminders
// @Param       id  path  int  true  "Reminder ID"  minimum(1)
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reminder not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reminders/{id} [delete]
func (h *Handlers) DeleteReminder(c *gin.Context) {
	id, valid := reminderID(c)
	if !valid {
		return
	}
	if err := h.reminders.Delete(c.Request.Context(), id); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// CheckReminders godoc
// @ID          checkReminders
// @Summary     Dispatch due reminders now
// @Description Runs one scan: every unsent reminder due at the current time is delivered once. Intended for external cron triggers.
// @Tags        Reminders
// @Produce     json
// @Success     200  {object} services.DispatchSummary
// @Failure     500  {object} handlers.ErrorResponse "Due query failed"
// @Router      /reminders/check [post]
func (h *Handlers) CheckReminders(c *gin.Context) {
	sum, err := h.dispatcher.RunOnce(c.Request.Context(), h.Now())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeScanFailed, err.Error())
		return
	}
	lg := middleware.LoggerFrom(c)
	lg.Info().
		Int("checked", sum.Checked).
		Int("sent", sum.Sent).
		Int("failed", sum.Failed).
		Msg("manual reminder check")
	ok(c, http.StatusOK, sum)
}
