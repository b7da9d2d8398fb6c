package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-backend/internal/domain"
	"github.com/tbourn/go-reminder-backend/internal/notify"
)

// ----- Fake store -----

// memStore is an in-memory DispatchRepo with the same conditional mark
// semantics as the SQL store.
type memStore struct {
	mu     sync.Mutex
	rows   map[uint]*domain.Reminder
	nextID uint

	listErr   error
	markErr   error
	createErr error

	listCalls int
	created   []domain.Reminder
}

func newMemStore(rs ...domain.Reminder) *memStore {
	s := &memStore{rows: map[uint]*domain.Reminder{}}
	for i := range rs {
		r := rs[i]
		if r.ID == 0 {
			s.nextID++
			r.ID = s.nextID
		} else if r.ID > s.nextID {
			s.nextID = r.ID
		}
		s.rows[r.ID] = &r
	}
	return s
}

func (s *memStore) ListDueReminders(ctx context.Context, db *gorm.DB, asOf time.Time) ([]domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Reminder
	for _, r := range s.rows {
		if r.IsDue(asOf) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].RemindAt.Before(out[j].RemindAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) MarkReminderSent(ctx context.Context, db *gorm.DB, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	r, ok := s.rows[id]
	if !ok || r.Sent {
		return gorm.ErrRecordNotFound
	}
	r.Sent = true
	return nil
}

func (s *memStore) CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	r.ID = s.nextID
	cp := *r
	s.rows[r.ID] = &cp
	s.created = append(s.created, cp)
	return nil
}

func (s *memStore) get(id uint) domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

// ----- Fake channels -----

type recordingChannel struct {
	mu    sync.Mutex
	calls []string
	err   func(target string) error
}

func (c *recordingChannel) Deliver(ctx context.Context, target, title, message string) error {
	c.mu.Lock()
	c.calls = append(c.calls, target)
	c.mu.Unlock()
	if c.err != nil {
		return c.err(target)
	}
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestDispatcher(store DispatchRepo, email, webhook notify.Channel) *Dispatcher {
	d := NewDispatcher(nil, store, notify.NewRegistry(email, webhook))
	d.Logger = zerolog.Nop()
	return d
}

var baseNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func emailReminder(title string, at time.Time) domain.Reminder {
	return domain.Reminder{
		Title: title, Message: "msg", NotifyType: domain.NotifyEmail,
		NotifyTarget: title + "@example.test", RemindAt: at, Recurrence: domain.RecurrenceNone,
	}
}

// ----- Tests -----

func TestRunOnce_DailyRecurring_SpawnsOneSuccessor(t *testing.T) {
	end := baseNow.Add(72 * time.Hour)
	orig := emailReminder("standup", baseNow.Add(-time.Hour))
	orig.Recurrence = domain.RecurrenceDaily
	orig.RecurrenceEnd = &end
	store := newMemStore(orig)
	ch := &recordingChannel{}

	sum, err := newTestDispatcher(store, ch, nil).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Checked != 1 || sum.Sent != 1 || sum.Failed != 0 || len(sum.Errors) != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !store.get(1).Sent {
		t.Fatalf("original should be marked sent")
	}
	if len(store.created) != 1 {
		t.Fatalf("expected exactly one successor, got %d", len(store.created))
	}
	next := store.created[0]
	if !next.RemindAt.Equal(orig.RemindAt.AddDate(0, 0, 1)) || next.Sent {
		t.Fatalf("unexpected successor: %+v", next)
	}
	if next.ParentID == nil || *next.ParentID != 1 {
		t.Fatalf("successor parent_id should be 1, got %v", next.ParentID)
	}
	if next.RecurrenceEnd == nil || !next.RecurrenceEnd.Equal(end) {
		t.Fatalf("successor should inherit recurrence_end, got %v", next.RecurrenceEnd)
	}
}

func TestRunOnce_EmailWithoutCredentials_FailsWithoutSpawn(t *testing.T) {
	orig := emailReminder("pay", baseNow.Add(-time.Minute))
	orig.Recurrence = domain.RecurrenceWeekly
	store := newMemStore(orig)

	d := newTestDispatcher(store, notify.NewEmail(notify.EmailConfig{}), nil)
	sum, err := d.RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Checked != 1 || sum.Sent != 0 || sum.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !strings.Contains(sum.Errors[0].Error, "not configured") {
		t.Fatalf("expected configuration error, got %q", sum.Errors[0].Error)
	}
	if store.get(1).Sent {
		t.Fatalf("reminder must remain unsent")
	}
	if len(store.created) != 0 {
		t.Fatalf("no successor may be spawned, got %d", len(store.created))
	}
}

func TestRunOnce_WebhookRateLimitedThenOK_MarksSent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := notify.NewWebhook(notify.WebhookConfig{
		MaxAttempts: 3, BaseDelay: time.Millisecond, FailureBackoff: time.Millisecond,
		MaxDelay: 10 * time.Millisecond, AttemptTimeout: time.Second,
	}, srv.Client())

	r := domain.Reminder{
		Title: "deploy", Message: "ship it", NotifyType: domain.NotifyWebhook,
		NotifyTarget: srv.URL, RemindAt: baseNow.Add(-time.Second), Recurrence: domain.RecurrenceNone,
	}
	store := newMemStore(r)

	sum, err := newTestDispatcher(store, nil, wh).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 webhook attempts, got %d", calls)
	}
	if !store.get(1).Sent {
		t.Fatalf("reminder should be sent")
	}
}

func TestRunOnce_OneFailsOneSucceeds(t *testing.T) {
	ok := emailReminder("ok", baseNow.Add(-2*time.Minute))
	bad := emailReminder("bad", baseNow.Add(-time.Minute))
	store := newMemStore(ok, bad)
	ch := &recordingChannel{err: func(target string) error {
		if strings.HasPrefix(target, "bad") {
			return &notify.DeliveryError{Channel: "email", Message: "mailbox unavailable"}
		}
		return nil
	}}

	sum, err := newTestDispatcher(store, ch, nil).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Checked != 2 || sum.Sent != 1 || sum.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Errors) != 1 || sum.Errors[0].ID != 2 || sum.Errors[0].Title != "bad" {
		t.Fatalf("unexpected errors: %+v", sum.Errors)
	}
	if !store.get(1).Sent || store.get(2).Sent {
		t.Fatalf("only the successful reminder should be sent")
	}
}

func TestRunOnce_OneDeliveryPerReminder_AndSentIsFinal(t *testing.T) {
	store := newMemStore(
		emailReminder("a", baseNow.Add(-3*time.Minute)),
		emailReminder("b", baseNow.Add(-2*time.Minute)),
		emailReminder("future", baseNow.Add(time.Minute)),
	)
	ch := &recordingChannel{}
	d := newTestDispatcher(store, ch, nil)

	sum, err := d.RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Checked != 2 || ch.count() != 2 {
		t.Fatalf("expected 2 deliveries for 2 due reminders, got summary=%+v calls=%d", sum, ch.count())
	}
	if ch.calls[0] != "a@example.test" || ch.calls[1] != "b@example.test" {
		t.Fatalf("expected due order, got %v", ch.calls)
	}

	sum2, err := d.RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if sum2.Checked != 0 || ch.count() != 2 {
		t.Fatalf("sent reminders must not be re-attempted: %+v calls=%d", sum2, ch.count())
	}
}

func TestRunOnce_UnknownNotifyType_RecordedAndBatchContinues(t *testing.T) {
	odd := emailReminder("odd", baseNow.Add(-2*time.Minute))
	odd.NotifyType = "sms"
	store := newMemStore(odd, emailReminder("fine", baseNow.Add(-time.Minute)))
	ch := &recordingChannel{}

	sum, err := newTestDispatcher(store, ch, nil).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Failed != 1 || sum.Sent != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !strings.Contains(sum.Errors[0].Error, ErrUnknownNotifyType.Error()) {
		t.Fatalf("expected unknown notify type error, got %q", sum.Errors[0].Error)
	}
}

func TestRunOnce_DueQueryFailure_Aborts(t *testing.T) {
	store := newMemStore(emailReminder("x", baseNow.Add(-time.Minute)))
	store.listErr = errors.New("db down")
	ch := &recordingChannel{}

	sum, err := newTestDispatcher(store, ch, nil).RunOnce(context.Background(), baseNow)
	if err == nil || !errors.Is(err, store.listErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if sum.Checked != 0 || ch.count() != 0 {
		t.Fatalf("nothing should be processed: %+v calls=%d", sum, ch.count())
	}
}

func TestRunOnce_MarkFailure_NoSuccessor(t *testing.T) {
	r := emailReminder("m", baseNow.Add(-time.Minute))
	r.Recurrence = domain.RecurrenceDaily
	store := newMemStore(r)
	store.markErr = errors.New("disk full")

	sum, err := newTestDispatcher(store, &recordingChannel{}, nil).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Failed != 1 || sum.Sent != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !strings.Contains(sum.Errors[0].Error, "disk full") {
		t.Fatalf("expected store error text, got %q", sum.Errors[0].Error)
	}
	if len(store.created) != 0 {
		t.Fatalf("no successor after a failed mark")
	}
}

func TestRunOnce_SuccessorInsertFailure_StillCountsSent(t *testing.T) {
	r := emailReminder("s", baseNow.Add(-time.Minute))
	r.Recurrence = domain.RecurrenceMonthly
	store := newMemStore(r)
	store.createErr = errors.New("insert failed")

	sum, err := newTestDispatcher(store, &recordingChannel{}, nil).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 0 {
		t.Fatalf("delivered and marked reminder must count as sent: %+v", sum)
	}
	if !store.get(1).Sent {
		t.Fatalf("original should be marked sent")
	}
}

func TestRunOnce_ChainSharesRootAndTerminates(t *testing.T) {
	start := baseNow.Add(-time.Hour)
	end := start.AddDate(0, 0, 14) // inclusive: room for two weekly successors
	root := emailReminder("weekly", start)
	root.Recurrence = domain.RecurrenceWeekly
	root.RecurrenceEnd = &end
	store := newMemStore(root)
	d := newTestDispatcher(store, &recordingChannel{}, nil)

	asOf := baseNow
	for i := 0; i < 4; i++ {
		if _, err := d.RunOnce(context.Background(), asOf); err != nil {
			t.Fatalf("RunOnce #%d: %v", i, err)
		}
		asOf = asOf.AddDate(0, 0, 7)
	}

	if len(store.created) != 2 {
		t.Fatalf("expected 2 successors before recurrence_end, got %d", len(store.created))
	}
	for _, c := range store.created {
		if c.ParentID == nil || *c.ParentID != 1 {
			t.Fatalf("every successor must reference root 1, got %v", c.ParentID)
		}
		if c.RemindAt.After(end) {
			t.Fatalf("successor %v is after recurrence_end %v", c.RemindAt, end)
		}
	}
	if !store.created[1].RemindAt.Equal(end) {
		t.Fatalf("last occurrence should land on recurrence_end, got %v", store.created[1].RemindAt)
	}
}

// Two overlapping scans both select the same due reminder. Both deliver (the
// acknowledged duplicate send) but only the first mark wins, so the loser is
// reported as failed and exactly one successor exists.
func TestRunOnce_OverlappingScans_SingleSuccessor(t *testing.T) {
	r := emailReminder("race", baseNow.Add(-time.Minute))
	r.Recurrence = domain.RecurrenceDaily
	store := newMemStore(r)

	var deliveries int32
	var inner DispatchSummary
	var innerErr error
	var other *Dispatcher

	ch := notify.ChannelFunc(func(ctx context.Context, target, title, message string) error {
		if atomic.AddInt32(&deliveries, 1) == 1 {
			// The second scan starts while the first is mid-delivery.
			inner, innerErr = other.RunOnce(ctx, baseNow)
		}
		return nil
	})
	first := newTestDispatcher(store, ch, nil)
	other = newTestDispatcher(store, ch, nil)

	outer, err := first.RunOnce(context.Background(), baseNow)
	if err != nil || innerErr != nil {
		t.Fatalf("RunOnce errors: outer=%v inner=%v", err, innerErr)
	}
	if deliveries != 2 {
		t.Fatalf("both scans deliver, got %d deliveries", deliveries)
	}
	if inner.Sent != 1 {
		t.Fatalf("inner scan should win the mark: %+v", inner)
	}
	if outer.Failed != 1 || !strings.Contains(outer.Errors[0].Error, ErrAlreadySent.Error()) {
		t.Fatalf("outer scan should report the lost race: %+v", outer)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected exactly one successor, got %d", len(store.created))
	}
}

func TestDispatchSummary_JSONShape(t *testing.T) {
	store := newMemStore()
	sum, err := newTestDispatcher(store, &recordingChannel{}, nil).RunOnce(context.Background(), baseNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	b, err := json.Marshal(sum)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(b); got != `{"checked":0,"sent":0,"failed":0,"errors":[]}` {
		t.Fatalf("unexpected JSON: %s", got)
	}
}
