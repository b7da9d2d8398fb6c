package domain

import (
	"testing"
	"time"
)

func TestTableName(t *testing.T) {
	if (Reminder{}).TableName() != "reminders" {
		t.Fatalf("Reminder.TableName() = %q; want %q", (Reminder{}).TableName(), "reminders")
	}
}

func TestNotifyType_Valid(t *testing.T) {
	for _, ok := range []NotifyType{NotifyEmail, NotifyWebhook} {
		if !ok.Valid() {
			t.Errorf("%q should be valid", ok)
		}
	}
	for _, bad := range []NotifyType{"", "sms", "Email"} {
		if bad.Valid() {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestParseRecurrence(t *testing.T) {
	cases := map[string]Recurrence{
		"":          RecurrenceNone,
		"none":      RecurrenceNone,
		"daily":     RecurrenceDaily,
		" Weekly ":  RecurrenceWeekly,
		"MONTHLY":   RecurrenceMonthly,
		"yearly":    RecurrenceNone,
		"fortnight": RecurrenceNone,
	}
	for in, want := range cases {
		if got := ParseRecurrence(in); got != want {
			t.Errorf("ParseRecurrence(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestRecurrenceNext(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		r    Recurrence
		want time.Time
		ok   bool
	}{
		{RecurrenceDaily, time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC), true},
		{RecurrenceWeekly, time.Date(2025, 3, 21, 9, 30, 0, 0, time.UTC), true},
		{RecurrenceMonthly, time.Date(2025, 4, 14, 9, 30, 0, 0, time.UTC), true},
		{RecurrenceNone, time.Time{}, false},
		{Recurrence("hourly"), time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := tc.r.Next(base)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Errorf("%q.Next(%v) = (%v, %v); want (%v, %v)", tc.r, base, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRecurrenceNext_MonthlyRollover(t *testing.T) {
	cases := []struct {
		in, want time.Time
	}{
		// Day-of-month preserved when the next month has it.
		{time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC)},
		// Jan 31 -> "Feb 31" normalizes into March.
		{time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)},
		// Mar 31 -> "Apr 31" -> May 1.
		{time.Date(2025, 3, 31, 8, 0, 0, 0, time.UTC), time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)},
		// Year boundary.
		{time.Date(2025, 12, 10, 8, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := RecurrenceMonthly.Next(tc.in)
		if !ok || !got.Equal(tc.want) {
			t.Errorf("monthly Next(%v) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestRecurrenceNext_StrictlyLater(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range []Recurrence{RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly} {
		next, ok := r.Next(base)
		if !ok || !next.After(base) {
			t.Fatalf("%q.Next should be strictly after %v, got %v", r, base, next)
		}
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	r := &Reminder{RemindAt: now}
	if !r.IsDue(now) {
		t.Fatalf("reminder at exactly now should be due")
	}
	r.RemindAt = now.Add(time.Second)
	if r.IsDue(now) {
		t.Fatalf("future reminder should not be due")
	}
	r.RemindAt = now.Add(-time.Hour)
	r.Sent = true
	if r.IsDue(now) {
		t.Fatalf("sent reminder should not be due")
	}
}

func TestNextOccurrence_RootAndCopy(t *testing.T) {
	at := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	end := at.Add(72 * time.Hour)
	r := &Reminder{
		ID:            10,
		Title:         "standup",
		Message:       "daily sync",
		NotifyType:    NotifyWebhook,
		NotifyTarget:  "https://example.test/hook",
		RemindAt:      at,
		Sent:          true,
		Recurrence:    RecurrenceDaily,
		RecurrenceEnd: &end,
	}

	next := r.NextOccurrence()
	if next == nil {
		t.Fatalf("expected a successor")
	}
	if next.ID != 0 || next.Sent {
		t.Fatalf("successor must be a fresh unsent row: %+v", next)
	}
	if !next.RemindAt.Equal(at.AddDate(0, 0, 1)) {
		t.Fatalf("RemindAt = %v; want %v", next.RemindAt, at.AddDate(0, 0, 1))
	}
	if next.ParentID == nil || *next.ParentID != 10 {
		t.Fatalf("ParentID should point at the root (10), got %v", next.ParentID)
	}
	if next.Title != r.Title || next.Message != r.Message || next.NotifyType != r.NotifyType ||
		next.NotifyTarget != r.NotifyTarget || next.Recurrence != r.Recurrence {
		t.Fatalf("successor should copy reminder content: %+v", next)
	}
	if next.RecurrenceEnd == nil || !next.RecurrenceEnd.Equal(end) || next.RecurrenceEnd == r.RecurrenceEnd {
		t.Fatalf("successor should carry its own copy of RecurrenceEnd")
	}

	// Third link in the chain still points at the root, not at its predecessor.
	next.ID = 11
	third := next.NextOccurrence()
	if third == nil || third.ParentID == nil || *third.ParentID != 10 {
		t.Fatalf("chain must share the root id, got %+v", third)
	}
}

func TestNextOccurrence_StopsAtRecurrenceEnd(t *testing.T) {
	at := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)

	// End exactly on the next occurrence is inclusive.
	end := at.AddDate(0, 0, 7)
	r := &Reminder{ID: 1, RemindAt: at, Recurrence: RecurrenceWeekly, RecurrenceEnd: &end}
	if r.NextOccurrence() == nil {
		t.Fatalf("next occurrence equal to RecurrenceEnd should be created")
	}

	end = at.AddDate(0, 0, 6)
	if r.NextOccurrence() != nil {
		t.Fatalf("next occurrence past RecurrenceEnd must not be created")
	}

	none := &Reminder{ID: 2, RemindAt: at, Recurrence: RecurrenceNone}
	if none.NextOccurrence() != nil {
		t.Fatalf("non-recurring reminder has no successor")
	}
}
