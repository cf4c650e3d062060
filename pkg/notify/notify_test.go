package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(ctx context.Context, e Event) error {
	f.calls++
	return errors.New("smtp down")
}

func TestDispatchContinuesPastFailures(t *testing.T) {
	bad := &failingNotifier{}
	rec := &Recorder{}
	d := NewDispatcher(nil, bad, rec)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		NewEvent(EventAreaSubmitted, "asm-1", now),
		NewEvent(EventAssessmentSubmitted, "asm-1", now),
	}
	d.Dispatch(context.Background(), events)

	if bad.calls != 2 {
		t.Errorf("failing notifier called %d times, want 2", bad.calls)
	}
	if len(rec.Events) != 2 {
		t.Fatalf("recorder saw %d events, want 2 despite earlier failures", len(rec.Events))
	}
	if rec.Types()[1] != EventAssessmentSubmitted {
		t.Errorf("event order lost: %v", rec.Types())
	}
}

func TestNewEventStampsID(t *testing.T) {
	e := NewEvent(EventReworkRequested, "asm-1", time.Now())
	if e.ID == "" {
		t.Error("event id missing")
	}
	if e.Type != EventReworkRequested || e.AssessmentID != "asm-1" {
		t.Errorf("event fields wrong: %+v", e)
	}
}
