// Package notify carries workflow events to interested parties. Dispatch is
// strictly post-commit and fire-and-continue: a failing notifier is logged
// and skipped, it never rolls back the transition that produced the event.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAreaSubmitted       EventType = "area_submitted"
	EventAssessmentSubmitted EventType = "assessment_submitted"
	EventReworkRequested     EventType = "rework_requested"
	EventAreaApproved        EventType = "area_approved"
	EventAssessmentCompleted EventType = "assessment_completed"
	EventDeadlineReminder    EventType = "deadline_reminder"
	EventAutoSubmitted       EventType = "assessment_auto_submitted"
)

// Event is one thing that happened to an assessment.
type Event struct {
	ID           string            `json:"id"`
	Type         EventType         `json:"type"`
	AssessmentID string            `json:"assessment_id"`
	AreaID       string            `json:"area_id,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// NewEvent stamps an id onto an event missing one.
func NewEvent(t EventType, assessmentID string, occurredAt time.Time) Event {
	return Event{
		ID:           uuid.New().String(),
		Type:         t,
		AssessmentID: assessmentID,
		OccurredAt:   occurredAt,
	}
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Dispatcher fans events out to every registered notifier.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger.With("component", "notify"),
	}
}

// Dispatch delivers each event to each notifier. Errors are logged, counted,
// and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	for _, e := range events {
		for _, n := range d.notifiers {
			if err := n.Notify(ctx, e); err != nil {
				d.logger.WarnContext(ctx, "notifier failed",
					"event_type", e.Type,
					"assessment_id", e.AssessmentID,
					"error", err)
			}
		}
	}
}

// LogNotifier writes events to the structured log. The default sink.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify.log")}
}

func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	n.logger.InfoContext(ctx, "assessment event",
		"event_id", e.ID,
		"event_type", e.Type,
		"assessment_id", e.AssessmentID,
		"area_id", e.AreaID,
		"actor_id", e.ActorID)
	return nil
}

// Recorder collects events for assertions in tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Notify(ctx context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	out := make([]EventType, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*Recorder)(nil)
)
