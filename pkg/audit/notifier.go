package audit

import (
	"context"

	"github.com/siglalabs/sigla/pkg/notify"
)

// EventSink adapts a Trail to the notifier interface, so assessment events
// dispatched after a transition also land in the chain.
type EventSink struct {
	trail *Trail
}

// NewEventSink creates a sink appending to t.
func NewEventSink(t *Trail) *EventSink {
	return &EventSink{trail: t}
}

func (s *EventSink) Notify(ctx context.Context, e notify.Event) error {
	kind := KindTransition
	if e.Type == notify.EventReworkRequested {
		kind = KindRework
	}
	_, err := s.trail.Append(kind, e.AssessmentID, e.ActorID, string(e.Type), e.Payload)
	return err
}

var _ notify.Notifier = (*EventSink)(nil)
