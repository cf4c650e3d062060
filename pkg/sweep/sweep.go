// Package sweep runs the background jobs that act on assessment deadlines:
// reminder fan-out ahead of the cutoff and auto-submission of expired drafts.
//
// Both sweeps work in bounded batches with per-record isolation. A record
// that fails is logged and skipped, never aborting the batch, and only
// transient failures and version conflicts are retried. Business rejections
// such as an incomplete area are final for the cycle.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/notify"
	"github.com/siglalabs/sigla/pkg/observability"
	"github.com/siglalabs/sigla/pkg/store"
	"github.com/siglalabs/sigla/pkg/workflow"
)

const systemActor = "system:sweep"

// Config tunes sweep behavior. Zero values fall back to defaults.
type Config struct {
	// BatchSize caps how many records one run examines.
	BatchSize int
	// ReminderLead is how far ahead of the deadline reminders go out.
	ReminderLead time.Duration
	// PerSecond paces record processing; zero or negative disables pacing.
	PerSecond float64
	Retry     Policy
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = 72 * time.Hour
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = DefaultPolicy()
	}
	return c
}

// Sweeper owns both background jobs.
type Sweeper struct {
	store      store.Store
	machine    *workflow.Machine
	dispatcher *notify.Dispatcher
	limiter    *rate.Limiter
	meters     *observability.Provider
	cfg        Config
	clock      func() time.Time
	logger     *slog.Logger
}

// NewSweeper wires a sweeper. The dispatcher may be nil when no notification
// fan-out is wanted.
func NewSweeper(st store.Store, machine *workflow.Machine, dispatcher *notify.Dispatcher, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.PerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PerSecond), 1)
	}
	return &Sweeper{
		store:      st,
		machine:    machine,
		dispatcher: dispatcher,
		limiter:    limiter,
		cfg:        cfg,
		clock:      time.Now,
		logger:     logger.With("component", "sweep"),
	}
}

// WithClock overrides the clock for testing.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// WithMeters counts applied sweep actions on the telemetry provider.
func (s *Sweeper) WithMeters(p *observability.Provider) *Sweeper {
	s.meters = p
	return s
}

func (s *Sweeper) countAction(ctx context.Context, action, assessmentID string) {
	if s.meters == nil {
		return
	}
	s.meters.RecordSweepAction(ctx, observability.SweepAttrs(action, assessmentID)...)
}

// ReminderStats summarizes one reminder cycle.
type ReminderStats struct {
	Examined int
	Reminded int
	Failed   int
}

// RunReminders sends a deadline reminder to every editable assessment whose
// deadline falls inside the lead window and that has not been reminded yet.
// The sent marker persists before the event goes out, so a crashed run can
// at worst drop a reminder, never double-send one.
func (s *Sweeper) RunReminders(ctx context.Context) (ReminderStats, error) {
	var stats ReminderStats
	now := s.clock()
	cutoff := now.Add(s.cfg.ReminderLead)

	list, err := s.store.ListAssessments(ctx, store.AssessmentFilter{
		Statuses:        []assessment.Status{assessment.StatusDraft, assessment.StatusRework},
		DeadlineBefore:  &cutoff,
		ReminderNotSent: true,
		Limit:           s.cfg.BatchSize,
	})
	if err != nil {
		return stats, fmt.Errorf("listing assessments due a reminder: %w", err)
	}

	for _, a := range list {
		if err := s.limiter.Wait(ctx); err != nil {
			return stats, err
		}
		stats.Examined++
		if err := s.remind(ctx, a.ID, now); err != nil {
			stats.Failed++
			s.logger.WarnContext(ctx, "reminder failed",
				"assessment_id", a.ID, "error", err)
			continue
		}
		stats.Reminded++
		s.countAction(ctx, "reminder", a.ID)
	}

	s.logger.InfoContext(ctx, "reminder sweep done",
		"examined", stats.Examined, "reminded", stats.Reminded, "failed", stats.Failed)
	return stats, nil
}

func (s *Sweeper) remind(ctx context.Context, assessmentID string, now time.Time) error {
	var deadline time.Time
	err := s.withRetry(ctx, "remind:"+assessmentID, func() error {
		a, err := s.store.GetAssessment(ctx, assessmentID)
		if err != nil {
			return err
		}
		// The listing is a snapshot; eligibility can change under us.
		if a.ReminderSentAt != nil || !a.Status.Editable() || a.Deadline == nil {
			return nil
		}
		deadline = *a.Deadline
		a.ReminderSentAt = &now
		return s.store.SaveAssessment(ctx, a)
	})
	if err != nil || deadline.IsZero() {
		return err
	}

	ev := notify.NewEvent(notify.EventDeadlineReminder, assessmentID, now)
	ev.ActorID = systemActor
	ev.Payload = map[string]string{"deadline": deadline.Format(time.RFC3339)}
	s.dispatch(ctx, []notify.Event{ev})
	return nil
}

// AutoSubmitStats summarizes one auto-submission cycle.
type AutoSubmitStats struct {
	Examined       int
	AreasSubmitted int
	AreasSkipped   int
	Failed         int
}

// RunAutoSubmit submits every area of every editable assessment whose
// deadline has passed. Areas that fail completeness are skipped for good;
// the assessment is marked processed either way so the next cycle does not
// pick it up again.
func (s *Sweeper) RunAutoSubmit(ctx context.Context) (AutoSubmitStats, error) {
	var stats AutoSubmitStats
	now := s.clock()

	list, err := s.store.ListAssessments(ctx, store.AssessmentFilter{
		Statuses:         []assessment.Status{assessment.StatusDraft, assessment.StatusRework},
		DeadlineBefore:   &now,
		NotAutoSubmitted: true,
		Limit:            s.cfg.BatchSize,
	})
	if err != nil {
		return stats, fmt.Errorf("listing expired drafts: %w", err)
	}

	for _, a := range list {
		if err := s.limiter.Wait(ctx); err != nil {
			return stats, err
		}
		stats.Examined++
		submitted, skipped, err := s.autoSubmit(ctx, a.ID, now)
		stats.AreasSubmitted += submitted
		stats.AreasSkipped += skipped
		if err != nil {
			stats.Failed++
			s.logger.WarnContext(ctx, "auto-submit failed",
				"assessment_id", a.ID, "error", err)
			continue
		}
		if submitted > 0 {
			s.countAction(ctx, "auto_submit", a.ID)
		}
	}

	s.logger.InfoContext(ctx, "auto-submit sweep done",
		"examined", stats.Examined, "areas_submitted", stats.AreasSubmitted,
		"areas_skipped", stats.AreasSkipped, "failed", stats.Failed)
	return stats, nil
}

func (s *Sweeper) autoSubmit(ctx context.Context, assessmentID string, now time.Time) (submitted, skipped int, err error) {
	a, err := s.getAssessment(ctx, assessmentID)
	if err != nil {
		return 0, 0, err
	}
	if a.AutoSubmitted || !a.Status.Editable() {
		return 0, 0, nil
	}

	areaIDs := make([]string, 0, len(a.Areas))
	for areaID := range a.Areas {
		areaIDs = append(areaIDs, areaID)
	}
	sort.Strings(areaIDs)

	var events []notify.Event
	for _, areaID := range areaIDs {
		sub := a.Areas[areaID]
		if sub.Status != assessment.AreaDraft && sub.Status != assessment.AreaRework {
			continue
		}
		var evs []notify.Event
		serr := s.withRetry(ctx, "submit:"+assessmentID+":"+areaID, func() error {
			var e error
			evs, e = s.machine.SubmitArea(ctx, assessmentID, areaID, systemActor)
			return e
		})
		if serr != nil {
			// An incomplete area is a final business outcome for this
			// cycle; the submitter has to supply what is missing.
			if fault.IsBusiness(serr) {
				skipped++
				s.logger.InfoContext(ctx, "auto-submit skipped area",
					"assessment_id", assessmentID, "area_id", areaID, "reason", serr)
				continue
			}
			return submitted, skipped, serr
		}
		submitted++
		events = append(events, evs...)
	}

	if err := s.markAutoSubmitted(ctx, assessmentID); err != nil {
		return submitted, skipped, err
	}

	if submitted > 0 {
		ev := notify.NewEvent(notify.EventAutoSubmitted, assessmentID, now)
		ev.ActorID = systemActor
		ev.Payload = map[string]string{
			"areas_submitted": strconv.Itoa(submitted),
			"areas_skipped":   strconv.Itoa(skipped),
		}
		events = append(events, ev)
	}
	s.dispatch(ctx, events)
	return submitted, skipped, nil
}

func (s *Sweeper) getAssessment(ctx context.Context, id string) (*assessment.Assessment, error) {
	var a *assessment.Assessment
	err := s.withRetry(ctx, "get:"+id, func() error {
		var e error
		a, e = s.store.GetAssessment(ctx, id)
		return e
	})
	return a, err
}

func (s *Sweeper) markAutoSubmitted(ctx context.Context, id string) error {
	return s.withRetry(ctx, "mark:"+id, func() error {
		a, err := s.store.GetAssessment(ctx, id)
		if err != nil {
			return err
		}
		if a.AutoSubmitted {
			return nil
		}
		a.AutoSubmitted = true
		return s.store.SaveAssessment(ctx, a)
	})
}

func (s *Sweeper) dispatch(ctx context.Context, events []notify.Event) {
	if s.dispatcher == nil || len(events) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, events)
}

// withRetry retries fn on transient failures and version conflicts. The
// other fault kinds are deterministic rejections and return immediately.
// Version conflicts retry because a fresh read inside fn resolves them.
func (s *Sweeper) withRetry(ctx context.Context, key string, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.Retry.Backoff(key, attempt)):
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if fault.IsBusiness(err) && !fault.IsConflict(err) {
			return err
		}
	}
	return err
}
