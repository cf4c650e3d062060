// Package workflow drives the assessment lifecycle: draft, submission,
// review, the single rework cycle, and completion. Every transition runs
// inside a store transaction and returns the events to dispatch after
// commit.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/completeness"
	"github.com/siglalabs/sigla/pkg/evidence"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/notify"
	"github.com/siglalabs/sigla/pkg/observability"
	"github.com/siglalabs/sigla/pkg/store"
)

// IncompleteError carries the completeness report behind a blocked
// submission so callers can show the submitter exactly what is missing.
type IncompleteError struct {
	Report completeness.Report
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d required field(s) missing", len(e.Report.Missing))
}

// Machine owns all assessment state transitions.
type Machine struct {
	store   store.Store
	checker *completeness.Checker
	ledger  evidence.Ledger
	meters  *observability.Provider
	clock   func() time.Time
	logger  *slog.Logger
}

// NewMachine builds the state machine. ledger may be nil when no file
// evidence is tracked; file fields then count only through answered values.
func NewMachine(st store.Store, checker *completeness.Checker, ledger evidence.Ledger, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = completeness.NewChecker(logger)
	}
	return &Machine{
		store:   st,
		checker: checker,
		ledger:  ledger,
		clock:   time.Now,
		logger:  logger.With("component", "workflow"),
	}
}

// WithClock overrides the time source, for tests.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// WithMeters counts committed transitions on the telemetry provider.
func (m *Machine) WithMeters(p *observability.Provider) *Machine {
	m.meters = p
	return m
}

// countTransitions records committed workflow events. Metrics never gate a
// transition.
func (m *Machine) countTransitions(ctx context.Context, events []notify.Event) {
	if m.meters == nil {
		return
	}
	for _, e := range events {
		m.meters.RecordTransition(ctx, observability.TransitionAttrs(e.AssessmentID, string(e.Type), e.ActorID)...)
	}
}

// Create opens a draft assessment covering the given governance areas.
func (m *Machine) Create(ctx context.Context, barangayID, periodID string, areaIDs []string, deadline *time.Time) (*assessment.Assessment, error) {
	if len(areaIDs) == 0 {
		return nil, fault.Dataf("assessment needs at least one governance area")
	}
	a := assessment.New(uuid.New().String(), barangayID, periodID, areaIDs, m.clock().UTC())
	a.Deadline = deadline
	if err := m.store.CreateAssessment(ctx, a); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "assessment created",
		"assessment_id", a.ID, "barangay_id", barangayID, "period_id", periodID)
	return a, nil
}

// SaveResponse writes a BLGU edit. Writes are refused once the assessment or
// the response's area has left an editable state.
func (m *Machine) SaveResponse(ctx context.Context, r *assessment.Response) error {
	return m.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, r.AssessmentID)
		if err != nil {
			return err
		}
		if !a.Status.Editable() {
			return fault.Statef("assessment is locked in %s", a.Status).WithRef(a.ID)
		}
		sub, ok := a.Areas[r.AreaID]
		if !ok {
			return fault.NotFoundf("unknown governance area %q", r.AreaID).WithRef(a.ID)
		}
		if sub.Status != assessment.AreaDraft && sub.Status != assessment.AreaRework {
			return fault.Statef("area %s is locked in %s", r.AreaID, sub.Status).WithRef(a.ID)
		}
		r.UpdatedAt = m.clock().UTC()
		return tx.SaveResponse(ctx, r)
	})
}

// SubmitArea submits one governance area. The completeness gate must pass;
// the first area submitted stamps the overall submitted_at; once every area
// is in and none is flagged for rework the whole assessment flips to
// submitted.
func (m *Machine) SubmitArea(ctx context.Context, assessmentID, areaID, actor string) ([]notify.Event, error) {
	var events []notify.Event
	err := m.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, assessmentID)
		if err != nil {
			return err
		}
		if !a.Status.Editable() {
			return fault.Statef("assessment is locked in %s", a.Status).WithRef(a.ID)
		}
		sub, ok := a.Areas[areaID]
		if !ok {
			return fault.NotFoundf("unknown governance area %q", areaID).WithRef(a.ID)
		}
		if sub.Status != assessment.AreaDraft && sub.Status != assessment.AreaRework {
			return fault.Statef("area %s already submitted", areaID).WithRef(a.ID)
		}
		wasRework := sub.Status == assessment.AreaRework

		responses, err := tx.ListAreaResponses(ctx, assessmentID, areaID)
		if err != nil {
			return err
		}
		report, err := m.areaCompleteness(ctx, tx, a, responses, wasRework)
		if err != nil {
			return err
		}
		if !report.Complete {
			return fault.Statef("area %s submission blocked", areaID).
				WithRef(a.ID).
				WithCause(&IncompleteError{Report: report})
		}

		now := m.clock().UTC()
		sub.Status = assessment.AreaSubmitted
		sub.SubmittedAt = &now
		sub.IsResubmission = wasRework
		a.Areas[areaID] = sub

		if a.SubmittedAt == nil {
			a.SubmittedAt = &now
		}

		if wasRework {
			// stale review markers drop only where the reviewer left feedback
			for _, r := range responses {
				if r.ReviewerFeedback != "" && r.ReviewerValidated {
					r.ReviewerValidated = false
					r.UpdatedAt = now
					if err := tx.SaveResponse(ctx, r); err != nil {
						return err
					}
				}
			}
		}

		events = append(events, m.event(notify.EventAreaSubmitted, a.ID, areaID, actor, now))

		if a.AllAreasNonDraft() && !a.AnyAreaInRework() {
			switch a.Status {
			case assessment.StatusDraft:
				a.Status = assessment.StatusSubmitted
				events = append(events, m.event(notify.EventAssessmentSubmitted, a.ID, "", actor, now))
			case assessment.StatusRework:
				a.Status = assessment.StatusSubmitted
				a.ReworkResolvedAt = &now
				e := m.event(notify.EventAssessmentSubmitted, a.ID, "", actor, now)
				e.Payload = map[string]string{"resubmission": "true"}
				events = append(events, e)
			}
		}

		a.UpdatedAt = now
		return tx.SaveAssessment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	m.countTransitions(ctx, events)
	m.logger.InfoContext(ctx, "area submitted", "assessment_id", assessmentID, "area_id", areaID)
	return events, nil
}

// areaCompleteness runs the completeness gate over an area's responses.
// During a rework resubmission, indicators the reviewer commented on need
// evidence uploaded after the rework request; untouched indicators keep
// their original uploads.
func (m *Machine) areaCompleteness(ctx context.Context, tx store.Store, a *assessment.Assessment, responses []*assessment.Response, wasRework bool) (completeness.Report, error) {
	inputs := make([]completeness.ResponseInput, 0, len(responses))
	for _, r := range responses {
		ind, err := tx.GetIndicator(ctx, r.IndicatorID)
		if err != nil {
			return completeness.Report{}, err
		}

		uploads := completeness.NoUploads
		if m.ledger != nil {
			var reworkAt *time.Time
			if wasRework {
				reworkAt = a.ReworkRequestedAt
			}
			hasFeedback := r.ReviewerFeedback != ""
			assessmentID, indicatorID := a.ID, r.IndicatorID
			uploads = completeness.UploadPresenceFunc(func(fieldID string) bool {
				ok, err := evidence.HasAcceptableUpload(ctx, m.ledger, evidence.Query{
					AssessmentID: assessmentID,
					IndicatorID:  indicatorID,
					FieldID:      fieldID,
				}, reworkAt, hasFeedback)
				return err == nil && ok
			})
		}

		inputs = append(inputs, completeness.ResponseInput{
			Indicator: ind,
			Data:      r.Data,
			Uploads:   uploads,
		})
	}
	return m.checker.CheckAll(inputs), nil
}

// RequestRework sends an assessment back to the BLGU. Exactly one rework
// cycle is permitted for the life of the assessment; the second request is
// refused no matter how much time has passed.
func (m *Machine) RequestRework(ctx context.Context, assessmentID, reviewer, comments string, areaIDs []string, feedback map[string]string) ([]notify.Event, error) {
	var events []notify.Event
	err := m.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, assessmentID)
		if err != nil {
			return err
		}
		// checked before the state guard: a spent cycle always reads as the limit
		if a.ReworkCount != 0 {
			return fault.Statef("rework limit reached").WithRef(a.ID)
		}
		if a.Status != assessment.StatusSubmitted && a.Status != assessment.StatusInReview {
			return fault.Statef("rework cannot be requested from %s", a.Status).WithRef(a.ID)
		}

		targets := areaIDs
		if len(targets) == 0 {
			targets = make([]string, 0, len(a.Areas))
			for areaID := range a.Areas {
				targets = append(targets, areaID)
			}
			sort.Strings(targets)
		}
		for _, areaID := range targets {
			if _, ok := a.Areas[areaID]; !ok {
				return fault.NotFoundf("unknown governance area %q", areaID).WithRef(a.ID)
			}
		}

		now := m.clock().UTC()
		a.ReworkCount = 1
		a.Status = assessment.StatusRework
		a.ReworkRequestedAt = &now
		a.ReworkRequestedBy = reviewer
		a.ReworkComments = comments
		a.ReworkResolvedAt = nil

		for _, areaID := range targets {
			sub := a.Areas[areaID]
			sub.Status = assessment.AreaRework
			a.Areas[areaID] = sub
			// a fresh look is owed after resubmission
			delete(a.AreaApproved, areaID)
		}

		for responseID, fb := range feedback {
			r, err := tx.GetResponse(ctx, responseID)
			if err != nil {
				return err
			}
			if r.AssessmentID != assessmentID {
				return fault.Dataf("response %s belongs to another assessment", responseID).WithRef(a.ID)
			}
			r.ReviewerFeedback = fb
			r.ReviewerValidated = true
			r.UpdatedAt = now
			if err := tx.SaveResponse(ctx, r); err != nil {
				return err
			}
		}

		e := m.event(notify.EventReworkRequested, a.ID, "", reviewer, now)
		e.Payload = map[string]string{
			"comments": comments,
			"areas":    strings.Join(targets, ","),
		}
		events = append(events, e)

		a.UpdatedAt = now
		return tx.SaveAssessment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	m.countTransitions(ctx, events)
	m.logger.InfoContext(ctx, "rework requested",
		"assessment_id", assessmentID, "reviewer", reviewer, "areas", len(areaIDs))
	return events, nil
}

// BeginReview moves a submitted assessment into review.
func (m *Machine) BeginReview(ctx context.Context, assessmentID, reviewer string) ([]notify.Event, error) {
	err := m.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, assessmentID)
		if err != nil {
			return err
		}
		if a.Status != assessment.StatusSubmitted {
			return fault.Statef("review can only begin from submitted, not %s", a.Status).WithRef(a.ID)
		}
		a.Status = assessment.StatusInReview
		for areaID, sub := range a.Areas {
			if sub.Status == assessment.AreaSubmitted {
				sub.Status = assessment.AreaInReview
				a.Areas[areaID] = sub
			}
		}
		a.UpdatedAt = m.clock().UTC()
		return tx.SaveAssessment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	if m.meters != nil {
		m.meters.RecordTransition(ctx, observability.TransitionAttrs(assessmentID, "review_started", reviewer)...)
	}
	m.logger.InfoContext(ctx, "review started", "assessment_id", assessmentID, "reviewer", reviewer)
	return nil, nil
}

// ApproveArea records assessor approval for one governance area.
func (m *Machine) ApproveArea(ctx context.Context, assessmentID, areaID, assessor string) ([]notify.Event, error) {
	var events []notify.Event
	err := m.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, assessmentID)
		if err != nil {
			return err
		}
		if a.Status != assessment.StatusInReview {
			return fault.Statef("areas are approved during review, not %s", a.Status).WithRef(a.ID)
		}
		sub, ok := a.Areas[areaID]
		if !ok {
			return fault.NotFoundf("unknown governance area %q", areaID).WithRef(a.ID)
		}
		if sub.Status == assessment.AreaApproved {
			return fault.Statef("area %s already approved", areaID).WithRef(a.ID)
		}
		if sub.Status != assessment.AreaInReview {
			return fault.Statef("area %s is not under review", areaID).WithRef(a.ID)
		}

		now := m.clock().UTC()
		sub.Status = assessment.AreaApproved
		a.Areas[areaID] = sub
		if a.AreaApproved == nil {
			a.AreaApproved = make(map[string]bool)
		}
		a.AreaApproved[areaID] = true

		events = append(events, m.event(notify.EventAreaApproved, a.ID, areaID, assessor, now))
		a.UpdatedAt = now
		return tx.SaveAssessment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	m.countTransitions(ctx, events)
	return events, nil
}

// Complete closes the assessment once every area carries approval.
func (m *Machine) Complete(ctx context.Context, assessmentID, approver string) ([]notify.Event, error) {
	var events []notify.Event
	err := m.store.Tx(ctx, func(ctx context.Context, tx store.Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, assessmentID)
		if err != nil {
			return err
		}
		if a.Status != assessment.StatusInReview {
			return fault.Statef("completion requires review, not %s", a.Status).WithRef(a.ID)
		}
		if !a.AllAreasApproved() {
			return fault.Statef("not all governance areas are approved").WithRef(a.ID)
		}

		now := m.clock().UTC()
		a.Status = assessment.StatusCompleted
		a.CompletedAt = &now

		events = append(events, m.event(notify.EventAssessmentCompleted, a.ID, "", approver, now))
		a.UpdatedAt = now
		return tx.SaveAssessment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	m.countTransitions(ctx, events)
	m.logger.InfoContext(ctx, "assessment completed", "assessment_id", assessmentID)
	return events, nil
}

func (m *Machine) event(t notify.EventType, assessmentID, areaID, actor string, at time.Time) notify.Event {
	e := notify.NewEvent(t, assessmentID, at)
	e.AreaID = areaID
	e.ActorID = actor
	return e
}
