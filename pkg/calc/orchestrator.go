// Package calc runs compliance calculations over submitted responses:
// evaluate the indicator's calculation schema, render the remark, persist
// the verdict. Calculation is reviewer-facing and deterministic; it never
// blocks a submission.
package calc

import (
	"context"
	"log/slog"
	"time"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/audit"
	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/observability"
	"github.com/siglalabs/sigla/pkg/rules"
	"github.com/siglalabs/sigla/pkg/store"
)

// Outcome is the result of calculating one response.
type Outcome struct {
	ResponseID  string        `json:"response_id"`
	IndicatorID string        `json:"indicator_id"`
	Skipped     bool          `json:"skipped"`
	Verdict     rules.Verdict `json:"verdict,omitempty"`
	Remark      string        `json:"remark,omitempty"`
	Fingerprint string        `json:"fingerprint,omitempty"`
}

// ResponseFailure records one response a batch could not calculate.
type ResponseFailure struct {
	ResponseID  string `json:"response_id"`
	IndicatorID string `json:"indicator_id"`
	Error       string `json:"error"`
}

// BatchOutcome summarizes a whole-assessment calculation run.
type BatchOutcome struct {
	Calculated int               `json:"calculated"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Failures   []ResponseFailure `json:"failures,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Orchestrator wires the rule evaluator to stored responses.
type Orchestrator struct {
	store     store.Store
	evaluator *rules.Evaluator
	trail     *audit.Trail
	meters    *observability.Provider
	clock     func() time.Time
	logger    *slog.Logger
}

func NewOrchestrator(st store.Store, evaluator *rules.Evaluator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if evaluator == nil {
		evaluator = rules.NewEvaluator(logger)
	}
	return &Orchestrator{
		store:     st,
		evaluator: evaluator,
		clock:     time.Now,
		logger:    logger.With("component", "calc"),
	}
}

// WithClock overrides the time source, for tests.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// WithTrail mirrors every persisted verdict into the audit trail.
func (o *Orchestrator) WithTrail(t *audit.Trail) *Orchestrator {
	o.trail = t
	return o
}

// WithMeters counts persisted verdicts on the telemetry provider.
func (o *Orchestrator) WithMeters(p *observability.Provider) *Orchestrator {
	o.meters = p
	return o
}

// CalculateResponse evaluates one response and persists the verdict and
// generated remark. Responses of indicators that are not auto-calculable are
// skipped without error: a human assessor scores them.
func (o *Orchestrator) CalculateResponse(ctx context.Context, responseID string, statuses rules.FunctionalityStatuses) (*Outcome, error) {
	r, err := o.store.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	ind, err := o.store.GetIndicator(ctx, r.IndicatorID)
	if err != nil {
		return nil, err
	}
	return o.calculate(ctx, r, ind, statuses)
}

func (o *Orchestrator) calculate(ctx context.Context, r *assessment.Response, ind *indicator.Indicator, statuses rules.FunctionalityStatuses) (*Outcome, error) {
	out := &Outcome{ResponseID: r.ID, IndicatorID: ind.ID}

	if !ind.IsAutoCalculable {
		out.Skipped = true
		o.logger.DebugContext(ctx, "indicator is manually assessed, skipping",
			"response_id", r.ID, "indicator_code", ind.Code)
		return out, nil
	}

	verdict, err := o.evaluator.Execute(ind.CalculationSchema, rules.ResponseData(r.Data), statuses)
	if err != nil {
		return nil, err
	}

	remark := ""
	if template, ok := rules.RemarkForVerdict(ind.RemarkSchema, verdict); ok {
		remark = rules.RenderRemark(template, rules.RemarkContext{
			"indicator_code": ind.Code,
			"indicator_name": ind.Name,
			"verdict":        string(verdict),
			"area":           ind.AreaID,
		})
	}

	r.ValidationStatus = &verdict
	r.GeneratedRemark = remark
	r.SchemaFingerprint = ind.Fingerprint
	r.UpdatedAt = o.clock().UTC()
	if err := o.store.SaveResponse(ctx, r); err != nil {
		return nil, err
	}

	out.Verdict = verdict
	out.Remark = remark
	out.Fingerprint = ind.Fingerprint
	if o.trail != nil {
		if _, terr := o.trail.Calculation(r.AssessmentID, "system:calc", ind.ID, ind.Fingerprint, verdict); terr != nil {
			o.logger.WarnContext(ctx, "audit append failed", "response_id", r.ID, "error", terr)
		}
	}
	if o.meters != nil {
		o.meters.RecordEvaluation(ctx, observability.EvaluationAttrs(ind.ID, string(verdict))...)
	}
	o.logger.InfoContext(ctx, "response calculated",
		"response_id", r.ID,
		"indicator_code", ind.Code,
		"verdict", verdict,
		"schema_fingerprint", ind.Fingerprint)
	return out, nil
}

// CalculateAssessment runs the calculation over every response of an
// assessment. Failures are isolated per response: one bad schema or data
// shape is recorded and the rest of the batch still calculates.
func (o *Orchestrator) CalculateAssessment(ctx context.Context, assessmentID string, statuses rules.FunctionalityStatuses) (*BatchOutcome, error) {
	start := o.clock()
	responses, err := o.store.ListResponses(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	batch := &BatchOutcome{}
	for _, r := range responses {
		ind, err := o.store.GetIndicator(ctx, r.IndicatorID)
		if err != nil {
			batch.Failed++
			batch.Failures = append(batch.Failures, ResponseFailure{
				ResponseID: r.ID, IndicatorID: r.IndicatorID, Error: err.Error(),
			})
			continue
		}
		out, err := o.calculate(ctx, r, ind, statuses)
		if err != nil {
			batch.Failed++
			batch.Failures = append(batch.Failures, ResponseFailure{
				ResponseID: r.ID, IndicatorID: r.IndicatorID, Error: err.Error(),
			})
			o.logger.WarnContext(ctx, "response calculation failed",
				"response_id", r.ID, "indicator_id", r.IndicatorID, "error", err)
			continue
		}
		if out.Skipped {
			batch.Skipped++
		} else {
			batch.Calculated++
		}
	}

	batch.Elapsed = o.clock().Sub(start)
	o.logger.InfoContext(ctx, "assessment calculated",
		"assessment_id", assessmentID,
		"calculated", batch.Calculated,
		"skipped", batch.Skipped,
		"failed", batch.Failed)
	return batch, nil
}
