// Package completeness answers whether a submission is structurally complete:
// every required field filled, every required file evidenced by a live upload.
//
// Completeness is the submitter-facing gate and is wholly independent of
// compliance. It never looks at an indicator's calculation schema; a
// submission can be complete while failing every compliance rule.
package completeness

import (
	"fmt"
	"log/slog"

	"github.com/siglalabs/sigla/pkg/checklist"
	"github.com/siglalabs/sigla/pkg/indicator"
)

// UploadPresence answers whether at least one live (non-deleted) upload
// exists for a form field. Implementations are scoped to one
// (assessment, indicator) pair by the caller.
type UploadPresence interface {
	HasLiveUpload(fieldID string) bool
}

// UploadPresenceFunc adapts a function to UploadPresence.
type UploadPresenceFunc func(fieldID string) bool

func (f UploadPresenceFunc) HasLiveUpload(fieldID string) bool { return f(fieldID) }

// NoUploads is the presence view of a submission with no files at all.
var NoUploads = UploadPresenceFunc(func(string) bool { return false })

// MissingReason says why a field is incomplete.
type MissingReason string

const (
	ReasonEmptyValue MissingReason = "empty_value"
	ReasonNoUpload   MissingReason = "no_upload"
)

// MissingItem identifies one incomplete field precisely enough for the
// submitter to act on it.
type MissingItem struct {
	IndicatorID   string        `json:"indicator_id"`
	IndicatorCode string        `json:"indicator_code"`
	FieldID       string        `json:"field_id"`
	Label         string        `json:"label,omitempty"`
	Reason        MissingReason `json:"reason"`
}

func (m MissingItem) String() string {
	return fmt.Sprintf("%s/%s: %s", m.IndicatorCode, m.FieldID, m.Reason)
}

// Report is the outcome of a completeness check.
type Report struct {
	Complete bool          `json:"complete"`
	Missing  []MissingItem `json:"missing,omitempty"`
}

// ResponseInput bundles what the checker needs for one indicator response.
type ResponseInput struct {
	Indicator *indicator.Indicator
	Data      map[string]any
	Uploads   UploadPresence
}

// Checker performs structural completeness checks. Stateless.
type Checker struct {
	logger *slog.Logger
}

func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger.With("component", "completeness_checker")}
}

// CheckForm checks one indicator's form against its submitted data and
// upload presence.
//
// A required field is filled when it carries an answered value, or, for
// file-evidence fields, when a live upload exists. A field whose
// conditional_mov_requirement currently evaluates false is not required at
// all. Zero and false are answers; empty strings and empty collections are
// not.
func (c *Checker) CheckForm(ind *indicator.Indicator, data map[string]any, uploads UploadPresence) Report {
	report := Report{Complete: true}
	if ind == nil || ind.FormSchema == nil {
		return report
	}
	if uploads == nil {
		uploads = NoUploads
	}
	if data == nil {
		data = map[string]any{}
	}

	for _, field := range ind.FormSchema.Fields {
		if !field.Required {
			continue
		}
		if field.ConditionalRequirement != nil && !checklist.EvalCondition(field.ConditionalRequirement, data) {
			continue
		}

		if checklist.Answered(data[field.ID]) {
			continue
		}
		if field.IsFileEvidence() && uploads.HasLiveUpload(field.ID) {
			continue
		}

		reason := ReasonEmptyValue
		if field.IsFileEvidence() {
			reason = ReasonNoUpload
		}
		report.Missing = append(report.Missing, MissingItem{
			IndicatorID:   ind.ID,
			IndicatorCode: ind.Code,
			FieldID:       field.ID,
			Label:         field.Label,
			Reason:        reason,
		})
	}

	report.Complete = len(report.Missing) == 0
	return report
}

// CheckAll folds per-response checks into one submission-level report. The
// missing list keeps indicator order so the submitter sees a stable,
// actionable enumeration.
func (c *Checker) CheckAll(responses []ResponseInput) Report {
	out := Report{Complete: true}
	for _, r := range responses {
		rep := c.CheckForm(r.Indicator, r.Data, r.Uploads)
		out.Missing = append(out.Missing, rep.Missing...)
	}
	out.Complete = len(out.Missing) == 0
	if !out.Complete {
		c.logger.Debug("submission incomplete", "missing", len(out.Missing))
	}
	return out
}
