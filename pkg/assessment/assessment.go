// Package assessment defines the submission aggregate the workflow machine
// operates on: the overall assessment record, its per-area submission
// statuses, and the per-indicator responses.
package assessment

import (
	"time"

	"github.com/siglalabs/sigla/pkg/rules"
)

// Status is the overall lifecycle state of an assessment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusRework    Status = "rework"
	StatusCompleted Status = "completed"
)

// Editable reports whether BLGU edits are allowed in this state. Submitted,
// in-review, and completed assessments are locked.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRework
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusInReview, StatusRework, StatusCompleted:
		return true
	}
	return false
}

// AreaStatus tracks one governance area's sub-workflow independently of the
// overall assessment.
type AreaStatus string

const (
	AreaDraft     AreaStatus = "draft"
	AreaSubmitted AreaStatus = "submitted"
	AreaInReview  AreaStatus = "in_review"
	AreaRework    AreaStatus = "rework"
	AreaApproved  AreaStatus = "approved"
)

// AreaSubmission is the submission record of one governance area.
type AreaSubmission struct {
	Status         AreaStatus `json:"status"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	IsResubmission bool       `json:"is_resubmission,omitempty"`
}

// Assessment is the aggregate root for one barangay's submission in one
// performance period.
type Assessment struct {
	ID         string `json:"id"`
	BarangayID string `json:"barangay_id"`
	PeriodID   string `json:"period_id"`

	Status Status `json:"status"`

	// ReworkCount is 0 or 1. Exactly one rework cycle is ever permitted;
	// the count never resets.
	ReworkCount int `json:"rework_count"`

	Areas        map[string]AreaSubmission `json:"area_submission_status"`
	AreaApproved map[string]bool           `json:"area_assessor_approved"`

	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	ReworkRequestedAt *time.Time `json:"rework_requested_at,omitempty"`
	ReworkRequestedBy string     `json:"rework_requested_by,omitempty"`
	ReworkComments    string     `json:"rework_comments,omitempty"`
	ReworkResolvedAt  *time.Time `json:"rework_resolved_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`

	// Deadline closes the submission window; the sweep jobs act on it.
	Deadline       *time.Time `json:"deadline,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	AutoSubmitted  bool       `json:"auto_submitted,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version guards read-modify-write cycles on the aggregate.
	Version int64 `json:"version"`
}

// New creates a draft assessment with every governance area in draft.
func New(id, barangayID, periodID string, areaIDs []string, now time.Time) *Assessment {
	areas := make(map[string]AreaSubmission, len(areaIDs))
	for _, areaID := range areaIDs {
		areas[areaID] = AreaSubmission{Status: AreaDraft}
	}
	return &Assessment{
		ID:           id,
		BarangayID:   barangayID,
		PeriodID:     periodID,
		Status:       StatusDraft,
		Areas:        areas,
		AreaApproved: make(map[string]bool, len(areaIDs)),
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}

// AllAreasNonDraft reports whether every area has been submitted at least
// once in the current cycle.
func (a *Assessment) AllAreasNonDraft() bool {
	if len(a.Areas) == 0 {
		return false
	}
	for _, sub := range a.Areas {
		if sub.Status == AreaDraft {
			return false
		}
	}
	return true
}

// AnyAreaInRework reports whether some area still awaits resubmission.
func (a *Assessment) AnyAreaInRework() bool {
	for _, sub := range a.Areas {
		if sub.Status == AreaRework {
			return true
		}
	}
	return false
}

// AllAreasApproved reports whether every area carries assessor approval.
func (a *Assessment) AllAreasApproved() bool {
	if len(a.Areas) == 0 {
		return false
	}
	for areaID := range a.Areas {
		if !a.AreaApproved[areaID] {
			return false
		}
	}
	return true
}

// Clone deep-copies the aggregate so in-memory stores never hand out shared
// maps.
func (a *Assessment) Clone() *Assessment {
	cp := *a
	cp.Areas = make(map[string]AreaSubmission, len(a.Areas))
	for k, v := range a.Areas {
		sub := v
		if v.SubmittedAt != nil {
			t := *v.SubmittedAt
			sub.SubmittedAt = &t
		}
		cp.Areas[k] = sub
	}
	cp.AreaApproved = make(map[string]bool, len(a.AreaApproved))
	for k, v := range a.AreaApproved {
		cp.AreaApproved[k] = v
	}
	cp.SubmittedAt = cloneTime(a.SubmittedAt)
	cp.ReworkRequestedAt = cloneTime(a.ReworkRequestedAt)
	cp.ReworkResolvedAt = cloneTime(a.ReworkResolvedAt)
	cp.CompletedAt = cloneTime(a.CompletedAt)
	cp.Deadline = cloneTime(a.Deadline)
	cp.ReminderSentAt = cloneTime(a.ReminderSentAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Response is one indicator's submission within an assessment.
type Response struct {
	ID           string `json:"id"`
	AssessmentID string `json:"assessment_id"`
	IndicatorID  string `json:"indicator_id"`
	AreaID       string `json:"area_id"`

	Data map[string]any `json:"response_data"`

	// ValidationStatus is the calculated compliance verdict, nil until the
	// orchestrator has run. It is reviewer-facing only.
	ValidationStatus *rules.Verdict `json:"validation_status,omitempty"`
	GeneratedRemark  string         `json:"generated_remark,omitempty"`

	// SchemaFingerprint records which published schema produced the verdict.
	SchemaFingerprint string `json:"schema_fingerprint,omitempty"`

	// ReviewerValidated marks that a reviewer has looked at this response.
	// Cleared selectively when the area is resubmitted after rework.
	ReviewerValidated bool   `json:"reviewer_validated,omitempty"`
	ReviewerFeedback  string `json:"reviewer_feedback,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone deep-copies the response.
func (r *Response) Clone() *Response {
	cp := *r
	if r.Data != nil {
		cp.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			cp.Data[k] = v
		}
	}
	if r.ValidationStatus != nil {
		v := *r.ValidationStatus
		cp.ValidationStatus = &v
	}
	return &cp
}
