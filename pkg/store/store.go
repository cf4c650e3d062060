// Package store defines the persistence collaborator for assessments,
// responses, and published indicators, with in-memory, Postgres, and SQLite
// implementations.
//
// Transitions run inside Tx so read-modify-write cycles on one assessment
// are serialized; the Postgres implementation backs GetAssessmentForUpdate
// with a row lock, the in-memory one with its mutex.
package store

import (
	"context"
	"time"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/indicator"
)

// AssessmentFilter narrows ListAssessments. Zero fields match everything.
type AssessmentFilter struct {
	Statuses         []assessment.Status
	DeadlineBefore   *time.Time
	ReminderNotSent  bool
	NotAutoSubmitted bool
	Limit            int
}

func (f AssessmentFilter) matches(a *assessment.Assessment) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if a.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.DeadlineBefore != nil {
		if a.Deadline == nil || !a.Deadline.Before(*f.DeadlineBefore) {
			return false
		}
	}
	if f.ReminderNotSent && a.ReminderSentAt != nil {
		return false
	}
	if f.NotAutoSubmitted && a.AutoSubmitted {
		return false
	}
	return true
}

// AssessmentStore persists assessment aggregates.
type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a *assessment.Assessment) error
	GetAssessment(ctx context.Context, id string) (*assessment.Assessment, error)
	// GetAssessmentForUpdate is GetAssessment plus a write lock when the
	// backend has one; call it only inside Tx.
	GetAssessmentForUpdate(ctx context.Context, id string) (*assessment.Assessment, error)
	// SaveAssessment writes the aggregate back. The stored version must
	// equal a.Version; on success both are advanced by one.
	SaveAssessment(ctx context.Context, a *assessment.Assessment) error
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*assessment.Assessment, error)
}

// ResponseStore persists per-indicator responses.
type ResponseStore interface {
	GetResponse(ctx context.Context, id string) (*assessment.Response, error)
	SaveResponse(ctx context.Context, r *assessment.Response) error
	ListResponses(ctx context.Context, assessmentID string) ([]*assessment.Response, error)
	ListAreaResponses(ctx context.Context, assessmentID, areaID string) ([]*assessment.Response, error)
}

// IndicatorStore persists published indicators.
type IndicatorStore interface {
	GetIndicator(ctx context.Context, id string) (*indicator.Indicator, error)
	PutIndicator(ctx context.Context, ind *indicator.Indicator) error
	ListIndicators(ctx context.Context) ([]indicator.Indicator, error)
}

// Store is the full persistence surface. Tx runs fn against a transactional
// view; outside Postgres it degrades to coarse serialization, which is
// sufficient for the per-assessment guarantee.
type Store interface {
	AssessmentStore
	ResponseStore
	IndicatorStore
	Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
