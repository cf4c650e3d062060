// Package evidence tracks means-of-verification attachments: an upload ledger
// recording which file went with which indicator field, and content-addressed
// blob stores for the payloads.
package evidence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siglalabs/sigla/pkg/completeness"
	"github.com/siglalabs/sigla/pkg/fault"
)

// Upload is one ledger row. Deleting an upload is a soft delete; completeness
// only counts rows with a nil DeletedAt.
type Upload struct {
	ID           string     `json:"id"`
	AssessmentID string     `json:"assessment_id"`
	IndicatorID  string     `json:"indicator_id"`
	FieldID      string     `json:"field_id"`
	Filename     string     `json:"filename"`
	ContentHash  string     `json:"content_hash"`
	Size         int64      `json:"size"`
	UploadedBy   string     `json:"uploaded_by"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Live reports whether the upload still counts as evidence.
func (u Upload) Live() bool { return u.DeletedAt == nil }

// Query narrows ledger lookups to one indicator field.
type Query struct {
	AssessmentID string
	IndicatorID  string
	FieldID      string
}

type Ledger interface {
	Record(ctx context.Context, u *Upload) error
	Remove(ctx context.Context, id string, at time.Time) error
	LiveUploads(ctx context.Context, q Query) ([]Upload, error)
	HasLiveUpload(ctx context.Context, q Query) (bool, error)
}

// HasAcceptableUpload applies the rework window rule. When the reviewer left
// feedback on the indicator, pre-rework uploads are spent: only uploads
// strictly after reworkRequestedAt satisfy the field. Without feedback the
// original uploads stay valid.
func HasAcceptableUpload(ctx context.Context, l Ledger, q Query, reworkRequestedAt *time.Time, indicatorHasFeedback bool) (bool, error) {
	uploads, err := l.LiveUploads(ctx, q)
	if err != nil {
		return false, err
	}
	for _, u := range uploads {
		if indicatorHasFeedback && reworkRequestedAt != nil && !u.UploadedAt.After(*reworkRequestedAt) {
			continue
		}
		return true, nil
	}
	return false, nil
}

// Presence adapts the ledger to the completeness checker for one assessment
// and indicator. Ledger errors read as "no upload"; completeness is advisory
// and must not fail a form over a storage hiccup.
func Presence(ctx context.Context, l Ledger, assessmentID, indicatorID string) completeness.UploadPresence {
	return completeness.UploadPresenceFunc(func(fieldID string) bool {
		ok, err := l.HasLiveUpload(ctx, Query{
			AssessmentID: assessmentID,
			IndicatorID:  indicatorID,
			FieldID:      fieldID,
		})
		return err == nil && ok
	})
}

// MemoryLedger keeps uploads in process. Used by tests and the CLI.
type MemoryLedger struct {
	mu      sync.RWMutex
	uploads map[string]Upload
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{uploads: make(map[string]Upload)}
}

func (l *MemoryLedger) Record(ctx context.Context, u *Upload) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if _, ok := l.uploads[u.ID]; ok {
		return fault.Conflictf("upload already recorded").WithRef(u.ID)
	}
	l.uploads[u.ID] = *u
	return nil
}

func (l *MemoryLedger) Remove(ctx context.Context, id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.uploads[id]
	if !ok {
		return fault.NotFoundf("upload not found").WithRef(id)
	}
	if u.DeletedAt == nil {
		u.DeletedAt = &at
		l.uploads[id] = u
	}
	return nil
}

func (l *MemoryLedger) LiveUploads(ctx context.Context, q Query) ([]Upload, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Upload
	for _, u := range l.uploads {
		if u.Live() && matches(u, q) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (l *MemoryLedger) HasLiveUpload(ctx context.Context, q Query) (bool, error) {
	uploads, err := l.LiveUploads(ctx, q)
	return len(uploads) > 0, err
}

func matches(u Upload, q Query) bool {
	if q.AssessmentID != "" && u.AssessmentID != q.AssessmentID {
		return false
	}
	if q.IndicatorID != "" && u.IndicatorID != q.IndicatorID {
		return false
	}
	if q.FieldID != "" && u.FieldID != q.FieldID {
		return false
	}
	return true
}

var _ Ledger = (*MemoryLedger)(nil)
