// Package drafts holds in-progress indicator responses while a BLGU edits
// them. Saves are guarded by optimistic versions; the soft locks here are
// advisory only and never block a save.
package drafts

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/siglalabs/sigla/pkg/fault"
)

// Document is one draft response body. Version starts at 1 on first save.
type Document struct {
	ID           string          `json:"id"`
	AssessmentID string          `json:"assessment_id"`
	IndicatorID  string          `json:"indicator_id"`
	Body         json.RawMessage `json:"body"`
	Version      int64           `json:"version"`
	UpdatedBy    string          `json:"updated_by"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (d *Document) clone() *Document {
	cp := *d
	cp.Body = append(json.RawMessage(nil), d.Body...)
	return &cp
}

type Store interface {
	Get(ctx context.Context, id string) (*Document, error)
	// Save writes doc if the stored version equals expectedVersion (0 for a
	// new document). A mismatch is a fault.Conflict; the caller reloads,
	// merges, and retries. Never overwrites silently.
	Save(ctx context.Context, doc *Document, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps drafts in process.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fault.NotFoundf("draft not found").WithRef(id)
	}
	return doc.clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, doc *Document, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[doc.ID]
	switch {
	case !ok && expectedVersion != 0:
		return fault.Conflictf("draft vanished: expected version %d", expectedVersion).WithRef(doc.ID)
	case ok && current.Version != expectedVersion:
		return fault.Conflictf("draft version mismatch: have %d, expected %d",
			current.Version, expectedVersion).WithRef(doc.ID)
	}

	doc.Version = expectedVersion + 1
	s.docs[doc.ID] = doc.clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fault.NotFoundf("draft not found").WithRef(id)
	}
	delete(s.docs, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
