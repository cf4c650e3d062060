package store

import (
	"context"
	"sort"
	"sync"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/indicator"
)

// MemoryStore is the in-memory implementation used by tests and the CLI.
// Everything is deep-copied on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	assessments map[string]*assessment.Assessment
	responses   map[string]*assessment.Response
	indicators  map[string]*indicator.Indicator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string]*assessment.Assessment),
		responses:   make(map[string]*assessment.Response),
		indicators:  make(map[string]*indicator.Indicator),
	}
}

func (s *MemoryStore) CreateAssessment(ctx context.Context, a *assessment.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assessments[a.ID]; exists {
		return fault.Conflictf("assessment already exists").WithRef(a.ID)
	}
	s.assessments[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) GetAssessment(ctx context.Context, id string) (*assessment.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, fault.NotFoundf("assessment not found").WithRef(id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) GetAssessmentForUpdate(ctx context.Context, id string) (*assessment.Assessment, error) {
	return s.GetAssessment(ctx, id)
}

func (s *MemoryStore) SaveAssessment(ctx context.Context, a *assessment.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.assessments[a.ID]
	if !ok {
		return fault.NotFoundf("assessment not found").WithRef(a.ID)
	}
	if stored.Version != a.Version {
		return fault.Conflictf("assessment version mismatch: stored %d, submitted %d", stored.Version, a.Version).WithRef(a.ID)
	}
	a.Version++
	s.assessments[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*assessment.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*assessment.Assessment
	for _, a := range s.assessments {
		if filter.matches(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) GetResponse(ctx context.Context, id string) (*assessment.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, fault.NotFoundf("response not found").WithRef(id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) SaveResponse(ctx context.Context, r *assessment.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) ListResponses(ctx context.Context, assessmentID string) ([]*assessment.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*assessment.Response
	for _, r := range s.responses {
		if r.AssessmentID == assessmentID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListAreaResponses(ctx context.Context, assessmentID, areaID string) ([]*assessment.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*assessment.Response
	for _, r := range s.responses {
		if r.AssessmentID == assessmentID && r.AreaID == areaID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetIndicator(ctx context.Context, id string) (*indicator.Indicator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.indicators[id]
	if !ok {
		return nil, fault.NotFoundf("indicator not found").WithRef(id)
	}
	cp := *ind
	return &cp, nil
}

func (s *MemoryStore) PutIndicator(ctx context.Context, ind *indicator.Indicator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ind
	s.indicators[ind.ID] = &cp
	return nil
}

func (s *MemoryStore) ListIndicators(ctx context.Context) ([]indicator.Indicator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]indicator.Indicator, 0, len(s.indicators))
	for _, ind := range s.indicators {
		out = append(out, *ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Tx serializes whole transactions with one mutex; coarse, but it upholds
// the per-assessment serialization contract. A snapshot taken up front makes
// a failed fn leave no partial writes behind.
func (s *MemoryStore) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapAssessments := make(map[string]*assessment.Assessment, len(s.assessments))
	for k, v := range s.assessments {
		snapAssessments[k] = v.Clone()
	}
	snapResponses := make(map[string]*assessment.Response, len(s.responses))
	for k, v := range s.responses {
		snapResponses[k] = v.Clone()
	}
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.assessments = snapAssessments
		s.responses = snapResponses
		s.mu.Unlock()
		return err
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
