package evidence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/siglalabs/sigla/pkg/fault"
)

// Service couples the blob store and the ledger: one call stores the payload
// and records the row that completeness checks will see.
type Service struct {
	blobs  BlobStore
	ledger Ledger
	clock  func() time.Time
}

func NewService(blobs BlobStore, ledger Ledger) *Service {
	return &Service{blobs: blobs, ledger: ledger, clock: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type AttachRequest struct {
	AssessmentID string
	IndicatorID  string
	FieldID      string
	Filename     string
	UploadedBy   string
	Data         []byte
}

// Attach stores the payload and records the upload against the field.
func (s *Service) Attach(ctx context.Context, req AttachRequest) (*Upload, error) {
	if len(req.Data) == 0 {
		return nil, fault.Dataf("upload payload is empty").WithRef(req.FieldID)
	}
	hash, err := s.blobs.Put(ctx, req.Data)
	if err != nil {
		return nil, err
	}
	u := &Upload{
		ID:           uuid.New().String(),
		AssessmentID: req.AssessmentID,
		IndicatorID:  req.IndicatorID,
		FieldID:      req.FieldID,
		Filename:     req.Filename,
		ContentHash:  hash,
		Size:         int64(len(req.Data)),
		UploadedBy:   req.UploadedBy,
		UploadedAt:   s.clock().UTC(),
	}
	if err := s.ledger.Record(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Detach soft-deletes the ledger row. The blob stays: content-addressed
// payloads may back other uploads.
func (s *Service) Detach(ctx context.Context, uploadID string) error {
	return s.ledger.Remove(ctx, uploadID, s.clock().UTC())
}

// Open returns the payload behind an upload's content hash.
func (s *Service) Open(ctx context.Context, hash string) ([]byte, error) {
	return s.blobs.Get(ctx, hash)
}
