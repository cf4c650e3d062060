package audit

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySubject is returned when a pack request names no subject.
	ErrEmptySubject = errors.New("audit: subject must not be empty")
	// ErrInvalidTimeRange is returned when the window is inverted.
	ErrInvalidTimeRange = errors.New("audit: since must be before until")
	// ErrTrailNotConfigured is returned when export runs without a trail.
	ErrTrailNotConfigured = errors.New("audit: trail not configured")
)

// PackRequest selects the slice of the trail to export.
type PackRequest struct {
	Subject string     `json:"subject"`
	Since   *time.Time `json:"since,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
}

// Exporter assembles downloadable evidence packs from the trail.
type Exporter struct {
	trail *Trail
	clock func() time.Time
}

// NewExporter creates an exporter over the given trail.
func NewExporter(t *Trail) *Exporter {
	return &Exporter{trail: t, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Pack builds a zip holding the matching entries, a manifest with the chain
// head, and a short README. The returned checksum is the sha256 of the zip.
func (e *Exporter) Pack(req PackRequest) ([]byte, string, error) {
	if req.Subject == "" {
		return nil, "", ErrEmptySubject
	}
	if req.Since != nil && req.Until != nil && req.Since.After(*req.Until) {
		return nil, "", ErrInvalidTimeRange
	}
	if e.trail == nil {
		return nil, "", ErrTrailNotConfigured
	}

	entries := e.trail.Query(Filter{
		Subject: req.Subject,
		Since:   req.Since,
		Until:   req.Until,
	})

	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("serializing trail entries: %w", err)
	}

	now := e.clock().UTC()
	manifest := map[string]any{
		"subject":      req.Subject,
		"generated_at": now,
		"entry_count":  len(entries),
		"chain_head":   e.trail.Head(),
	}
	if req.Since != nil || req.Until != nil {
		manifest["window"] = map[string]any{"since": req.Since, "until": req.Until}
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("serializing pack manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("entries.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(entriesJSON)

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	_, _ = f.Write(manifestJSON)

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f, "Audit trail for %s\nGenerated at %s\nEntries: %d\n",
		req.Subject, now.Format(time.RFC3339), len(entries))

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	sum := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(sum[:]), nil
}
