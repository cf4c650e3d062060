// Package audit keeps an append-only, hash-chained record of what happened
// to an assessment: workflow transitions, rework requests, calculation runs,
// and indicator publications. Entries are immutable once appended; the chain
// makes after-the-fact edits detectable.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/rules"
)

// ErrChainBroken reports a hash chain that no longer verifies.
var ErrChainBroken = errors.New("audit chain is broken")

const genesisHead = "genesis"

// Kind categorizes trail entries.
type Kind string

const (
	KindTransition  Kind = "transition"
	KindRework      Kind = "rework"
	KindCalculation Kind = "calculation"
	KindPublication Kind = "publication"
)

// Entry is one immutable record in the trail.
type Entry struct {
	ID          string          `json:"id"`
	Sequence    uint64          `json:"sequence"`
	At          time.Time       `json:"at"`
	Kind        Kind            `json:"kind"`
	Subject     string          `json:"subject"`
	Actor       string          `json:"actor"`
	Action      string          `json:"action"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
	PrevHash    string          `json:"previous_hash"`
	Hash        string          `json:"hash"`
}

// Handler observes entries as they are appended.
type Handler func(e *Entry)

// Trail is the append-only log. Each entry's hash covers the previous
// entry's hash, so truncation or rewrites break verification.
type Trail struct {
	mu       sync.RWMutex
	entries  []*Entry
	byID     map[string]*Entry
	sequence uint64
	head     string
	handlers []Handler
	clock    func() time.Time
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{
		byID:  make(map[string]*Entry),
		head:  genesisHead,
		clock: time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *Trail) WithClock(clock func() time.Time) *Trail {
	t.clock = clock
	return t
}

// AddHandler registers an observer for appended entries. Handlers run
// synchronously under the append; keep them cheap.
func (t *Trail) AddHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
}

// Append records a new entry. The payload is serialized immediately so later
// mutation of the caller's value cannot reach the trail.
func (t *Trail) Append(kind Kind, subject, actor, action string, payload any) (*Entry, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing audit payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	e := &Entry{
		ID:          uuid.New().String(),
		Sequence:    t.sequence,
		At:          t.clock().UTC(),
		Kind:        kind,
		Subject:     subject,
		Actor:       actor,
		Action:      action,
		Payload:     body,
		PayloadHash: hashBytes(body),
		PrevHash:    t.head,
	}
	e.Hash = entryHash(e)
	t.head = e.Hash

	t.entries = append(t.entries, e)
	t.byID[e.ID] = e

	for _, h := range t.handlers {
		h(e)
	}
	return e, nil
}

// Transition records a workflow status change.
func (t *Trail) Transition(subject, actor, from, to string) (*Entry, error) {
	return t.Append(KindTransition, subject, actor, "transition", map[string]string{
		"from": from,
		"to":   to,
	})
}

// ReworkRequested records the one allowed rework cycle and its targets.
func (t *Trail) ReworkRequested(subject, actor string, areas []string, comments string) (*Entry, error) {
	return t.Append(KindRework, subject, actor, "request_rework", map[string]string{
		"areas":    strings.Join(areas, ","),
		"comments": comments,
	})
}

// Calculation records one rule evaluation against a response.
func (t *Trail) Calculation(subject, actor, indicatorID, fingerprint string, verdict rules.Verdict) (*Entry, error) {
	return t.Append(KindCalculation, subject, actor, "calculate", map[string]string{
		"indicator_id":       indicatorID,
		"schema_fingerprint": fingerprint,
		"verdict":            string(verdict),
	})
}

// Publication records an indicator schema going live.
func (t *Trail) Publication(indicatorID, actor, version, fingerprint string) (*Entry, error) {
	return t.Append(KindPublication, indicatorID, actor, "publish", map[string]string{
		"version":            version,
		"schema_fingerprint": fingerprint,
	})
}

// Get returns one entry by id.
func (t *Trail) Get(id string) (*Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byID[id]
	if !ok {
		return nil, fault.NotFoundf("audit entry %s not found", id)
	}
	return e, nil
}

// Head returns the current chain head hash.
func (t *Trail) Head() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.head
}

// Size returns the number of entries.
func (t *Trail) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Kind    Kind
	Subject string
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

func (f Filter) matches(e *Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.Since != nil && e.At.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.At.After(*f.Until) {
		return false
	}
	return true
}

// Query returns matching entries in append order.
func (t *Trail) Query(f Filter) []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, e := range t.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// VerifyChain recomputes every hash and checks the links. It returns
// ErrChainBroken, with the offending sequence, on the first mismatch.
func (t *Trail) VerifyChain() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prev := genesisHead
	for _, e := range t.entries {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d links to %s, expected %s",
				ErrChainBroken, e.Sequence, e.PrevHash, prev)
		}
		if computed := entryHash(e); computed != e.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.Sequence)
		}
		if hashBytes(e.Payload) != e.PayloadHash {
			return fmt.Errorf("%w: entry %d payload tampered", ErrChainBroken, e.Sequence)
		}
		prev = e.Hash
	}
	return nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// entryHash covers everything except the entry id, which is assigned for
// lookup convenience and carries no integrity weight.
func entryHash(e *Entry) string {
	hashable := struct {
		Sequence    uint64    `json:"sequence"`
		At          time.Time `json:"at"`
		Kind        Kind      `json:"kind"`
		Subject     string    `json:"subject"`
		Actor       string    `json:"actor"`
		Action      string    `json:"action"`
		PayloadHash string    `json:"payload_hash"`
		PrevHash    string    `json:"previous_hash"`
	}{e.Sequence, e.At, e.Kind, e.Subject, e.Actor, e.Action, e.PayloadHash, e.PrevHash}

	data, _ := json.Marshal(hashable)
	return hashBytes(data)
}
