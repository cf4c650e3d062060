// Package bbi rates barangay-based institutions from criterion results.
//
// Each institution is judged against a fixed criteria catalog split into
// essential and supporting tiers. The pass counts map onto a four-level
// functionality ladder, and the resulting ratings feed the rule engine's
// BBI functionality checks.
package bbi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/rules"
)

// Rating is the functionality level of one institution.
type Rating string

const (
	RatingIdeal         Rating = "ideal"
	RatingFunctional    Rating = "functional"
	RatingBasic         Rating = "basic"
	RatingNonFunctional Rating = "non_functional"
)

// Tier classifies how a criterion counts toward the rating ladder.
type Tier string

const (
	TierEssential  Tier = "essential"
	TierSupporting Tier = "supporting"
)

// Criterion is one observable requirement for an institution.
type Criterion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tier Tier   `json:"tier"`
}

// Institution describes one barangay-based institution and its rating bar.
// BasicCount is the minimum number of passed criteria, of either tier, that
// still earns a basic rating when the essential set is not fully met.
type Institution struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Criteria   []Criterion `json:"criteria"`
	BasicCount int         `json:"basic_count"`
}

// Result is the recorded outcome for one criterion. EvidenceRef names the
// response or upload that backs the outcome.
type Result struct {
	CriterionID string `json:"criterion_id"`
	Passed      bool   `json:"passed"`
	EvidenceRef string `json:"evidence_ref"`
	Notes       string `json:"notes,omitempty"`
}

// Entry is the rated outcome for one institution.
type Entry struct {
	InstitutionID    string   `json:"institution_id"`
	InstitutionName  string   `json:"institution_name"`
	Rating           Rating   `json:"rating"`
	EssentialPassed  int      `json:"essential_passed"`
	EssentialTotal   int      `json:"essential_total"`
	SupportingPassed int      `json:"supporting_passed"`
	SupportingTotal  int      `json:"supporting_total"`
	Results          []Result `json:"results,omitempty"`
}

// Report is the complete functionality picture for one assessment cycle.
type Report struct {
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
	ContentHash string    `json:"content_hash"`
}

// Rater accumulates criterion results and derives functionality ratings.
type Rater struct {
	mu           sync.Mutex
	institutions map[string]Institution
	order        []string
	results      map[string]map[string]Result // institution id → criterion id
	clock        func() time.Time
}

// NewRater creates an empty rater.
func NewRater() *Rater {
	return &Rater{
		institutions: make(map[string]Institution),
		results:      make(map[string]map[string]Result),
		clock:        time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Rater) WithClock(clock func() time.Time) *Rater {
	r.clock = clock
	return r
}

// AddInstitution registers an institution and its criteria catalog.
func (r *Rater) AddInstitution(inst Institution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst.ID == "" {
		return fault.Dataf("institution id is required")
	}
	if _, ok := r.institutions[inst.ID]; ok {
		return fault.Conflictf("institution %s already registered", inst.ID)
	}
	r.institutions[inst.ID] = inst
	r.order = append(r.order, inst.ID)
	return nil
}

// RecordResult records the outcome for one criterion. A result must cite the
// response or upload that evidences it. Recording twice for the same criterion
// replaces the earlier outcome.
func (r *Rater) RecordResult(institutionID string, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.institutions[institutionID]
	if !ok {
		return fault.NotFoundf("institution %s is not registered", institutionID)
	}
	if res.EvidenceRef == "" {
		return fault.Dataf("result for %s must cite its evidence", res.CriterionID)
	}
	if !hasCriterion(inst, res.CriterionID) {
		return fault.Dataf("criterion %s is not part of %s", res.CriterionID, institutionID)
	}
	if r.results[institutionID] == nil {
		r.results[institutionID] = make(map[string]Result)
	}
	r.results[institutionID][res.CriterionID] = res
	return nil
}

// Rate derives the rating for one institution from the results recorded so
// far. A criterion with no recorded result counts as not passed.
func (r *Rater) Rate(institutionID string) (Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.institutions[institutionID]
	if !ok {
		return "", fault.NotFoundf("institution %s is not registered", institutionID)
	}
	return tallyInstitution(inst, r.results[institutionID]).rating(inst.BasicCount), nil
}

// Statuses returns the rating of every registered institution keyed by
// institution id, in the shape the rule engine's functionality checks consume.
func (r *Rater) Statuses() rules.FunctionalityStatuses {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make(rules.FunctionalityStatuses, len(r.order))
	for _, id := range r.order {
		inst := r.institutions[id]
		statuses[id] = string(tallyInstitution(inst, r.results[id]).rating(inst.BasicCount))
	}
	return statuses
}

// Build assembles the full report. Entries follow registration order so the
// report content, and therefore its hash, is reproducible.
func (r *Rater) Build() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		inst := r.institutions[id]
		t := tallyInstitution(inst, r.results[id])

		var results []Result
		for _, c := range inst.Criteria {
			if res, ok := r.results[id][c.ID]; ok {
				results = append(results, res)
			}
		}
		entries = append(entries, Entry{
			InstitutionID:    inst.ID,
			InstitutionName:  inst.Name,
			Rating:           t.rating(inst.BasicCount),
			EssentialPassed:  t.essentialPassed,
			EssentialTotal:   t.essentialTotal,
			SupportingPassed: t.supportingPassed,
			SupportingTotal:  t.supportingTotal,
			Results:          results,
		})
	}

	now := r.clock()
	data, _ := json.Marshal(entries)
	h := sha256.Sum256(data)

	return &Report{
		ReportID:    fmt.Sprintf("bbi-%d", now.UnixNano()),
		GeneratedAt: now,
		Entries:     entries,
		ContentHash: "sha256:" + hex.EncodeToString(h[:]),
	}
}

func hasCriterion(inst Institution, criterionID string) bool {
	for _, c := range inst.Criteria {
		if c.ID == criterionID {
			return true
		}
	}
	return false
}

type tally struct {
	essentialPassed  int
	essentialTotal   int
	supportingPassed int
	supportingTotal  int
}

func tallyInstitution(inst Institution, results map[string]Result) tally {
	var t tally
	for _, c := range inst.Criteria {
		res, ok := results[c.ID]
		pass := ok && res.Passed
		if c.Tier == TierEssential {
			t.essentialTotal++
			if pass {
				t.essentialPassed++
			}
		} else {
			t.supportingTotal++
			if pass {
				t.supportingPassed++
			}
		}
	}
	return t
}

// rating walks the ladder top down. An institution with no criteria rates
// non_functional; a vacuously met essential set never rates functional.
func (t tally) rating(basicCount int) Rating {
	total := t.essentialTotal + t.supportingTotal
	if total == 0 {
		return RatingNonFunctional
	}
	passed := t.essentialPassed + t.supportingPassed
	switch {
	case passed == total:
		return RatingIdeal
	case t.essentialTotal > 0 && t.essentialPassed == t.essentialTotal:
		return RatingFunctional
	case basicCount > 0 && passed >= basicCount:
		return RatingBasic
	default:
		return RatingNonFunctional
	}
}
