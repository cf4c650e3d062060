package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/rules"
)

var storeT0 = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func newTestAssessment(id string) *assessment.Assessment {
	return assessment.New(id, "brgy-001", "cy-2025", []string{"area-fin"}, storeT0)
}

func TestMemoryStoreAssessmentRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := newTestAssessment("asm-1")
	if err := s.CreateAssessment(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetAssessment(ctx, "asm-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BarangayID != "brgy-001" || got.Status != assessment.StatusDraft {
		t.Errorf("unexpected aggregate: %+v", got)
	}

	// mutating the returned copy must not leak into the store
	got.Areas["area-fin"] = assessment.AreaSubmission{Status: assessment.AreaSubmitted}
	again, _ := s.GetAssessment(ctx, "asm-1")
	if again.Areas["area-fin"].Status != assessment.AreaDraft {
		t.Error("store returned a shared reference, want deep copy")
	}
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateAssessment(ctx, newTestAssessment("asm-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateAssessment(ctx, newTestAssessment("asm-1"))
	if !fault.IsConflict(err) {
		t.Errorf("duplicate create = %v, want conflict", err)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetAssessment(context.Background(), "nope")
	if !fault.IsNotFound(err) {
		t.Errorf("get missing = %v, want not found", err)
	}
}

func TestMemoryStoreOptimisticSave(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a := newTestAssessment("asm-1")
	if err := s.CreateAssessment(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := s.GetAssessment(ctx, "asm-1")
	second, _ := s.GetAssessment(ctx, "asm-1")

	first.Status = assessment.StatusSubmitted
	if err := s.SaveAssessment(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("saved aggregate version = %d, want 2", first.Version)
	}

	second.Status = assessment.StatusCompleted
	err := s.SaveAssessment(ctx, second)
	if !fault.IsConflict(err) {
		t.Errorf("stale save = %v, want conflict", err)
	}

	got, _ := s.GetAssessment(ctx, "asm-1")
	if got.Status != assessment.StatusSubmitted {
		t.Errorf("status after conflict = %q, want the first writer's", got.Status)
	}
}

func TestMemoryStoreListAssessmentsFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id string, st assessment.Status, deadline *time.Time, reminded bool, auto bool) {
		a := newTestAssessment(id)
		a.Status = st
		a.Deadline = deadline
		if reminded {
			ts := now
			a.ReminderSentAt = &ts
		}
		a.AutoSubmitted = auto
		if err := s.CreateAssessment(ctx, a); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	mk("asm-1", assessment.StatusDraft, &past, false, false)
	mk("asm-2", assessment.StatusDraft, &past, true, false)
	mk("asm-3", assessment.StatusDraft, &future, false, false)
	mk("asm-4", assessment.StatusSubmitted, &past, false, false)
	mk("asm-5", assessment.StatusDraft, &past, false, true)

	got, err := s.ListAssessments(ctx, AssessmentFilter{
		Statuses:         []assessment.Status{assessment.StatusDraft},
		DeadlineBefore:   &now,
		ReminderNotSent:  true,
		NotAutoSubmitted: true,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "asm-1" {
		t.Fatalf("filtered list = %v, want exactly asm-1", ids(got))
	}

	limited, _ := s.ListAssessments(ctx, AssessmentFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d rows", len(limited))
	}
}

func ids(as []*assessment.Assessment) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}

func TestMemoryStoreResponses(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pass := rules.VerdictPass

	r1 := &assessment.Response{
		ID: "resp-1", AssessmentID: "asm-1", IndicatorID: "ind-1", AreaID: "area-fin",
		Data:             rules.ResponseData{"budget_allocated": true},
		ValidationStatus: &pass,
	}
	r2 := &assessment.Response{
		ID: "resp-2", AssessmentID: "asm-1", IndicatorID: "ind-2", AreaID: "area-dis",
		Data: rules.ResponseData{},
	}
	for _, r := range []*assessment.Response{r2, r1} {
		if err := s.SaveResponse(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}

	all, err := s.ListResponses(ctx, "asm-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "resp-1" {
		t.Fatalf("list = %d rows, want 2 sorted by id", len(all))
	}

	fin, _ := s.ListAreaResponses(ctx, "asm-1", "area-fin")
	if len(fin) != 1 || fin[0].ID != "resp-1" {
		t.Fatalf("area list wrong: %v", fin)
	}

	// overwrite keeps one row per id
	r1.GeneratedRemark = "Compliant."
	if err := s.SaveResponse(ctx, r1); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err := s.GetResponse(ctx, "resp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GeneratedRemark != "Compliant." {
		t.Errorf("remark = %q after overwrite", got.GeneratedRemark)
	}
	if got.ValidationStatus == nil || *got.ValidationStatus != rules.VerdictPass {
		t.Error("verdict lost on round trip")
	}
}

func TestMemoryStoreIndicators(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, ind := range []*indicator.Indicator{
		{ID: "ind-2", Code: "2.1.3", AreaID: "area-dis"},
		{ID: "ind-1", Code: "1.1.1", AreaID: "area-fin"},
	} {
		if err := s.PutIndicator(ctx, ind); err != nil {
			t.Fatalf("put %s: %v", ind.ID, err)
		}
	}

	list, err := s.ListIndicators(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Code != "1.1.1" {
		t.Fatalf("list not sorted by code: %v", list)
	}

	if _, err := s.GetIndicator(ctx, "ind-9"); !fault.IsNotFound(err) {
		t.Errorf("missing indicator = %v, want not found", err)
	}
}

func TestMemoryStoreTx(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateAssessment(ctx, newTestAssessment("asm-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Tx(ctx, func(ctx context.Context, tx Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, "asm-1")
		if err != nil {
			return err
		}
		a.Status = assessment.StatusSubmitted
		return tx.SaveAssessment(ctx, a)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, _ := s.GetAssessment(ctx, "asm-1")
	if got.Status != assessment.StatusSubmitted {
		t.Errorf("status after tx = %q", got.Status)
	}

	boom := errors.New("boom")
	if err := s.Tx(ctx, func(context.Context, Store) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("tx error = %v, want boom", err)
	}
}
