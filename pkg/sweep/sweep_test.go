package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/evidence"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/notify"
	"github.com/siglalabs/sigla/pkg/store"
	"github.com/siglalabs/sigla/pkg/workflow"
)

var sweepT0 = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sweepFixture struct {
	store    *store.MemoryStore
	ledger   *evidence.MemoryLedger
	machine  *workflow.Machine
	recorder *notify.Recorder
	sweeper  *Sweeper
	now      time.Time
	asm      *assessment.Assessment
}

func (f *sweepFixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// newSweepFixture seeds one assessment with two areas and complete responses,
// due at sweepT0 plus one day.
func newSweepFixture(t *testing.T, cfg Config) *sweepFixture {
	t.Helper()
	ctx := context.Background()

	f := &sweepFixture{
		store:    store.NewMemoryStore(),
		ledger:   evidence.NewMemoryLedger(),
		recorder: &notify.Recorder{},
		now:      sweepT0,
	}
	clock := func() time.Time { return f.now }
	f.machine = workflow.NewMachine(f.store, nil, f.ledger, discard()).WithClock(clock)
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastPolicy()
	}
	dispatcher := notify.NewDispatcher(discard(), f.recorder)
	f.sweeper = NewSweeper(f.store, f.machine, dispatcher, cfg, discard()).WithClock(clock)

	indicators := []*indicator.Indicator{
		{
			ID: "ind-fin-1", Code: "1.1.1", AreaID: "area-fin",
			FormSchema: &indicator.FormSchema{Fields: []indicator.FormField{
				{ID: "budget_total", Label: "Approved annual budget", Type: indicator.FieldCurrency, Required: true},
			}},
		},
		{
			ID: "ind-dis-1", Code: "2.1.1", AreaID: "area-dis",
			FormSchema: &indicator.FormSchema{Fields: []indicator.FormField{
				{ID: "bdrrmc_organized", Label: "BDRRMC organized", Type: indicator.FieldCheckbox, Required: true},
			}},
		},
	}
	for _, ind := range indicators {
		require.NoError(t, f.store.PutIndicator(ctx, ind))
	}

	deadline := sweepT0.Add(24 * time.Hour)
	a, err := f.machine.Create(ctx, "brgy-001", "cy-2025", []string{"area-fin", "area-dis"}, &deadline)
	require.NoError(t, err)
	f.asm = a

	responses := []*assessment.Response{
		{ID: "resp-fin-1", AssessmentID: a.ID, IndicatorID: "ind-fin-1", AreaID: "area-fin",
			Data: map[string]any{"budget_total": 1250000.0}},
		{ID: "resp-dis-1", AssessmentID: a.ID, IndicatorID: "ind-dis-1", AreaID: "area-dis",
			Data: map[string]any{"bdrrmc_organized": true}},
	}
	for _, r := range responses {
		require.NoError(t, f.store.SaveResponse(ctx, r))
	}
	return f
}

func (f *sweepFixture) reload(t *testing.T) *assessment.Assessment {
	t.Helper()
	a, err := f.store.GetAssessment(context.Background(), f.asm.ID)
	require.NoError(t, err)
	return a
}

func seedAssessment(t *testing.T, st store.Store, id string, deadline time.Time) *assessment.Assessment {
	t.Helper()
	a := assessment.New(id, "brgy-"+id, "cy-2025", []string{"area-fin"}, sweepT0)
	a.Deadline = &deadline
	require.NoError(t, st.CreateAssessment(context.Background(), a))
	return a
}

func TestReminderSweepSendsOnce(t *testing.T) {
	f := newSweepFixture(t, Config{})
	ctx := context.Background()

	stats, err := f.sweeper.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{Examined: 1, Reminded: 1}, stats)

	require.Equal(t, []notify.EventType{notify.EventDeadlineReminder}, f.recorder.Types())
	ev := f.recorder.Events[0]
	assert.Equal(t, f.asm.ID, ev.AssessmentID)
	assert.Equal(t, "system:sweep", ev.ActorID)
	assert.Equal(t, sweepT0.Add(24*time.Hour).Format(time.RFC3339), ev.Payload["deadline"])

	a := f.reload(t)
	require.NotNil(t, a.ReminderSentAt)
	assert.True(t, a.ReminderSentAt.Equal(f.now))

	stats, err = f.sweeper.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{}, stats, "sent marker must keep the record out of later runs")
	assert.Len(t, f.recorder.Events, 1)
}

func TestReminderIgnoresFarDeadlines(t *testing.T) {
	f := newSweepFixture(t, Config{ReminderLead: 6 * time.Hour})

	stats, err := f.sweeper.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{}, stats, "deadline a day out is beyond a six hour lead")
}

func TestReminderIgnoresSubmittedAssessments(t *testing.T) {
	f := newSweepFixture(t, Config{})
	ctx := context.Background()

	_, err := f.machine.SubmitArea(ctx, f.asm.ID, "area-fin", "blgu-sec")
	require.NoError(t, err)
	_, err = f.machine.SubmitArea(ctx, f.asm.ID, "area-dis", "blgu-sec")
	require.NoError(t, err)

	stats, err := f.sweeper.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{}, stats)
}

func TestReminderBatchSizeBoundsRun(t *testing.T) {
	f := newSweepFixture(t, Config{BatchSize: 2})
	ctx := context.Background()

	due := sweepT0.Add(12 * time.Hour)
	seedAssessment(t, f.store, "asm-extra-1", due)
	seedAssessment(t, f.store, "asm-extra-2", due)

	stats, err := f.sweeper.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Examined)
	assert.Equal(t, 2, stats.Reminded)

	stats, err = f.sweeper.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Examined, "the next run picks up the remainder")
}

func TestAutoSubmitExpiredDraft(t *testing.T) {
	f := newSweepFixture(t, Config{})
	ctx := context.Background()
	f.advance(48 * time.Hour)

	stats, err := f.sweeper.RunAutoSubmit(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoSubmitStats{Examined: 1, AreasSubmitted: 2}, stats)

	a := f.reload(t)
	assert.Equal(t, assessment.StatusSubmitted, a.Status)
	assert.True(t, a.AutoSubmitted)

	types := f.recorder.Types()
	assert.Contains(t, types, notify.EventAreaSubmitted)
	assert.Contains(t, types, notify.EventAssessmentSubmitted)
	require.Contains(t, types, notify.EventAutoSubmitted)
	last := f.recorder.Events[len(f.recorder.Events)-1]
	assert.Equal(t, notify.EventAutoSubmitted, last.Type)
	assert.Equal(t, "2", last.Payload["areas_submitted"])

	stats, err = f.sweeper.RunAutoSubmit(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoSubmitStats{}, stats, "a submitted assessment leaves the sweep population")
}

func TestAutoSubmitSkipsIncompleteAreaForGood(t *testing.T) {
	f := newSweepFixture(t, Config{})
	ctx := context.Background()

	r, err := f.store.GetResponse(ctx, "resp-dis-1")
	require.NoError(t, err)
	r.Data = map[string]any{}
	require.NoError(t, f.store.SaveResponse(ctx, r))

	f.advance(48 * time.Hour)
	stats, err := f.sweeper.RunAutoSubmit(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoSubmitStats{Examined: 1, AreasSubmitted: 1, AreasSkipped: 1}, stats)

	a := f.reload(t)
	assert.Equal(t, assessment.StatusDraft, a.Status, "an incomplete area keeps the assessment open")
	assert.Equal(t, assessment.AreaSubmitted, a.Areas["area-fin"].Status)
	assert.Equal(t, assessment.AreaDraft, a.Areas["area-dis"].Status)
	assert.True(t, a.AutoSubmitted, "the attempt is recorded even when areas were skipped")

	last := f.recorder.Events[len(f.recorder.Events)-1]
	require.Equal(t, notify.EventAutoSubmitted, last.Type)
	assert.Equal(t, "1", last.Payload["areas_skipped"])

	stats, err = f.sweeper.RunAutoSubmit(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoSubmitStats{}, stats, "a completeness rejection is never retried")
}

func TestAutoSubmitIgnoresFutureDeadlines(t *testing.T) {
	f := newSweepFixture(t, Config{})

	stats, err := f.sweeper.RunAutoSubmit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AutoSubmitStats{}, stats)
}

// flakyStore injects transient failures into direct sweeper writes.
type flakyStore struct {
	store.Store
	mu        sync.Mutex
	saveFails map[string]int
	saveCalls map[string]int
}

func newFlakyStore(inner store.Store) *flakyStore {
	return &flakyStore{
		Store:     inner,
		saveFails: make(map[string]int),
		saveCalls: make(map[string]int),
	}
}

func (f *flakyStore) SaveAssessment(ctx context.Context, a *assessment.Assessment) error {
	f.mu.Lock()
	f.saveCalls[a.ID]++
	if f.saveFails[a.ID] > 0 {
		f.saveFails[a.ID]--
		f.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.Store.SaveAssessment(ctx, a)
}

func (f *flakyStore) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls[id]
}

func TestReminderRetriesTransientFailures(t *testing.T) {
	inner := store.NewMemoryStore()
	flaky := newFlakyStore(inner)
	recorder := &notify.Recorder{}
	s := NewSweeper(flaky, nil, notify.NewDispatcher(discard(), recorder),
		Config{Retry: fastPolicy()}, discard()).
		WithClock(func() time.Time { return sweepT0 })

	a := seedAssessment(t, inner, "asm-flaky", sweepT0.Add(time.Hour))
	flaky.saveFails[a.ID] = 1

	stats, err := s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{Examined: 1, Reminded: 1}, stats)
	assert.Equal(t, 2, flaky.calls(a.ID), "one failure, one successful retry")
	assert.Len(t, recorder.Events, 1)
}

func TestReminderIsolatesFailingRecords(t *testing.T) {
	inner := store.NewMemoryStore()
	flaky := newFlakyStore(inner)
	recorder := &notify.Recorder{}
	s := NewSweeper(flaky, nil, notify.NewDispatcher(discard(), recorder),
		Config{Retry: fastPolicy()}, discard()).
		WithClock(func() time.Time { return sweepT0 })

	broken := seedAssessment(t, inner, "asm-a-broken", sweepT0.Add(time.Hour))
	seedAssessment(t, inner, "asm-b-fine", sweepT0.Add(time.Hour))
	flaky.saveFails[broken.ID] = 10

	stats, err := s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{Examined: 2, Reminded: 1, Failed: 1}, stats)
	require.Len(t, recorder.Events, 1)
	assert.Equal(t, "asm-b-fine", recorder.Events[0].AssessmentID)
}

// statefulStore rejects every read with a business fault and counts attempts.
type statefulStore struct {
	store.Store
	mu   sync.Mutex
	gets int
}

func (s *statefulStore) GetAssessment(ctx context.Context, id string) (*assessment.Assessment, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return nil, fault.Statef("assessment %s is sealed", id)
}

func TestBusinessFaultsAreNotRetried(t *testing.T) {
	inner := store.NewMemoryStore()
	seedAssessment(t, inner, "asm-sealed", sweepT0.Add(time.Hour))
	wrapped := &statefulStore{Store: inner}
	s := NewSweeper(wrapped, nil, nil, Config{Retry: fastPolicy()}, discard()).
		WithClock(func() time.Time { return sweepT0 })

	stats, err := s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReminderStats{Examined: 1, Failed: 1}, stats)
	assert.Equal(t, 1, wrapped.gets, "a deterministic rejection must not be retried")
}
