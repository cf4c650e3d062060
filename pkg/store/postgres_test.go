package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/fault"
)

func newPGAssessment() *assessment.Assessment {
	return assessment.New("asm-1", "brgy-001", "cy-2025", []string{"area-fin"},
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
}

func newMockedPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS assessments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresStoreSaveAssessmentBumpsVersion(t *testing.T) {
	s, mock := newMockedPostgres(t)
	ctx := context.Background()

	a := newPGAssessment()
	a.Version = 3
	a.UpdatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SaveAssessment(ctx, a)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), a.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSaveAssessmentVersionConflict(t *testing.T) {
	s, mock := newMockedPostgres(t)
	ctx := context.Background()

	a := newPGAssessment()
	a.Version = 3

	// zero rows touched, but the row exists: someone else advanced the version
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessments SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WillReturnRows(assessmentRows(a, 4))

	err := s.SaveAssessment(ctx, a)
	assert.True(t, fault.IsConflict(err), "want conflict, got %v", err)
	assert.Equal(t, int64(3), a.Version, "version must not advance on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSaveAssessmentRowGone(t *testing.T) {
	s, mock := newMockedPostgres(t)
	ctx := context.Background()

	a := newPGAssessment()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessments SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := s.SaveAssessment(ctx, a)
	assert.True(t, fault.IsNotFound(err), "want not found, got %v", err)
}

func TestPostgresStoreGetAssessment(t *testing.T) {
	s, mock := newMockedPostgres(t)
	ctx := context.Background()

	a := newPGAssessment()
	a.Areas["area-fin"] = assessment.AreaSubmission{Status: assessment.AreaSubmitted}
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessments WHERE id = $1")).
		WithArgs("asm-1").
		WillReturnRows(assessmentRows(a, 1))

	got, err := s.GetAssessment(ctx, "asm-1")
	require.NoError(t, err)
	assert.Equal(t, "brgy-001", got.BarangayID)
	assert.Equal(t, assessment.AreaSubmitted, got.Areas["area-fin"].Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestPostgresStoreGetAssessmentNotFound(t *testing.T) {
	s, mock := newMockedPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM assessments WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetAssessment(context.Background(), "nope")
	assert.True(t, fault.IsNotFound(err), "want not found, got %v", err)
}

func TestPostgresStoreTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMockedPostgres(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("asm-1").
		WillReturnRows(assessmentRows(newPGAssessment(), 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Tx(ctx, func(ctx context.Context, tx Store) error {
		a, err := tx.GetAssessmentForUpdate(ctx, "asm-1")
		if err != nil {
			return err
		}
		a.Status = assessment.StatusSubmitted
		return tx.SaveAssessment(ctx, a)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTxRollsBackOnError(t *testing.T) {
	s, mock := newMockedPostgres(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.Tx(context.Background(), func(context.Context, Store) error {
		return fault.Statef("rework limit reached")
	})
	assert.True(t, fault.IsState(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func assessmentRows(a *assessment.Assessment, version int64) *sqlmock.Rows {
	areas, approved, _ := marshalAssessmentMaps(a)
	return sqlmock.NewRows([]string{
		"id", "barangay_id", "period_id", "status", "rework_count", "areas", "area_approved",
		"submitted_at", "rework_requested_at", "rework_requested_by", "rework_comments", "rework_resolved_at",
		"completed_at", "deadline", "reminder_sent_at", "auto_submitted", "created_at", "updated_at", "version",
	}).AddRow(
		a.ID, a.BarangayID, a.PeriodID, string(a.Status), a.ReworkCount, areas, approved,
		nil, nil, "", "", nil,
		nil, nil, nil, a.AutoSubmitted, a.CreatedAt, a.UpdatedAt, version,
	)
}
