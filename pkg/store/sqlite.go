package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/rules"
)

// SQLiteStore is the single-node variant used by the CLI and tests.
// Timestamps are stored as RFC3339Nano text. SQLite serializes writers, so
// GetAssessmentForUpdate needs no explicit row lock.
type SQLiteStore struct {
	db *sql.DB
	q  querier
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, q: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating assessment schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		barangay_id TEXT NOT NULL,
		period_id TEXT NOT NULL,
		status TEXT NOT NULL,
		rework_count INTEGER NOT NULL DEFAULT 0,
		areas JSON NOT NULL DEFAULT '{}',
		area_approved JSON NOT NULL DEFAULT '{}',
		submitted_at TEXT,
		rework_requested_at TEXT,
		rework_requested_by TEXT NOT NULL DEFAULT '',
		rework_comments TEXT NOT NULL DEFAULT '',
		rework_resolved_at TEXT,
		completed_at TEXT,
		deadline TEXT,
		reminder_sent_at TEXT,
		auto_submitted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);

	CREATE TABLE IF NOT EXISTS assessment_responses (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		indicator_id TEXT NOT NULL,
		area_id TEXT NOT NULL,
		response_data JSON NOT NULL DEFAULT '{}',
		validation_status TEXT,
		generated_remark TEXT NOT NULL DEFAULT '',
		schema_fingerprint TEXT NOT NULL DEFAULT '',
		reviewer_validated INTEGER NOT NULL DEFAULT 0,
		reviewer_feedback TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_assessment ON assessment_responses(assessment_id);

	CREATE TABLE IF NOT EXISTS indicators (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		area_id TEXT NOT NULL,
		is_auto_calculable INTEGER NOT NULL DEFAULT 0,
		doc JSON NOT NULL
	);
	`
	_, err := s.db.ExecContext(context.Background(), ddl)
	return err
}

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *assessment.Assessment) error {
	areas, approved, err := marshalAssessmentMaps(a)
	if err != nil {
		return err
	}
	query := `INSERT INTO assessments (` + assessmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.q.ExecContext(ctx, query,
		a.ID, a.BarangayID, a.PeriodID, string(a.Status), a.ReworkCount, string(areas), string(approved),
		timeText(a.SubmittedAt), timeText(a.ReworkRequestedAt), a.ReworkRequestedBy, a.ReworkComments,
		timeText(a.ReworkResolvedAt), timeText(a.CompletedAt), timeText(a.Deadline),
		timeText(a.ReminderSentAt), a.AutoSubmitted,
		a.CreatedAt.UTC().Format(time.RFC3339Nano), a.UpdatedAt.UTC().Format(time.RFC3339Nano), a.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fault.Conflictf("assessment already exists").WithRef(a.ID)
		}
		return fmt.Errorf("inserting assessment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*assessment.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = ?`
	row := s.q.QueryRowContext(ctx, query, id)
	a, err := scanSQLiteAssessment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("assessment not found").WithRef(id)
		}
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) GetAssessmentForUpdate(ctx context.Context, id string) (*assessment.Assessment, error) {
	return s.GetAssessment(ctx, id)
}

func scanSQLiteAssessment(scan func(dest ...any) error) (*assessment.Assessment, error) {
	var (
		a            assessment.Assessment
		status       string
		areasRaw     string
		approvedRaw  string
		submittedAt  sql.NullString
		reworkReqAt  sql.NullString
		reworkResAt  sql.NullString
		completedAt  sql.NullString
		deadline     sql.NullString
		reminderSent sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := scan(
		&a.ID, &a.BarangayID, &a.PeriodID, &status, &a.ReworkCount, &areasRaw, &approvedRaw,
		&submittedAt, &reworkReqAt, &a.ReworkRequestedBy, &a.ReworkComments, &reworkResAt,
		&completedAt, &deadline, &reminderSent, &a.AutoSubmitted, &createdAt, &updatedAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.Status = assessment.Status(status)
	if err := json.Unmarshal([]byte(areasRaw), &a.Areas); err != nil {
		return nil, fmt.Errorf("decoding area statuses: %w", err)
	}
	if err := json.Unmarshal([]byte(approvedRaw), &a.AreaApproved); err != nil {
		return nil, fmt.Errorf("decoding area approvals: %w", err)
	}
	a.SubmittedAt = textTime(submittedAt)
	a.ReworkRequestedAt = textTime(reworkReqAt)
	a.ReworkResolvedAt = textTime(reworkResAt)
	a.CompletedAt = textTime(completedAt)
	a.Deadline = textTime(deadline)
	a.ReminderSentAt = textTime(reminderSent)
	a.CreatedAt = parseStoredTime(createdAt)
	a.UpdatedAt = parseStoredTime(updatedAt)
	return &a, nil
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *assessment.Assessment) error {
	areas, approved, err := marshalAssessmentMaps(a)
	if err != nil {
		return err
	}
	query := `
		UPDATE assessments SET
			status = ?, rework_count = ?, areas = ?, area_approved = ?,
			submitted_at = ?, rework_requested_at = ?, rework_requested_by = ?,
			rework_comments = ?, rework_resolved_at = ?, completed_at = ?,
			deadline = ?, reminder_sent_at = ?, auto_submitted = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		string(a.Status), a.ReworkCount, string(areas), string(approved),
		timeText(a.SubmittedAt), timeText(a.ReworkRequestedAt), a.ReworkRequestedBy,
		a.ReworkComments, timeText(a.ReworkResolvedAt), timeText(a.CompletedAt),
		timeText(a.Deadline), timeText(a.ReminderSentAt), a.AutoSubmitted,
		a.UpdatedAt.UTC().Format(time.RFC3339Nano),
		a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("updating assessment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := s.GetAssessment(ctx, a.ID); getErr != nil {
			return getErr
		}
		return fault.Conflictf("assessment version mismatch: submitted %d", a.Version).WithRef(a.ID)
	}
	a.Version++
	return nil
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*assessment.Assessment, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		marks := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			marks = append(marks, "?")
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ",")+")")
	}
	if filter.DeadlineBefore != nil {
		where = append(where, "deadline IS NOT NULL AND deadline < ?")
		args = append(args, filter.DeadlineBefore.UTC().Format(time.RFC3339Nano))
	}
	if filter.ReminderNotSent {
		where = append(where, "reminder_sent_at IS NULL")
	}
	if filter.NotAutoSubmitted {
		where = append(where, "auto_submitted = 0")
	}

	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*assessment.Assessment
	for rows.Next() {
		a, err := scanSQLiteAssessment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetResponse(ctx context.Context, id string) (*assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM assessment_responses WHERE id = ?`
	row := s.q.QueryRowContext(ctx, query, id)
	r, err := scanSQLiteResponse(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("response not found").WithRef(id)
		}
		return nil, err
	}
	return r, nil
}

func scanSQLiteResponse(scan func(dest ...any) error) (*assessment.Response, error) {
	var (
		r         assessment.Response
		dataRaw   string
		verdict   sql.NullString
		updatedAt string
	)
	err := scan(
		&r.ID, &r.AssessmentID, &r.IndicatorID, &r.AreaID, &dataRaw, &verdict,
		&r.GeneratedRemark, &r.SchemaFingerprint, &r.ReviewerValidated, &r.ReviewerFeedback, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataRaw), &r.Data); err != nil {
		return nil, fmt.Errorf("decoding response data: %w", err)
	}
	if verdict.Valid {
		v := rules.Verdict(verdict.String)
		r.ValidationStatus = &v
	}
	r.UpdatedAt = parseStoredTime(updatedAt)
	return &r, nil
}

func (s *SQLiteStore) SaveResponse(ctx context.Context, r *assessment.Response) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encoding response data: %w", err)
	}
	var verdict sql.NullString
	if r.ValidationStatus != nil {
		verdict = sql.NullString{String: string(*r.ValidationStatus), Valid: true}
	}
	query := `
		INSERT INTO assessment_responses (` + responseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			response_data = excluded.response_data,
			validation_status = excluded.validation_status,
			generated_remark = excluded.generated_remark,
			schema_fingerprint = excluded.schema_fingerprint,
			reviewer_validated = excluded.reviewer_validated,
			reviewer_feedback = excluded.reviewer_feedback,
			updated_at = excluded.updated_at
	`
	_, err = s.q.ExecContext(ctx, query,
		r.ID, r.AssessmentID, r.IndicatorID, r.AreaID, string(data), verdict,
		r.GeneratedRemark, r.SchemaFingerprint, r.ReviewerValidated, r.ReviewerFeedback,
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, assessmentID string) ([]*assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM assessment_responses WHERE assessment_id = ? ORDER BY id`
	return s.queryResponses(ctx, query, assessmentID)
}

func (s *SQLiteStore) ListAreaResponses(ctx context.Context, assessmentID, areaID string) ([]*assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM assessment_responses WHERE assessment_id = ? AND area_id = ? ORDER BY id`
	return s.queryResponses(ctx, query, assessmentID, areaID)
}

func (s *SQLiteStore) queryResponses(ctx context.Context, query string, args ...any) ([]*assessment.Response, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*assessment.Response
	for rows.Next() {
		r, err := scanSQLiteResponse(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetIndicator(ctx context.Context, id string) (*indicator.Indicator, error) {
	var doc string
	if err := s.q.QueryRowContext(ctx, `SELECT doc FROM indicators WHERE id = ?`, id).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("indicator not found").WithRef(id)
		}
		return nil, fmt.Errorf("loading indicator: %w", err)
	}
	var ind indicator.Indicator
	if err := json.Unmarshal([]byte(doc), &ind); err != nil {
		return nil, fmt.Errorf("decoding indicator: %w", err)
	}
	return &ind, nil
}

func (s *SQLiteStore) PutIndicator(ctx context.Context, ind *indicator.Indicator) error {
	doc, err := json.Marshal(ind)
	if err != nil {
		return fmt.Errorf("encoding indicator: %w", err)
	}
	query := `
		INSERT INTO indicators (id, code, area_id, is_auto_calculable, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			area_id = excluded.area_id,
			is_auto_calculable = excluded.is_auto_calculable,
			doc = excluded.doc
	`
	if _, err := s.q.ExecContext(ctx, query, ind.ID, ind.Code, ind.AreaID, ind.IsAutoCalculable, string(doc)); err != nil {
		return fmt.Errorf("saving indicator: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListIndicators(ctx context.Context) ([]indicator.Indicator, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT doc FROM indicators ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing indicators: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []indicator.Indicator
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ind indicator.Indicator
		if err := json.Unmarshal([]byte(doc), &ind); err != nil {
			return nil, fmt.Errorf("decoding indicator: %w", err)
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	txStore := &SQLiteStore{db: s.db, q: sqlTx}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func timeText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func textTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseStoredTime(v.String)
	return &t
}

func parseStoredTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

var _ Store = (*SQLiteStore)(nil)
