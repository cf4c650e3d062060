package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/siglalabs/sigla/pkg/assessment"
	"github.com/siglalabs/sigla/pkg/fault"
	"github.com/siglalabs/sigla/pkg/indicator"
	"github.com/siglalabs/sigla/pkg/rules"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the durable implementation. GetAssessmentForUpdate uses a
// row lock, so transitions racing on one assessment queue up instead of
// double-applying.
type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db, q: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating assessment schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		barangay_id TEXT NOT NULL,
		period_id TEXT NOT NULL,
		status TEXT NOT NULL,
		rework_count INT NOT NULL DEFAULT 0,
		areas JSONB NOT NULL DEFAULT '{}',
		area_approved JSONB NOT NULL DEFAULT '{}',
		submitted_at TIMESTAMPTZ,
		rework_requested_at TIMESTAMPTZ,
		rework_requested_by TEXT NOT NULL DEFAULT '',
		rework_comments TEXT NOT NULL DEFAULT '',
		rework_resolved_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		deadline TIMESTAMPTZ,
		reminder_sent_at TIMESTAMPTZ,
		auto_submitted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);
	CREATE INDEX IF NOT EXISTS idx_assessments_deadline ON assessments(deadline);

	CREATE TABLE IF NOT EXISTS assessment_responses (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		indicator_id TEXT NOT NULL,
		area_id TEXT NOT NULL,
		response_data JSONB NOT NULL DEFAULT '{}',
		validation_status TEXT,
		generated_remark TEXT NOT NULL DEFAULT '',
		schema_fingerprint TEXT NOT NULL DEFAULT '',
		reviewer_validated BOOLEAN NOT NULL DEFAULT FALSE,
		reviewer_feedback TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_assessment ON assessment_responses(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_responses_area ON assessment_responses(assessment_id, area_id);

	CREATE TABLE IF NOT EXISTS indicators (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		area_id TEXT NOT NULL,
		is_auto_calculable BOOLEAN NOT NULL DEFAULT FALSE,
		doc JSONB NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_indicators_code ON indicators(code);
	`
	_, err := s.db.Exec(ddl)
	return err
}

const assessmentColumns = `id, barangay_id, period_id, status, rework_count, areas, area_approved,
	submitted_at, rework_requested_at, rework_requested_by, rework_comments, rework_resolved_at,
	completed_at, deadline, reminder_sent_at, auto_submitted, created_at, updated_at, version`

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *assessment.Assessment) error {
	areas, approved, err := marshalAssessmentMaps(a)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO assessments (` + assessmentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`
	_, err = s.q.ExecContext(ctx, query,
		a.ID, a.BarangayID, a.PeriodID, string(a.Status), a.ReworkCount, areas, approved,
		nullTime(a.SubmittedAt), nullTime(a.ReworkRequestedAt), a.ReworkRequestedBy, a.ReworkComments,
		nullTime(a.ReworkResolvedAt), nullTime(a.CompletedAt), nullTime(a.Deadline),
		nullTime(a.ReminderSentAt), a.AutoSubmitted, a.CreatedAt, a.UpdatedAt, a.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fault.Conflictf("assessment already exists").WithRef(a.ID)
		}
		return fmt.Errorf("inserting assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*assessment.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`
	return s.scanAssessment(s.q.QueryRowContext(ctx, query, id), id)
}

func (s *PostgresStore) GetAssessmentForUpdate(ctx context.Context, id string) (*assessment.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1 FOR UPDATE`
	return s.scanAssessment(s.q.QueryRowContext(ctx, query, id), id)
}

func (s *PostgresStore) scanAssessment(row *sql.Row, id string) (*assessment.Assessment, error) {
	var (
		a            assessment.Assessment
		status       string
		areasRaw     []byte
		approvedRaw  []byte
		submittedAt  sql.NullTime
		reworkReqAt  sql.NullTime
		reworkResAt  sql.NullTime
		completedAt  sql.NullTime
		deadline     sql.NullTime
		reminderSent sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.BarangayID, &a.PeriodID, &status, &a.ReworkCount, &areasRaw, &approvedRaw,
		&submittedAt, &reworkReqAt, &a.ReworkRequestedBy, &a.ReworkComments, &reworkResAt,
		&completedAt, &deadline, &reminderSent, &a.AutoSubmitted, &a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("assessment not found").WithRef(id)
		}
		return nil, fmt.Errorf("scanning assessment: %w", err)
	}
	a.Status = assessment.Status(status)
	if err := json.Unmarshal(areasRaw, &a.Areas); err != nil {
		return nil, fmt.Errorf("decoding area statuses: %w", err)
	}
	if err := json.Unmarshal(approvedRaw, &a.AreaApproved); err != nil {
		return nil, fmt.Errorf("decoding area approvals: %w", err)
	}
	a.SubmittedAt = timePtr(submittedAt)
	a.ReworkRequestedAt = timePtr(reworkReqAt)
	a.ReworkResolvedAt = timePtr(reworkResAt)
	a.CompletedAt = timePtr(completedAt)
	a.Deadline = timePtr(deadline)
	a.ReminderSentAt = timePtr(reminderSent)
	return &a, nil
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, a *assessment.Assessment) error {
	areas, approved, err := marshalAssessmentMaps(a)
	if err != nil {
		return err
	}
	query := `
		UPDATE assessments SET
			status = $2, rework_count = $3, areas = $4, area_approved = $5,
			submitted_at = $6, rework_requested_at = $7, rework_requested_by = $8,
			rework_comments = $9, rework_resolved_at = $10, completed_at = $11,
			deadline = $12, reminder_sent_at = $13, auto_submitted = $14,
			updated_at = $15, version = version + 1
		WHERE id = $1 AND version = $16
	`
	res, err := s.q.ExecContext(ctx, query,
		a.ID, string(a.Status), a.ReworkCount, areas, approved,
		nullTime(a.SubmittedAt), nullTime(a.ReworkRequestedAt), a.ReworkRequestedBy,
		a.ReworkComments, nullTime(a.ReworkResolvedAt), nullTime(a.CompletedAt),
		nullTime(a.Deadline), nullTime(a.ReminderSentAt), a.AutoSubmitted,
		a.UpdatedAt, a.Version,
	)
	if err != nil {
		return fmt.Errorf("updating assessment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		// either the row is gone or someone else advanced the version
		if _, getErr := s.GetAssessment(ctx, a.ID); getErr != nil {
			return getErr
		}
		return fault.Conflictf("assessment version mismatch: submitted %d", a.Version).WithRef(a.ID)
	}
	a.Version++
	return nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*assessment.Assessment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			marks = append(marks, arg(string(st)))
		}
		where = append(where, "status IN ("+strings.Join(marks, ",")+")")
	}
	if filter.DeadlineBefore != nil {
		where = append(where, "deadline IS NOT NULL AND deadline < "+arg(*filter.DeadlineBefore))
	}
	if filter.ReminderNotSent {
		where = append(where, "reminder_sent_at IS NULL")
	}
	if filter.NotAutoSubmitted {
		where = append(where, "auto_submitted = FALSE")
	}

	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*assessment.Assessment
	for rows.Next() {
		a, err := scanAssessmentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssessmentRows(rows *sql.Rows) (*assessment.Assessment, error) {
	var (
		a            assessment.Assessment
		status       string
		areasRaw     []byte
		approvedRaw  []byte
		submittedAt  sql.NullTime
		reworkReqAt  sql.NullTime
		reworkResAt  sql.NullTime
		completedAt  sql.NullTime
		deadline     sql.NullTime
		reminderSent sql.NullTime
	)
	err := rows.Scan(
		&a.ID, &a.BarangayID, &a.PeriodID, &status, &a.ReworkCount, &areasRaw, &approvedRaw,
		&submittedAt, &reworkReqAt, &a.ReworkRequestedBy, &a.ReworkComments, &reworkResAt,
		&completedAt, &deadline, &reminderSent, &a.AutoSubmitted, &a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning assessment row: %w", err)
	}
	a.Status = assessment.Status(status)
	if err := json.Unmarshal(areasRaw, &a.Areas); err != nil {
		return nil, fmt.Errorf("decoding area statuses: %w", err)
	}
	if err := json.Unmarshal(approvedRaw, &a.AreaApproved); err != nil {
		return nil, fmt.Errorf("decoding area approvals: %w", err)
	}
	a.SubmittedAt = timePtr(submittedAt)
	a.ReworkRequestedAt = timePtr(reworkReqAt)
	a.ReworkResolvedAt = timePtr(reworkResAt)
	a.CompletedAt = timePtr(completedAt)
	a.Deadline = timePtr(deadline)
	a.ReminderSentAt = timePtr(reminderSent)
	return &a, nil
}

const responseColumns = `id, assessment_id, indicator_id, area_id, response_data, validation_status,
	generated_remark, schema_fingerprint, reviewer_validated, reviewer_feedback, updated_at`

func (s *PostgresStore) GetResponse(ctx context.Context, id string) (*assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM assessment_responses WHERE id = $1`
	row := s.q.QueryRowContext(ctx, query, id)
	r, err := scanResponse(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("response not found").WithRef(id)
		}
		return nil, err
	}
	return r, nil
}

func scanResponse(scan func(dest ...any) error) (*assessment.Response, error) {
	var (
		r       assessment.Response
		dataRaw []byte
		verdict sql.NullString
	)
	err := scan(
		&r.ID, &r.AssessmentID, &r.IndicatorID, &r.AreaID, &dataRaw, &verdict,
		&r.GeneratedRemark, &r.SchemaFingerprint, &r.ReviewerValidated, &r.ReviewerFeedback, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataRaw, &r.Data); err != nil {
		return nil, fmt.Errorf("decoding response data: %w", err)
	}
	if verdict.Valid {
		v := rules.Verdict(verdict.String)
		r.ValidationStatus = &v
	}
	return &r, nil
}

func (s *PostgresStore) SaveResponse(ctx context.Context, r *assessment.Response) error {
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			response_data = EXCLUDED.response_data,
			validation_status = EXCLUDED.validation_status,
			generated_remark = EXCLUDED.generated_remark,
			schema_fingerprint = EXCLUDED.schema_fingerprint,
			reviewer_validated = EXCLUDED.reviewer_validated,
			reviewer_feedback = EXCLUDED.reviewer_feedback,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.q.ExecContext(ctx, query,
		r.ID, r.AssessmentID, r.IndicatorID, r.AreaID, data, verdict,
		r.GeneratedRemark, r.SchemaFingerprint, r.ReviewerValidated, r.ReviewerFeedback, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, assessmentID string) ([]*assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM assessment_responses WHERE assessment_id = $1 ORDER BY id`
	return s.queryResponses(ctx, query, assessmentID)
}

func (s *PostgresStore) ListAreaResponses(ctx context.Context, assessmentID, areaID string) ([]*assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM assessment_responses WHERE assessment_id = $1 AND area_id = $2 ORDER BY id`
	return s.queryResponses(ctx, query, assessmentID, areaID)
}

func (s *PostgresStore) queryResponses(ctx context.Context, query string, args ...any) ([]*assessment.Response, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*assessment.Response
	for rows.Next() {
		r, err := scanResponse(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetIndicator(ctx context.Context, id string) (*indicator.Indicator, error) {
	query := `SELECT doc FROM indicators WHERE id = $1`
	var doc []byte
	if err := s.q.QueryRowContext(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFoundf("indicator not found").WithRef(id)
		}
		return nil, fmt.Errorf("loading indicator: %w", err)
	}
	var ind indicator.Indicator
	if err := json.Unmarshal(doc, &ind); err != nil {
		return nil, fmt.Errorf("decoding indicator: %w", err)
	}
	return &ind, nil
}

func (s *PostgresStore) PutIndicator(ctx context.Context, ind *indicator.Indicator) error {
	doc, err := json.Marshal(ind)
	if err != nil {
		return fmt.Errorf("encoding indicator: %w", err)
	}
	query := `
		INSERT INTO indicators (id, code, area_id, is_auto_calculable, doc)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			area_id = EXCLUDED.area_id,
			is_auto_calculable = EXCLUDED.is_auto_calculable,
			doc = EXCLUDED.doc
	`
	if _, err := s.q.ExecContext(ctx, query, ind.ID, ind.Code, ind.AreaID, ind.IsAutoCalculable, doc); err != nil {
		return fmt.Errorf("saving indicator: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListIndicators(ctx context.Context) ([]indicator.Indicator, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT doc FROM indicators ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing indicators: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []indicator.Indicator
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ind indicator.Indicator
		if err := json.Unmarshal(doc, &ind); err != nil {
			return nil, fmt.Errorf("decoding indicator: %w", err)
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

// Tx wraps fn in a database transaction. The store handed to fn routes every
// query through the transaction, so GetAssessmentForUpdate's row lock holds
// until commit.
func (s *PostgresStore) Tx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	txStore := &PostgresStore{db: s.db, q: sqlTx}
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

func marshalAssessmentMaps(a *assessment.Assessment) (areas, approved []byte, err error) {
	areas, err = json.Marshal(a.Areas)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding area statuses: %w", err)
	}
	approved, err = json.Marshal(a.AreaApproved)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding area approvals: %w", err)
	}
	return areas, approved, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	cp := t.Time
	return &cp
}

var _ Store = (*PostgresStore)(nil)
