package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/siglalabs/sigla/pkg/fault"
)

// PostgresLedger is the durable upload ledger.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) (*PostgresLedger, error) {
	l := &PostgresLedger{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("migrating upload ledger: %w", err)
	}
	return l, nil
}

func (l *PostgresLedger) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS mov_uploads (
		id TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL,
		indicator_id TEXT NOT NULL,
		field_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size BIGINT NOT NULL,
		uploaded_by TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_mov_uploads_field
		ON mov_uploads(assessment_id, indicator_id, field_id);
	`
	_, err := l.db.Exec(ddl)
	return err
}

func (l *PostgresLedger) Record(ctx context.Context, u *Upload) error {
	if u.ID == "" {
		return fault.Dataf("upload id is required")
	}
	query := `
		INSERT INTO mov_uploads
			(id, assessment_id, indicator_id, field_id, filename, content_hash, size, uploaded_by, uploaded_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	var deletedAt sql.NullTime
	if u.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *u.DeletedAt, Valid: true}
	}
	_, err := l.db.ExecContext(ctx, query,
		u.ID, u.AssessmentID, u.IndicatorID, u.FieldID, u.Filename,
		u.ContentHash, u.Size, u.UploadedBy, u.UploadedAt, deletedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fault.Conflictf("upload already recorded").WithRef(u.ID)
		}
		return fmt.Errorf("inserting upload: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Remove(ctx context.Context, id string, at time.Time) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE mov_uploads SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("removing upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := l.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM mov_uploads WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking upload: %w", err)
		}
		if !exists {
			return fault.NotFoundf("upload not found").WithRef(id)
		}
		// already soft-deleted, idempotent
	}
	return nil
}

func (l *PostgresLedger) LiveUploads(ctx context.Context, q Query) ([]Upload, error) {
	var (
		where = []string{"deleted_at IS NULL"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.AssessmentID != "" {
		where = append(where, "assessment_id = "+arg(q.AssessmentID))
	}
	if q.IndicatorID != "" {
		where = append(where, "indicator_id = "+arg(q.IndicatorID))
	}
	if q.FieldID != "" {
		where = append(where, "field_id = "+arg(q.FieldID))
	}

	query := `
		SELECT id, assessment_id, indicator_id, field_id, filename, content_hash, size, uploaded_by, uploaded_at, deleted_at
		FROM mov_uploads
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY uploaded_at
	`
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Upload
	for rows.Next() {
		var (
			u         Upload
			deletedAt sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.AssessmentID, &u.IndicatorID, &u.FieldID, &u.Filename,
			&u.ContentHash, &u.Size, &u.UploadedBy, &u.UploadedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		if deletedAt.Valid {
			t := deletedAt.Time
			u.DeletedAt = &t
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) HasLiveUpload(ctx context.Context, q Query) (bool, error) {
	var (
		where = []string{"deleted_at IS NULL"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.AssessmentID != "" {
		where = append(where, "assessment_id = "+arg(q.AssessmentID))
	}
	if q.IndicatorID != "" {
		where = append(where, "indicator_id = "+arg(q.IndicatorID))
	}
	if q.FieldID != "" {
		where = append(where, "field_id = "+arg(q.FieldID))
	}

	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM mov_uploads WHERE `+strings.Join(where, " AND ")+`)`,
		args...).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("checking uploads: %w", err)
	}
	return exists, nil
}

var _ Ledger = (*PostgresLedger)(nil)
