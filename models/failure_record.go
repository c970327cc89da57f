package models

import (
	"context"
	"database/sql"
	"fmt"
)

// FailureRecordSchema creates the table backing FailureRecordModel.
const FailureRecordSchema = `
CREATE TABLE IF NOT EXISTS application_failures (
	id          VARCHAR(64) PRIMARY KEY,
	kind        VARCHAR(32) NOT NULL,
	title       TEXT NOT NULL,
	url         TEXT NOT NULL,
	reason      TEXT NOT NULL,
	screenshot  TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_application_failures_occurred_at ON application_failures (occurred_at);
`

// FailureRecordModel persists failed application outcomes in Postgres.
type FailureRecordModel struct {
	DB *sql.DB
}

func NewFailureRecordModel(db *sql.DB) *FailureRecordModel {
	return &FailureRecordModel{DB: db}
}

// EnsureSchema creates the failures table if needed.
func (m *FailureRecordModel) EnsureSchema(ctx context.Context) error {
	_, err := m.DB.ExecContext(ctx, FailureRecordSchema)
	return err
}

// SaveBatch inserts outcomes in one transaction. Rows are keyed by outcome ID,
// so a retried batch does not duplicate entries.
func (m *FailureRecordModel) SaveBatch(ctx context.Context, outcomes []ApplicationOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO application_failures (id, kind, title, url, reason, screenshot, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, o.ID, string(o.Kind), o.Title, o.URL, o.Reason, o.Screenshot, o.Timestamp); err != nil {
			return fmt.Errorf("error inserting failure %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

// GetAll returns every stored failure, oldest first.
func (m *FailureRecordModel) GetAll(ctx context.Context) ([]ApplicationOutcome, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT id, kind, title, url, reason, screenshot, occurred_at
		FROM application_failures
		ORDER BY occurred_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := []ApplicationOutcome{}
	for rows.Next() {
		var o ApplicationOutcome
		var kind string
		if err := rows.Scan(&o.ID, &kind, &o.Title, &o.URL, &o.Reason, &o.Screenshot, &o.Timestamp); err != nil {
			return nil, err
		}
		o.Kind = OutcomeKind(kind)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
