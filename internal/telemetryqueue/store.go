package telemetryqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists telemetry records and dead-lettered records in
// Postgres. Writes are idempotent on record_id so a retried batch that
// partially succeeded can be safely resubmitted in full.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the telemetry tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS telemetry_records (
			record_id  text PRIMARY KEY,
			project_id text NOT NULL,
			user_id    text NOT NULL,
			kind       text NOT NULL,
			payload    jsonb NOT NULL,
			created_at timestamptz NOT NULL
		);
		CREATE TABLE IF NOT EXISTS telemetry_dead_letters (
			record_id    text PRIMARY KEY,
			project_id   text NOT NULL,
			user_id      text NOT NULL,
			kind         text NOT NULL,
			payload      jsonb NOT NULL,
			created_at   timestamptz NOT NULL,
			failed_reason text NOT NULL,
			dead_lettered_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensuring telemetry schema: %w", err)
	}
	return nil
}

// Write inserts records, skipping any record_id already present.
func (s *PostgresStore) Write(ctx context.Context, records []Record) error {
	batch := make([][]any, 0, len(records))
	for _, r := range records {
		batch = append(batch, []any{r.RecordID, r.ProjectID, r.UserID, r.Kind, r.Payload, r.CreatedAt})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning telemetry write tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO telemetry_records (record_id, project_id, user_id, kind, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (record_id) DO NOTHING
		`, row...)
		if err != nil {
			return fmt.Errorf("writing telemetry record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing telemetry write tx: %w", err)
	}
	return nil
}

// DeadLetterBacklog reports how many records currently sit in the
// dead-letter sink, for the worker mode's periodic backlog log.
func (s *PostgresStore) DeadLetterBacklog(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM telemetry_dead_letters`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting telemetry dead letters: %w", err)
	}
	return count, nil
}

// WriteDeadLetter records a record that exhausted retries.
func (s *PostgresStore) WriteDeadLetter(ctx context.Context, record Record, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO telemetry_dead_letters (record_id, project_id, user_id, kind, payload, created_at, failed_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (record_id) DO UPDATE SET failed_reason = EXCLUDED.failed_reason, dead_lettered_at = now()
	`, record.RecordID, record.ProjectID, record.UserID, record.Kind, record.Payload, record.CreatedAt, reason)
	if err != nil {
		return fmt.Errorf("writing telemetry dead letter: %w", err)
	}
	return nil
}
