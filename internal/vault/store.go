// Package vault stores and releases scoped secret material: provider API
// keys bound to a (project, service) pair, encrypted at rest with
// AES-256-GCM and never logged or echoed once written.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no secret material is scoped to the
// requested (project, service) pair.
var ErrNotFound = errors.New("secret material not found")

// SecretMaterial is the scoped secret handed to the inference proxy. Raw is
// held only for the duration of a single governed call and is never logged,
// persisted outside this store, or returned to an API caller after creation.
type SecretMaterial struct {
	ID        string
	ProjectID string
	Service   string
	Raw       string
	CreatedAt time.Time
}

// Store persists encrypted secret material in Postgres.
type Store struct {
	pool      *pgxpool.Pool
	masterKey string
}

// NewStore creates a Store. masterKey must be non-empty in production; an
// empty key is tolerated only so local/dev runs without VAULT_MASTER_KEY set
// can still exercise the rest of the pipeline against obviously-fake data.
func NewStore(pool *pgxpool.Pool, masterKey string) *Store {
	return &Store{pool: pool, masterKey: masterKey}
}

// EnsureSchema creates the vault_secrets table if it does not already
// exist. Called once at startup; this repository does not ship a separate
// migration tool or migration files.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vault_secrets (
			id          uuid PRIMARY KEY,
			project_id  text NOT NULL,
			service     text NOT NULL,
			ciphertext  bytea NOT NULL,
			created_at  timestamptz NOT NULL DEFAULT now(),
			UNIQUE (project_id, service)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensuring vault schema: %w", err)
	}
	return nil
}

// Put encrypts raw and stores it scoped to (projectID, service), replacing
// any existing secret for that pair.
func (s *Store) Put(ctx context.Context, projectID, service, raw string) (string, error) {
	sealed, err := encrypt(s.masterKey, []byte(raw))
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vault_secrets (id, project_id, service, ciphertext)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, service)
		DO UPDATE SET ciphertext = EXCLUDED.ciphertext, created_at = now()
	`, id, projectID, service, sealed)
	if err != nil {
		return "", fmt.Errorf("storing secret material: %w", err)
	}
	return id, nil
}

// Lookup retrieves and decrypts the secret material scoped to (projectID,
// service).
func (s *Store) Lookup(ctx context.Context, projectID, service string) (*SecretMaterial, error) {
	var m SecretMaterial
	var sealed []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, service, ciphertext, created_at
		FROM vault_secrets
		WHERE project_id = $1 AND service = $2
	`, projectID, service).Scan(&m.ID, &m.ProjectID, &m.Service, &sealed, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up secret material: %w", err)
	}

	raw, err := decrypt(s.masterKey, sealed)
	if err != nil {
		return nil, err
	}
	m.Raw = string(raw)
	return &m, nil
}
