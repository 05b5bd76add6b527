// Package lock implements the pessimistic draft lock: a single active
// editor per draft, acquired and renewed via Postgres row-level locking so
// two concurrent editors can never both believe they hold the same draft.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/adlcgate/internal/telemetry"
)

// ErrLocked is returned when a draft is already held by a different caller
// and the hold has not yet expired.
var ErrLocked = errors.New("draft is locked by another holder")

// ErrNotFound is returned when the draft does not exist.
var ErrNotFound = errors.New("draft not found")

// ErrNotHolder is returned by Update/Heartbeat/Submit when the caller does
// not currently hold the draft's lock.
var ErrNotHolder = errors.New("caller does not hold the draft lock")

// ErrConflict is returned when Approve/Reject is attempted on a draft that
// is not PENDING.
var ErrConflict = errors.New("draft is not pending")

// Status is a draft's review state.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Draft is the governed artifact under review.
type Draft struct {
	ID            string
	ProjectID     string
	OwnerID       string
	Title         string
	Status        Status
	Content       json.RawMessage
	LockHolder    *string
	LockExpiresAt *time.Time
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// activeHolder returns d's lock holder only while the lock has not expired,
// matching the spec's "read code must treat an expired lock as absent"
// invariant.
func (d *Draft) activeHolder() *string {
	if d.LockHolder == nil || d.LockExpiresAt == nil || time.Now().After(*d.LockExpiresAt) {
		return nil
	}
	return d.LockHolder
}

// Grant describes an acquired or renewed lock.
type Grant struct {
	DraftID   string
	HolderID  string
	ExpiresAt time.Time
	Draft     *Draft
}

// Manager acquires, renews, and releases draft locks over Postgres.
type Manager struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// New creates a Manager. ttl is the lock's dead-man's-switch expiry: a
// holder that stops heartbeating loses the lock after ttl elapses.
func New(pool *pgxpool.Pool, ttl time.Duration) *Manager {
	return &Manager{pool: pool, ttl: ttl}
}

// EnsureSchema creates the drafts table if it does not already exist.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS drafts (
			id              uuid PRIMARY KEY,
			project_id      text NOT NULL,
			owner_id        text NOT NULL,
			title           text NOT NULL DEFAULT '',
			status          text NOT NULL DEFAULT 'DRAFT',
			content         jsonb NOT NULL DEFAULT '{}',
			lock_holder     text,
			lock_expires_at timestamptz,
			version         integer NOT NULL DEFAULT 1,
			created_at      timestamptz NOT NULL DEFAULT now(),
			updated_at      timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensuring drafts schema: %w", err)
	}
	return nil
}

const draftColumns = `id, project_id, owner_id, title, status, content, lock_holder, lock_expires_at, version, created_at, updated_at`

func scanDraft(row pgx.Row) (*Draft, error) {
	var d Draft
	if err := row.Scan(&d.ID, &d.ProjectID, &d.OwnerID, &d.Title, &d.Status, &d.Content,
		&d.LockHolder, &d.LockExpiresAt, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create persists a new draft owned by ownerID, unlocked, in DRAFT status.
func (m *Manager) Create(ctx context.Context, projectID, ownerID, title string, content json.RawMessage) (*Draft, error) {
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	id := uuid.NewString()
	row := m.pool.QueryRow(ctx, `
		INSERT INTO drafts (id, project_id, owner_id, title, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+draftColumns, id, projectID, ownerID, title, content)
	d, err := scanDraft(row)
	if err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}
	return d, nil
}

// List returns every draft scoped to projectID, newest first. Drafts have
// no soft-delete flag, so no draft in the project is filtered out.
func (m *Manager) List(ctx context.Context, projectID string) ([]*Draft, error) {
	rows, err := m.pool.Query(ctx, `
		SELECT `+draftColumns+` FROM drafts WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning draft row: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// Get reads a single draft by id without acquiring or touching its lock.
// Callers needing the manager's safe-view (read access to a draft locked by
// someone else) use Get, never Acquire, so the holder's lock is never
// disturbed.
func (m *Manager) Get(ctx context.Context, draftID string) (*Draft, error) {
	row := m.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, draftID)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading draft: %w", err)
	}
	return d, nil
}

// Acquire takes the draft's lock for holderID, failing with ErrLocked if it
// is already held by someone else and that hold has not expired. Acquiring
// an expired or self-held lock always succeeds and resets the expiry.
func (m *Manager) Acquire(ctx context.Context, draftID, holderID string) (*Grant, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning lock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := scanDraft(tx.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1 FOR UPDATE`, draftID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading draft for lock acquisition: %w", err)
	}

	if holder := d.activeHolder(); holder != nil && *holder != holderID {
		telemetry.LockContentionTotal.Inc()
		return nil, ErrLocked
	}

	newExpiry := time.Now().Add(m.ttl)
	if _, err := tx.Exec(ctx, `
		UPDATE drafts SET lock_holder = $1, lock_expires_at = $2, updated_at = now() WHERE id = $3
	`, holderID, newExpiry, draftID); err != nil {
		return nil, fmt.Errorf("acquiring draft lock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing lock acquisition: %w", err)
	}

	d.LockHolder = &holderID
	d.LockExpiresAt = &newExpiry
	return &Grant{DraftID: draftID, HolderID: holderID, ExpiresAt: newExpiry, Draft: d}, nil
}

// Heartbeat extends an already-held lock's expiry. It fails with
// ErrNotHolder if holderID does not currently hold the lock (including if
// it has already expired).
func (m *Manager) Heartbeat(ctx context.Context, draftID, holderID string) (*Grant, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning heartbeat tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := m.requireHolder(ctx, tx, draftID, holderID); err != nil {
		return nil, err
	}

	newExpiry := time.Now().Add(m.ttl)
	if _, err := tx.Exec(ctx, `
		UPDATE drafts SET lock_expires_at = $1, updated_at = now() WHERE id = $2
	`, newExpiry, draftID); err != nil {
		return nil, fmt.Errorf("renewing draft lock: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing heartbeat: %w", err)
	}
	return &Grant{DraftID: draftID, HolderID: holderID, ExpiresAt: newExpiry}, nil
}

// Release gives up holderID's lock on draftID immediately, regardless of
// its remaining TTL.
func (m *Manager) Release(ctx context.Context, draftID, holderID string) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := m.requireHolder(ctx, tx, draftID, holderID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE drafts SET lock_holder = NULL, lock_expires_at = NULL, updated_at = now() WHERE id = $1
	`, draftID); err != nil {
		return fmt.Errorf("releasing draft lock: %w", err)
	}
	return tx.Commit(ctx)
}

// Update writes new content to the draft. The caller must currently hold
// the lock.
func (m *Manager) Update(ctx context.Context, draftID, holderID string, content json.RawMessage) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := m.requireHolder(ctx, tx, draftID, holderID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE drafts SET content = $1, version = version + 1, updated_at = now() WHERE id = $2
	`, content, draftID); err != nil {
		return fmt.Errorf("updating draft content: %w", err)
	}
	return tx.Commit(ctx)
}

// Submit transitions a draft from DRAFT to PENDING. The caller must hold
// the lock, and submitting releases it — review happens without the
// original editor blocking a manager's safe-view access.
func (m *Manager) Submit(ctx context.Context, draftID, holderID string) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := m.requireHolder(ctx, tx, draftID, holderID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE drafts SET status = $1, lock_holder = NULL, lock_expires_at = NULL, updated_at = now() WHERE id = $2
	`, StatusPending, draftID); err != nil {
		return fmt.Errorf("submitting draft: %w", err)
	}
	return tx.Commit(ctx)
}

// Decide approves or rejects a PENDING draft. It never requires holding the
// edit lock: a manager's safe-view access to review and decide must not
// contend with the draft lock at all.
func (m *Manager) Decide(ctx context.Context, draftID string, approve bool) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning decide tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM drafts WHERE id = $1 FOR UPDATE`, draftID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading draft status: %w", err)
	}
	if status != StatusPending {
		return ErrConflict
	}

	next := StatusRejected
	if approve {
		next = StatusApproved
	}
	if _, err := tx.Exec(ctx, `UPDATE drafts SET status = $1, updated_at = now() WHERE id = $2`, next, draftID); err != nil {
		return fmt.Errorf("deciding draft: %w", err)
	}
	return tx.Commit(ctx)
}

func (m *Manager) requireHolder(ctx context.Context, tx pgx.Tx, draftID, holderID string) error {
	var holder *string
	var expiresAt *time.Time
	err := tx.QueryRow(ctx, `SELECT lock_holder, lock_expires_at FROM drafts WHERE id = $1 FOR UPDATE`, draftID).
		Scan(&holder, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading draft lock state: %w", err)
	}
	if holder == nil || *holder != holderID || expiresAt == nil || time.Now().After(*expiresAt) {
		return ErrNotHolder
	}
	return nil
}
