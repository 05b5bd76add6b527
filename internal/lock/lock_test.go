//go:build integration

package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func setupTestManager(t *testing.T, ttl time.Duration) (*Manager, string) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	m := New(pool, ttl)
	if err := m.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}

	draftID := uuid.NewString()
	_, err = pool.Exec(context.Background(), `
		INSERT INTO drafts (id, project_id, owner_id, status, content) VALUES ($1, 'proj-1', 'owner-1', 'DRAFT', '{}')
	`, draftID)
	if err != nil {
		t.Fatalf("inserting test draft: %v", err)
	}
	return m, draftID
}

func TestAcquireThenContendedAcquireFails(t *testing.T) {
	m, draftID := setupTestManager(t, time.Minute)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("alice Acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, draftID, "bob"); err != ErrLocked {
		t.Fatalf("expected ErrLocked for bob, got %v", err)
	}
}

func TestAcquireSameHolderSucceeds(t *testing.T) {
	m, draftID := setupTestManager(t, time.Minute)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("re-Acquire by same holder should succeed: %v", err)
	}
}

func TestAcquireAfterExpiryLetsAnotherHolderIn(t *testing.T) {
	m, draftID := setupTestManager(t, 1*time.Second)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("alice Acquire: %v", err)
	}
	time.Sleep(2 * time.Second)

	if _, err := m.Acquire(ctx, draftID, "bob"); err != nil {
		t.Fatalf("expected bob to acquire expired lock, got %v", err)
	}
}

func TestUpdateRequiresHolder(t *testing.T) {
	m, draftID := setupTestManager(t, time.Minute)
	ctx := context.Background()

	if err := m.Update(ctx, draftID, "alice", []byte(`{"x":1}`)); err != ErrNotHolder {
		t.Fatalf("expected ErrNotHolder, got %v", err)
	}

	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Update(ctx, draftID, "alice", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Update after Acquire: %v", err)
	}
}

func TestSubmitReleasesLockThenDecideApproves(t *testing.T) {
	m, draftID := setupTestManager(t, time.Minute)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Submit(ctx, draftID, "alice"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Lock released on submit: another holder can now acquire it.
	if _, err := m.Acquire(ctx, draftID, "bob"); err != nil {
		t.Fatalf("expected lock free after submit, got %v", err)
	}

	if err := m.Decide(ctx, draftID, true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := m.Decide(ctx, draftID, true); err != ErrConflict {
		t.Fatalf("expected ErrConflict on second decide, got %v", err)
	}
}

func TestHeartbeatExtendsExpiry(t *testing.T) {
	m, draftID := setupTestManager(t, 2*time.Second)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, draftID, "alice"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(1 * time.Second)
	if _, err := m.Heartbeat(ctx, draftID, "alice"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	// Still held by alice because the heartbeat pushed expiry forward.
	if _, err := m.Acquire(ctx, draftID, "bob"); err != ErrLocked {
		t.Fatalf("expected lock still held after heartbeat, got %v", err)
	}
}
