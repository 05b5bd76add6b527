//go:build integration

package vault

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	store := NewStore(pool, "integration-test-master-key")
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return store
}

func TestPutThenLookup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "proj-vault-1", "openai", "sk-raw-value"); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Lookup(ctx, "proj-vault-1", "openai")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Raw != "sk-raw-value" {
		t.Fatalf("got raw %q, want sk-raw-value", got.Raw)
	}
}

func TestLookupMissingReturnsNotFound(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Lookup(context.Background(), "proj-does-not-exist", "openai"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutReplacesExistingSecret(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "proj-vault-2", "anthropic", "sk-old"); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if _, err := s.Put(ctx, "proj-vault-2", "anthropic", "sk-new"); err != nil {
		t.Fatalf("put new: %v", err)
	}

	got, err := s.Lookup(ctx, "proj-vault-2", "anthropic")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Raw != "sk-new" {
		t.Fatalf("got raw %q, want sk-new", got.Raw)
	}
}
