package identity

import (
	"context"
	"testing"
)

func TestDevBypassResolve(t *testing.T) {
	a := NewDevBypassAuthenticator()
	p, err := a.Resolve(context.Background(), "Bearer dev:manager:alice:proj-a,proj-b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Subject != "alice" || p.Role != RoleManager {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if !p.InProject("proj-a") || !p.InProject("proj-b") {
		t.Fatalf("expected both projects, got %+v", p.Projects)
	}
}

func TestDevBypassRejectsNonDevCredential(t *testing.T) {
	a := NewDevBypassAuthenticator()
	if _, err := a.Resolve(context.Background(), "Bearer eyJhbGciOi..."); err == nil {
		t.Fatal("expected error for non dev-bypass credential")
	}
}

func TestDevBypassUnknownRoleDefaultsToDeveloper(t *testing.T) {
	a := NewDevBypassAuthenticator()
	p, err := a.Resolve(context.Background(), "dev:owner:bob:proj-a")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Role != RoleDeveloper {
		t.Fatalf("expected fallback to RoleDeveloper, got %s", p.Role)
	}
}
