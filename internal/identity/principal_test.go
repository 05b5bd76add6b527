package identity

import (
	"context"
	"testing"
)

func TestRoleAtLeast(t *testing.T) {
	if !RoleManager.AtLeast(RoleDeveloper) {
		t.Error("manager should meet the developer floor")
	}
	if RoleDeveloper.AtLeast(RoleManager) {
		t.Error("developer should not meet the manager floor")
	}
	if !RoleManager.AtLeast(RoleManager) {
		t.Error("a role should always meet its own floor")
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleManager) {
		t.Error("RoleManager should be valid")
	}
	if IsValidRole(Role("OWNER")) {
		t.Error("unknown role should not be valid")
	}
}

func TestInProject(t *testing.T) {
	p := &Principal{Projects: map[string]struct{}{"proj-a": {}}}
	if !p.InProject("proj-a") {
		t.Error("expected membership in proj-a")
	}
	if p.InProject("proj-b") {
		t.Error("did not expect membership in proj-b")
	}
	var nilP *Principal
	if nilP.InProject("proj-a") {
		t.Error("nil principal must never report membership")
	}
}

func TestContextRoundTrip(t *testing.T) {
	p := &Principal{Subject: "user-1", Role: RoleDeveloper}
	ctx := NewContext(context.Background(), p)
	got := FromContext(ctx)
	if got != p {
		t.Fatalf("FromContext returned %v, want %v", got, p)
	}
	if FromContext(context.Background()) != nil {
		t.Error("expected nil principal on a bare context")
	}
}
