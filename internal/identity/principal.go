// Package identity resolves an inbound bearer credential into a Principal:
// the caller's subject, project memberships, and derived role. No handler in
// this repository trusts a client-asserted role — role is derived from
// verified token claims, except under the development-only
// DevBypassAuthenticator, which reads it from its synthetic credential.
package identity

import "context"

// Role is a caller's privilege level, derived from verified credential
// claims. RoleManager unlocks the workbench's safe-view and transition
// operations; outside DevBypassAuthenticator it is never accepted as a raw
// claim from the client.
type Role string

const (
	RoleDeveloper Role = "DEVELOPER"
	RoleManager   Role = "MANAGER"
)

var roleLevel = map[Role]int{
	RoleDeveloper: 10,
	RoleManager:   20,
}

// IsValidRole reports whether r is a role this repository understands.
func IsValidRole(r Role) bool {
	_, ok := roleLevel[r]
	return ok
}

// AtLeast reports whether r meets or exceeds min in privilege.
func (r Role) AtLeast(min Role) bool {
	return roleLevel[r] >= roleLevel[min]
}

// Principal is the resolved, authenticated identity of an inbound request.
type Principal struct {
	Subject  string
	Email    string
	Role     Role
	Projects map[string]struct{}
}

// InProject reports whether the principal is a member of projectID.
func (p *Principal) InProject(projectID string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Projects[projectID]
	return ok
}

type principalKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the Principal stored in ctx, or nil if none.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
