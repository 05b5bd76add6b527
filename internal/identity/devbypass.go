package identity

import (
	"context"
	"fmt"
	"strings"
)

// DevBypassAuthenticator accepts a synthetic credential shaped
// "dev:<role>:<subject>:<project1,project2,...>" instead of a real OIDC
// token. It exists only for local development when no identity provider is
// configured, mirroring the disposable header-based bypass every service in
// this codebase's lineage has had for exactly that purpose. It is wired
// only outside production, and only when OIDCIssuerURL and OIDCClientID are
// not both set.
type DevBypassAuthenticator struct{}

// NewDevBypassAuthenticator creates a DevBypassAuthenticator.
func NewDevBypassAuthenticator() *DevBypassAuthenticator {
	return &DevBypassAuthenticator{}
}

// Resolve implements Authenticator.
func (DevBypassAuthenticator) Resolve(_ context.Context, credential string) (*Principal, error) {
	token := strings.TrimPrefix(credential, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	token = strings.TrimSpace(token)

	parts := strings.SplitN(token, ":", 4)
	if len(parts) != 4 || parts[0] != "dev" {
		return nil, fmt.Errorf("not a dev-bypass credential")
	}

	role := Role(strings.ToUpper(parts[1]))
	if !IsValidRole(role) {
		role = RoleDeveloper
	}

	projects := make(map[string]struct{})
	for _, p := range strings.Split(parts[3], ",") {
		if p = strings.TrimSpace(p); p != "" {
			projects[p] = struct{}{}
		}
	}

	return &Principal{Subject: parts[2], Role: role, Projects: projects}, nil
}
