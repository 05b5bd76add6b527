package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// claims are the JWT claims extracted from a verified identity-provider
// token. groups becomes the principal's project set directly: project
// membership is managed by the identity provider, not by this service.
type claims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Role    string   `json:"role"`
	Groups  []string `json:"groups"`
}

// Resolver verifies bearer credentials against an external identity
// provider's published keys and produces a Principal.
type Resolver struct {
	verifier *oidc.IDTokenVerifier
}

// NewResolver performs OIDC discovery against issuerURL and returns a
// Resolver backed by the provider's verification keys.
func NewResolver(ctx context.Context, issuerURL, clientID string) (*Resolver, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering identity provider %s: %w", issuerURL, err)
	}
	return &Resolver{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// Resolve verifies the bearer credential's signature and expiry and returns
// the Principal it names. The only error categories it returns are
// "missing credential" and "invalid credential" — the Authenticate
// middleware answers both with 401 Unauthorized.
func (r *Resolver) Resolve(ctx context.Context, bearerCredential string) (*Principal, error) {
	token := strings.TrimPrefix(bearerCredential, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("missing credential")
	}

	idToken, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invalid credential: %w", err)
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("invalid credential: extracting claims: %w", err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("invalid credential: missing sub claim")
	}

	role := Role(strings.ToUpper(c.Role))
	if !IsValidRole(role) {
		role = RoleDeveloper
	}

	projects := make(map[string]struct{}, len(c.Groups))
	for _, g := range c.Groups {
		projects[g] = struct{}{}
	}

	return &Principal{
		Subject:  c.Subject,
		Email:    c.Email,
		Role:     role,
		Projects: projects,
	}, nil
}
