package identity

import "context"

// Authenticator resolves a bearer credential into a Principal.
type Authenticator interface {
	Resolve(ctx context.Context, credential string) (*Principal, error)
}

// deviceVerifier is the narrow interface CompositeAuthenticator needs from
// TokenVerifier; it takes no context because verifying an HMAC-signed local
// token never performs I/O.
type deviceVerifier interface {
	Resolve(credential string) (*Principal, error)
}

// CompositeAuthenticator tries the mocked device-flow token verifier first
// (a cheap, local HMAC check) before falling back to the real identity
// provider. Only one of the two will ever recognize a given credential's
// issuer, so trying both costs nothing but a failed local parse on
// provider-issued tokens.
type CompositeAuthenticator struct {
	device deviceVerifier
	oidc   Authenticator
}

// NewCompositeAuthenticator creates a CompositeAuthenticator.
func NewCompositeAuthenticator(device *TokenVerifier, oidc Authenticator) *CompositeAuthenticator {
	return &CompositeAuthenticator{device: device, oidc: oidc}
}

// Resolve implements Authenticator.
func (c *CompositeAuthenticator) Resolve(ctx context.Context, credential string) (*Principal, error) {
	if p, err := c.device.Resolve(credential); err == nil {
		return p, nil
	}
	return c.oidc.Resolve(ctx, credential)
}
