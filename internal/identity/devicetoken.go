package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// deviceFlowIssuer is the registered issuer claim on tokens minted by the
// mocked SSO device flow, distinguishing them from a real identity
// provider's tokens at verification time.
const deviceFlowIssuer = "adlcgate-device-flow"

// deviceClaims are the custom claims embedded in a device-flow access
// token. Role is always DEVELOPER: the mocked flow has no path to grant an
// elevated role, since nothing backs the approval but a poll counter.
type deviceClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

// TokenIssuer mints short-lived, self-signed access tokens for the mocked
// device authorization flow. It exists only because the flow has no real
// identity provider behind it to issue a credential C1 can later verify.
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenIssuer creates a TokenIssuer. secret must be non-empty; ttl is how
// long a minted token remains valid.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("device flow signing secret must not be empty")
	}
	return &TokenIssuer{signingKey: []byte(secret), ttl: ttl}, nil
}

// Issue mints an access token for subject/email. The device flow always
// grants RoleDeveloper.
func (i *TokenIssuer) Issue(subject, email string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: i.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating device token signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(i.ttl)),
		Issuer:   deviceFlowIssuer,
	}
	custom := deviceClaims{Subject: subject, Email: email, Role: string(RoleDeveloper)}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return token, nil
}

// TTL reports the configured token lifetime, used to populate the device
// token response's expires_in field.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// TokenVerifier verifies access tokens minted by TokenIssuer.
type TokenVerifier struct {
	signingKey []byte
}

// NewTokenVerifier creates a TokenVerifier using the same shared secret as
// the issuer.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{signingKey: []byte(secret)}
}

// Resolve is the device-flow leg of CompositeAuthenticator. It accepts the
// bearer credential with or without its "Bearer " prefix and returns an
// error if it is not a token this verifier's secret can validate —
// including tokens issued by a real identity provider, which fall through
// to the OIDC resolver.
func (v *TokenVerifier) Resolve(credential string) (*Principal, error) {
	token := strings.TrimPrefix(credential, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	token = strings.TrimSpace(token)

	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing device token: %w", err)
	}

	var registered jwt.Claims
	var custom deviceClaims
	if err := tok.Claims(v.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying device token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: deviceFlowIssuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating device token claims: %w", err)
	}

	role := Role(custom.Role)
	if !IsValidRole(role) {
		role = RoleDeveloper
	}

	return &Principal{
		Subject:  custom.Subject,
		Email:    custom.Email,
		Role:     role,
		Projects: map[string]struct{}{},
	}, nil
}
