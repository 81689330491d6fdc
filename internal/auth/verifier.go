// Package auth implements password hashing and verification of
// externally issued identity tokens.
package auth

import (
	"context"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ExternalIdentity is the result of verifying an externally issued token.
type ExternalIdentity struct {
	// Subject is the stable identifier assigned by the identity provider.
	Subject string

	// Email is the verified email claim, empty when absent.
	Email string
}

// TokenVerifier validates a compact signed token. Implementations report
// failure by returning ok=false; they never surface the reason to the
// caller and never log the raw token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*ExternalIdentity, bool)
}

// JWKSVerifier verifies RS256 tokens against the issuer's published key
// set. The key set is fetched lazily, cached for concurrent readers, and
// re-fetched once when a token references an unknown key id.
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewJWKSVerifier constructs a verifier for the given JWKS endpoint.
// Tokens must carry the expected issuer and audience.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer, audience string) *JWKSVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{
		ClientID: audience,
	})
	return &JWKSVerifier{verifier: verifier}
}

// Verify checks signature, issuer, audience, and expiry. Any failure,
// including a missing subject claim, yields (nil, false).
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (*ExternalIdentity, bool) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, false
	}
	if token.Subject == "" {
		return nil, false
	}

	var claims struct {
		Email     string `json:"email"`
		NotBefore int64  `json:"nbf"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, false
	}
	if claims.NotBefore != 0 && time.Unix(claims.NotBefore, 0).After(time.Now()) {
		return nil, false
	}

	return &ExternalIdentity{Subject: token.Subject, Email: claims.Email}, true
}
