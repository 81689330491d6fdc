package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Verifier validates tokens signed with a shared secret. Intended
// for local development where no JWKS endpoint is available.
type HS256Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

type hs256Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

func NewHS256Verifier(secret, issuer, audience string) *HS256Verifier {
	return &HS256Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

func (v *HS256Verifier) Verify(_ context.Context, raw string) (*ExternalIdentity, bool) {
	claims := &hs256Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, false
	}
	if claims.Subject == "" {
		return nil, false
	}
	return &ExternalIdentity{Subject: claims.Subject, Email: claims.Email}, true
}
