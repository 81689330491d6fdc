package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/beacon-site/apiserver/internal/auth"
	"github.com/beacon-site/apiserver/types"
)

// CodeUnauthenticated is the machine-readable code carried by
// authentication-required failures.
const CodeUnauthenticated = "UNAUTHENTICATED"

// ErrUnauthenticated is returned by RequireAuth on an anonymous request.
var ErrUnauthenticated = errors.New("authentication required")

// Identity is the request-scoped resolved principal: id and email only,
// never the password hash. The zero value means anonymous. It is built
// once per request and immutable afterwards.
type Identity struct {
	UserID string
	Email  string
}

type contextKey string

const identityContextKey contextKey = "identity"

// SessionResolver resolves an opaque session token to its user.
type SessionResolver interface {
	UserFromSession(ctx context.Context, sessionToken string) (types.User, error)
}

// WithIdentity builds the request identity from the bearer credential,
// when one is present. A compact three-part token goes to the external
// token verifier; anything else is looked up as a session token. A
// missing or garbled credential yields an anonymous identity rather
// than aborting the request; the access gate decides later.
func WithIdentity(verifier auth.TokenVerifier, sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			var identity Identity
			if strings.Count(token, ".") == 2 {
				if external, ok := verifier.Verify(r.Context(), token); ok {
					identity = Identity{UserID: external.Subject, Email: external.Email}
				}
			} else if sessions != nil {
				if user, err := sessions.UserFromSession(r.Context(), token); err == nil {
					identity = Identity{UserID: user.ID, Email: user.Email}
				}
			}

			if identity == (Identity{}) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth gates a route subtree: anonymous requests are rejected
// with 401 and code UNAUTHENTICATED before any handler runs. Protected
// resolvers are registered under this middleware so the check cannot be
// forgotten per handler.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := OptionalAuth(r.Context()); !ok {
			writeErrorCode(w, http.StatusUnauthorized, ErrUnauthenticated.Error(), CodeUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MustIdentity returns the resolved identity or ErrUnauthenticated.
// Handlers behind RequireAuth can ignore the error; handlers outside it
// use this as the in-body gate.
func MustIdentity(ctx context.Context) (Identity, error) {
	identity, ok := OptionalAuth(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}

// OptionalAuth returns the identity when one was resolved. It never
// fails; operations that personalize without requiring login use it.
func OptionalAuth(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok && identity != Identity{}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
