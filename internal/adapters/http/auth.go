package httpadapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"verity/internal/domain"
)

type callerKey struct{}

// authClaims is the token shape the auth collaborator issues: subject plus a
// role claim. Issuance happens elsewhere; this middleware only verifies.
type authClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Authenticator verifies bearer tokens and resolves the caller identity
// every core operation runs under.
func Authenticator(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}
			claims := &authClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token", nil)
				return
			}
			role := domain.Role(claims.Role)
			switch role {
			case domain.RoleClient, domain.RoleExpert, domain.RoleAdmin:
			default:
				writeError(w, http.StatusForbidden, "unknown role", nil)
				return
			}
			caller := domain.Caller{ID: claims.Subject, Role: role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
		})
	}
}

func callerFrom(r *http.Request) domain.Caller {
	c, _ := r.Context().Value(callerKey{}).(domain.Caller)
	return c
}
