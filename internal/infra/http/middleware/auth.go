package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/usecase"
)

// Claims are the identity provider token claims we rely on.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTAuth verifies HS256 bearer tokens minted by the identity provider.
type JWTAuth struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewJWTAuth(secret, issuer string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

func (a *JWTAuth) parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func roleOf(s string) (entity.Role, bool) {
	switch r := entity.Role(strings.ToLower(s)); r {
	case entity.RoleAdmin, entity.RoleManager, entity.RoleSystem:
		return r, true
	}
	return "", false
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller as a usecase.Actor in the context.
func (a *JWTAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		role, ok := roleOf(claims.Role)
		if !ok {
			writeAuthError(w, http.StatusForbidden, "role not allowed")
			return
		}

		actor := usecase.Actor{UserID: claims.Subject, Role: role}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRoles lets through only the listed roles. It must run after
// Authenticate.
func RequireRoles(roles ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, http.StatusForbidden, "role not allowed")
		})
	}
}

func WithActor(ctx context.Context, actor usecase.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (usecase.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(usecase.Actor)
	return actor, ok
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
