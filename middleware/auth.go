package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/tt-club/tournament-system/models"
)

type contextKey string

const memberContextKey contextKey = "member"

const (
	jwtClaimMemberID = "member_id"
	jwtClaimRole     = "role"
)

// Authenticator validates bearer tokens and exposes the member claims to
// downstream handlers.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate rejects requests without a valid HS256 bearer token.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), memberContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authorize allows only the listed roles through. Must run after
// Authenticate.
func Authorize(roles ...models.MemberRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := GetRole(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

// GetMemberID returns the authenticated member's ID from the request
// context.
func GetMemberID(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(memberContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("member claims not found in context")
	}
	raw, ok := claims[jwtClaimMemberID]
	if !ok {
		return 0, fmt.Errorf("missing %q claim in token", jwtClaimMemberID)
	}
	// JSON numbers decode as float64.
	id, ok := raw.(float64)
	if !ok || id != float64(int(id)) || int(id) <= 0 {
		return 0, fmt.Errorf("invalid %q claim: %v", jwtClaimMemberID, raw)
	}
	return int(id), nil
}

// GetRole returns the authenticated member's role from the request context.
func GetRole(ctx context.Context) (models.MemberRole, error) {
	claims, ok := ctx.Value(memberContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("member claims not found in context")
	}
	raw, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing %q claim in token", jwtClaimRole)
	}
	roleStr, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("invalid %q claim: %v", jwtClaimRole, raw)
	}
	role := models.MemberRole(roleStr)
	switch role {
	case models.RoleAdmin, models.RoleOrganizer, models.RolePlayer:
		return role, nil
	default:
		return "", fmt.Errorf("invalid role value in claim: %q", roleStr)
	}
}
