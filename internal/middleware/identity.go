package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Claims carried by storefront bearer tokens. Subject is the user id.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is who a request acts for: always a session, plus a user when a
// valid bearer token was presented.
type Identity struct {
	SessionID string
	User      *Claims
}

// Owner picks the user when authenticated, otherwise the session
func (id Identity) Owner() models.Owner {
	if id.User != nil {
		return models.UserOwner(id.User.Subject)
	}
	return models.SessionOwner(id.SessionID)
}

func (id Identity) IsAdmin() bool {
	return id.User != nil && id.User.Role == models.RoleAdmin
}

// IdentityConfig configures IdentityMiddleware
type IdentityConfig struct {
	CookieName string
	MaxAge     time.Duration
	Secret     []byte
	Secure     bool
}

// IdentityMiddleware resolves the session cookie (issuing one when missing)
// and the optional bearer token. A malformed or expired token is a 401.
func IdentityMiddleware(cfg IdentityConfig, logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity

			if auth := r.Header.Get("Authorization"); auth != "" {
				raw, ok := strings.CutPrefix(auth, "Bearer ")
				if !ok {
					writeError(w, http.StatusUnauthorized, "unauthenticated", "Authorization header must be a bearer token")
					return
				}
				claims, err := ParseToken(cfg.Secret, raw)
				if err != nil {
					logger.Debug("rejected bearer token", zap.Error(err))
					writeError(w, http.StatusUnauthorized, "unauthenticated", "Invalid or expired token")
					return
				}
				id.User = claims
			}

			id.SessionID = r.Header.Get("X-Session-ID")
			if id.SessionID == "" {
				if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
					id.SessionID = c.Value
				}
			}
			if id.SessionID == "" {
				id.SessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    id.SessionID,
					Path:     "/",
					MaxAge:   int(cfg.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the request identity and whether one was set
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity stores id on ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// RequireUser rejects anonymous requests with 401
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		if id.User == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		switch {
		case id.User == nil:
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		case !id.IsAdmin():
			writeError(w, http.StatusForbidden, "unauthorized", "Admin access required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// IssueToken signs an HS256 token for user valid for ttl
func IssueToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HS256 token and returns its claims
func ParseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
