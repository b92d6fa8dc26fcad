package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
)

const (
	// TokenHeader carries the JWT, as an alternative to a Bearer Authorization header.
	TokenHeader = "x-auth-token"

	// Issuer is the iss claim of tokens minted by IssueToken.
	Issuer = "docsign"

	// MinSecretLength is the minimum HMAC secret size in bytes.
	MinSecretLength = 32
)

var (
	// ErrMissingToken is returned when the request carries no token.
	ErrMissingToken = errors.New("token not found, authorization denied")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWeakSecret is returned for secrets shorter than MinSecretLength.
	ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Principal represents an authenticated user from a JWT.
// This is added to the request context after successful JWT verification.
type Principal struct {
	UserID   string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Claims is the JWT payload. The user claim mirrors the identity provider's token layout.
type Claims struct {
	User Principal `json:"user"`
	jwt.RegisteredClaims
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// WithPrincipal returns a context carrying principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// JWTVerifier verifies HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for the shared secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &JWTVerifier{secret: secret, now: time.Now}, nil
}

// Verify parses and validates a token, returning its principal.
func (v *JWTVerifier) Verify(tokenString string) (*Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	principal := claims.User
	if principal.UserID == "" {
		principal.UserID = claims.Subject
	}
	if principal.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return &principal, nil
}

// Middleware returns an HTTP middleware that verifies JWTs and stores the principal in the
// request context.
func (v *JWTVerifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				log.Debug().Msg("Missing auth token")
				httpmiddleware.WriteJSON(w, http.StatusUnauthorized, httpmiddleware.ErrorResponse{Error: ErrMissingToken.Error()})
				return
			}

			principal, err := v.Verify(tokenString)
			if err != nil {
				log.Debug().Err(err).Msg("Failed to verify JWT")
				httpmiddleware.WriteJSON(w, http.StatusUnauthorized, httpmiddleware.ErrorResponse{Error: ErrInvalidToken.Error()})
				return
			}

			ctx := r.Context()
			zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", principal.UserID)
			})

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// extractToken reads the token from x-auth-token, falling back to a Bearer Authorization header.
func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
