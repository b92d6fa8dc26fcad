package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-that-is-long-enough-for-hs256")

func createSignedToken(t *testing.T, method jwt.SigningMethod, key any, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err)
	return tokenStr
}

func testClaims(ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		User: Principal{UserID: "user-1", Username: "jane"},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestNewJWTVerifier(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		v, err := NewJWTVerifier([]byte("short"))
		require.ErrorIs(t, err, ErrWeakSecret)
		require.Nil(t, v)
	})

	t.Run("valid secret", func(t *testing.T) {
		v, err := NewJWTVerifier(testSecret)
		require.NoError(t, err)
		require.NotNil(t, v)
	})
}

func TestJWTVerifier_Verify(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	t.Run("issued token", func(t *testing.T) {
		token, err := IssueToken(testSecret, Principal{UserID: "user-1", Username: "jane", Email: "jane@example.com"}, time.Hour)
		require.NoError(t, err)

		p, err := v.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "user-1", p.UserID)
		require.Equal(t, "jane", p.Username)
		require.Equal(t, "jane@example.com", p.Email)
	})

	t.Run("subject fallback", func(t *testing.T) {
		claims := testClaims(time.Hour)
		claims.User = Principal{}
		claims.Subject = "user-2"

		p, err := v.Verify(createSignedToken(t, jwt.SigningMethodHS256, testSecret, claims))
		require.NoError(t, err)
		require.Equal(t, "user-2", p.UserID)
	})

	t.Run("missing user id", func(t *testing.T) {
		claims := testClaims(time.Hour)
		claims.User = Principal{}

		_, err := v.Verify(createSignedToken(t, jwt.SigningMethodHS256, testSecret, claims))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(createSignedToken(t, jwt.SigningMethodHS256, testSecret, testClaims(-time.Minute)))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		claims := testClaims(time.Hour)
		claims.ExpiresAt = nil

		_, err := v.Verify(createSignedToken(t, jwt.SigningMethodHS256, testSecret, claims))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := []byte("another-secret-key-that-is-long-enough-too")
		_, err := v.Verify(createSignedToken(t, jwt.SigningMethodHS256, other, testClaims(time.Hour)))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := v.Verify(createSignedToken(t, jwt.SigningMethodHS512, testSecret, testClaims(time.Hour)))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIssueToken_weakSecret(t *testing.T) {
	_, err := IssueToken([]byte("short"), Principal{UserID: "user-1"}, time.Hour)
	require.ErrorIs(t, err, ErrWeakSecret)
}

func TestJWTVerifier_Middleware(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token, err := IssueToken(testSecret, Principal{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	var captured *Principal
	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		header   string
		value    string
		expected int
	}{
		{"x-auth-token", TokenHeader, token, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + token, http.StatusOK},
		{"lowercase bearer", "Authorization", "bearer " + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"basic auth", "Authorization", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"invalid", TokenHeader, "invalid", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured = nil
			r := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			require.Equal(t, tt.expected, w.Code)
			if tt.expected == http.StatusOK {
				require.NotNil(t, captured)
				require.Equal(t, "user-1", captured.UserID)
			} else {
				require.Nil(t, captured)
			}
		})
	}
}

func TestPrincipalFromContext_missing(t *testing.T) {
	require.Nil(t, PrincipalFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
