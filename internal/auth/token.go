package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken creates a signed HS256 JWT for the given user.
func IssueToken(secret []byte, user Principal, ttl time.Duration) (string, error) {
	if len(secret) < MinSecretLength {
		return "", ErrWeakSecret
	}

	now := time.Now()
	claims := &Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
