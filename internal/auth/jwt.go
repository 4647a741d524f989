package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const OperatorRole = "operator"

type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateOperatorJWT issues the HS256 token the mismatch-resolution and
// listing endpoints require.
func GenerateOperatorJWT(secret, email string) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET_KEY not set in environment variables")
	}

	claims := OperatorClaims{
		Role: OperatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "studio-verifier-service",
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseOperatorJWT validates a token and returns its claims.
func ParseOperatorJWT(secret, tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method in token")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || claims.Role != OperatorRole {
		return nil, errors.New("token does not carry operator claims")
	}
	return claims, nil
}
