package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is the JWT payload: subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid or expired token")

// VerifyToken checks the HS256 signature and expiry of raw against
// secret and returns the subject user id. Pure local verification, no
// store access.
func VerifyToken(raw, secret string) (uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || secret == "" {
		return 0, ErrInvalidToken
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return 0, ErrInvalidToken
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, ErrInvalidToken
	}
	return uint(uid), nil
}

// GenerateToken signs an HS256 token for userID, expiring after ttl.
func GenerateToken(userID uint, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
