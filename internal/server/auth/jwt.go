// Package auth signs and parses the HS256 session tokens handed to clients.
// A token only proves who the server issued it to; whether the session is
// still live is decided by the session registry.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chatrelay"

// Claims carries the session id in jti and the username in sub.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs a token for session sessionID owned by username.
func GenerateToken(sessionID, username string, secretKey []byte, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry of tokenString and returns
// the session id and username it carries. Expired tokens yield
// common.ErrTokenExpired; anything else that fails verification yields
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (sessionID, username string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", common.ErrTokenExpired
		}
		return "", "", common.ErrInvalidToken
	}

	if !token.Valid || claims.ID == "" || claims.Subject == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.ID, claims.Subject, nil
}
