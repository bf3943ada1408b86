// Package auth verifies the bearer tokens presented at connection time.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hallchat/relay/internal/domain"
)

// ErrAuthentication is terminal for a connection attempt: the caller
// must refuse the connection, no retries.
var ErrAuthentication = errors.New("authentication error")

// Claims is the payload carried inside a relay bearer token.
type Claims struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// Verifier validates tokens against the process-wide secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature and expiry and extracts the identity.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrAuthentication
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return domain.Identity{}, ErrAuthentication
	}
	return domain.Identity{
		UserID:   domain.UserID(claims.UserID),
		UserName: claims.UserName,
	}, nil
}

// GenerateToken signs a token for the given identity. Used by the
// tokengen command and tests.
func GenerateToken(secret string, id domain.Identity, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:   string(id.UserID),
		UserName: id.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "relay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
