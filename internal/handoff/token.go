package handoff

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks the authentication token that account-management
// routing requires. The core never authenticates credentials; it only
// verifies that an upstream layer issued this token.
type TokenVerifier interface {
	Verify(token string) error
}

// HMACTokenVerifier validates HS256-signed tokens against a shared secret.
type HMACTokenVerifier struct {
	secret []byte
}

func NewHMACTokenVerifier(secret string) *HMACTokenVerifier {
	return &HMACTokenVerifier{secret: []byte(secret)}
}

func (v *HMACTokenVerifier) Verify(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	if len(v.secret) == 0 {
		return fmt.Errorf("token secret not configured")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
