package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagecore/triagecore/internal/contextstore"
	"github.com/triagecore/triagecore/internal/triage"
	"github.com/triagecore/triagecore/pkg/models"
)

var testSecret = []byte("test-secret")

func signTestToken(t *testing.T, secret []byte, subject, role string) string {
	t.Helper()
	claims := PrincipalClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestParsePrincipal(t *testing.T) {
	token := signTestToken(t, testSecret, "agent-7", "operator")

	principal, err := parsePrincipal(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", principal.ID)
	assert.Equal(t, models.RoleOperator, principal.Role)
}

func TestParsePrincipalForgedSignature(t *testing.T) {
	token := signTestToken(t, []byte("wrong-secret"), "agent-7", "operator")

	_, err := parsePrincipal(token, testSecret)
	assert.Error(t, err)
}

func TestParsePrincipalEmptySecretRejectsEverything(t *testing.T) {
	// A token signed with the empty string verifies against an empty HMAC
	// key, so an unconfigured secret must reject outright.
	token := signTestToken(t, []byte(""), "intruder", "admin")

	_, err := parsePrincipal(token, []byte(""))
	assert.Error(t, err)

	_, err = parsePrincipal(signTestToken(t, testSecret, "agent-7", "operator"), nil)
	assert.Error(t, err)
}

func TestParsePrincipalMissingRole(t *testing.T) {
	token := signTestToken(t, testSecret, "agent-7", "")

	_, err := parsePrincipal(token, testSecret)
	assert.Error(t, err)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"denied", triage.ErrDenied{Reason: "role lacks permission"}, http.StatusForbidden},
		{"pending missing", triage.ErrPendingNotFound, http.StatusNotFound},
		{"conversation missing", contextstore.ErrNotFound, http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr, ok := toHTTPError(tt.err).(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, tt.code, httpErr.Code)
		})
	}
}
