package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/triagecore/triagecore/pkg/models"
)

// ContextKey represents keys for context values
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

// PrincipalClaims are the JWT claims operator tokens carry.
type PrincipalClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAuth validates the Bearer token and stores the resolved principal
// in the request context. Requests without a valid token never reach the
// handlers.
func RequireAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			principal, err := parsePrincipal(tokenParts[1], secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(PrincipalContextKey), principal)
			return next(c)
		}
	}
}

func parsePrincipal(tokenString string, secret []byte) (*models.Principal, error) {
	// An empty HMAC key would verify any token signed with the empty string.
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &PrincipalClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = fmt.Errorf("invalid token")
		}
		return nil, err
	}

	claims, ok := token.Claims.(*PrincipalClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, fmt.Errorf("token missing subject or role")
	}

	return &models.Principal{
		ID:   claims.Subject,
		Role: models.RoleName(claims.Role),
	}, nil
}

// GetPrincipal extracts the authenticated principal from echo context
func GetPrincipal(c echo.Context) *models.Principal {
	v := c.Get(string(PrincipalContextKey))
	if v == nil {
		return nil
	}
	principal, ok := v.(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}
