package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// Skipper bypasses authentication, e.g. for health checks.
	Skipper func(c echo.Context) bool
}

// IssueToken signs an HS256 token for subject. Used by the CLI to mint
// operator tokens and by tests.
func IssueToken(cfg JWTConfig, subject string, roles []string, ttl time.Duration) (string, error) {
	if len(cfg.SigningKey) == 0 {
		return "", fmt.Errorf("signing key is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), claims.Subject, claims.Roles)))
			return next(c)
		}
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on a websocket handshake, so /ws also accepts ?access_token=.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if c.Path() == "/ws" {
			if t := c.QueryParam("access_token"); t != "" {
				return t, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}

// DevAuthMiddleware lets unauthenticated requests through as an admin
// "dev-user". Never enabled outside development.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				ctx := WithUser(c.Request().Context(), "dev-user", []string{RoleAdmin})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// WithUser stores the authenticated subject and roles on ctx.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
