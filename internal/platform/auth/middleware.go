// Package auth reads the caller's identity from a bearer token and makes it
// available to handlers. Account management lives elsewhere.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

const (
	RolePatient  = "patient"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// Dev headers accepted by DevAuthMiddleware.
const (
	HeaderDevUserID = "X-User-ID"
	HeaderDevRole   = "X-User-Role"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

// WithIdentity returns a context carrying userID and roles.
func WithIdentity(ctx context.Context, userID uuid.UUID, roles ...string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

// UserIDFromContext returns uuid.Nil when no identity is present.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return id
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// HasRole reports whether the caller holds role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// IssueToken signs an HS256 token for userID. Used by tests and tooling.
func IssueToken(cfg JWTConfig, userID uuid.UUID, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

func parseBearer(c echo.Context, cfg JWTConfig) (context.Context, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	return WithIdentity(c.Request().Context(), userID, claims.Roles...), nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := parseBearer(c, cfg)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevAuthMiddleware accepts X-User-ID / X-User-Role headers so the API can be
// exercised without a token issuer. A bearer token, when present, is still
// validated. With neither, the caller is an anonymous admin.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get("Authorization") != "" {
				ctx, err := parseBearer(c, cfg)
				if err != nil {
					return err
				}
				c.SetRequest(req.WithContext(ctx))
				return next(c)
			}

			userID := uuid.Nil
			if raw := req.Header.Get(HeaderDevUserID); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+HeaderDevUserID)
				}
				userID = id
			}
			roles := []string{RoleAdmin}
			if raw := req.Header.Get(HeaderDevRole); raw != "" {
				roles = strings.Split(raw, ",")
				for i := range roles {
					roles[i] = strings.TrimSpace(roles[i])
				}
			}

			c.SetRequest(req.WithContext(WithIdentity(req.Context(), userID, roles...)))
			return next(c)
		}
	}
}
