// Package auth provides JWT bearer authentication and role guards for the
// operator API.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	actorIDKey contextKey = "actor_id"
	rolesKey   contextKey = "roles"
	tenantKey  contextKey = "jwt_tenant"
	roleLvlKey contextKey = "role_level"
)

// Claims carries the token payload the engine cares about.
type Claims struct {
	ActorID   string   `json:"sub"`
	Roles     []string `json:"roles"`
	RoleLevel int      `json:"role_level"`
	TenantID  string   `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Middleware validates the Authorization bearer token with the shared secret
// and stores actor identity, roles, and tenant on the request context.
func Middleware(secret, issuer string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if issuer != "" && claims.Issuer != issuer {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token issuer")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, actorIDKey, claims.ActorID)
			ctx = context.WithValue(ctx, rolesKey, claims.Roles)
			ctx = context.WithValue(ctx, tenantKey, claims.TenantID)
			ctx = context.WithValue(ctx, roleLvlKey, claims.RoleLevel)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("jwt_tenant_id", claims.TenantID)
			return next(c)
		}
	}
}

// DevMiddleware grants every request admin access. Development only.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, actorIDKey, "dev-admin")
			ctx = context.WithValue(ctx, rolesKey, []string{"admin"})
			ctx = context.WithValue(ctx, roleLvlKey, 10)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// ActorFromContext returns the authenticated actor ID, or "".
func ActorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorIDKey).(string)
	return id
}

// RolesFromContext returns the authenticated actor's roles.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey).([]string)
	return roles
}

// RoleLevelFromContext returns the actor's numeric role level (0 if absent).
func RoleLevelFromContext(ctx context.Context) int {
	lvl, _ := ctx.Value(roleLvlKey).(int)
	return lvl
}

// RequireRole returns middleware that passes when the actor holds any of the
// given roles. "admin" always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
