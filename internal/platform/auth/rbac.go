package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// The component and operations guarding the administration API.
const (
	AdminComponent = "administration"
	OpRead         = "read"
	OpWrite        = "write"
)

// Grant is a (component, operation) pair.
type Grant struct {
	Component string `json:"component"`
	Operation string `json:"operation"`
}

// PermissionChecker answers authorization questions for a user. Implementations
// fail closed: any internal failure yields false.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, component, operation string) bool
	HasAnyPermission(ctx context.Context, userID string, grants []Grant) bool
	HasRole(ctx context.Context, userID, role string) bool
}

// RequireAuthenticated rejects requests without a user id.
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserIDFromContext(c.Request().Context()) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// RequirePermission allows the request only if the user holds operation on component.
func RequirePermission(checker PermissionChecker, component, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !checker.HasPermission(ctx, userID, component, operation) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required permission: %s:%s", component, operation))
			}
			return next(c)
		}
	}
}

// RequireAnyPermission allows the request if the user holds at least one grant.
func RequireAnyPermission(checker PermissionChecker, grants ...Grant) echo.MiddlewareFunc {
	names := make([]string, len(grants))
	for i, g := range grants {
		names[i] = g.Component + ":" + g.Operation
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !checker.HasAnyPermission(ctx, userID, grants) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required permission: %s", strings.Join(names, " or ")))
			}
			return next(c)
		}
	}
}

// RequireRole allows the request if the user holds at least one of roles.
func RequireRole(checker PermissionChecker, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			for _, role := range roles {
				if checker.HasRole(ctx, userID, role) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
