package locality

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type localsKey struct{}

// WithLocalsID returns a context carrying the active locals id.
func WithLocalsID(ctx context.Context, localsID int64) context.Context {
	return context.WithValue(ctx, localsKey{}, localsID)
}

// LocalsIDFromContext returns the locals id published by RequireLocality.
func LocalsIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(localsKey{}).(int64)
	return id, ok && id > 0
}

// RequireLocality resolves the caller's current context and publishes the
// active locals id for downstream handlers. Users without an assignment get
// 403; users who must still choose get 409 with their assignments.
func RequireLocality(selector *Selector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			cc, err := selector.ResolveCurrentContext(ctx, auth.UserIDFromContext(ctx))
			if err != nil {
				return apperr.ToHTTP(err)
			}
			switch cc.State {
			case StateUnassigned:
				return echo.NewHTTPError(http.StatusForbidden, "no locality assigned, contact an administrator")
			case StateSelectionRequired:
				return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
					"message":     "select a locality first",
					"state":       cc.State,
					"assignments": cc.Assignments,
				})
			}
			c.SetRequest(c.Request().WithContext(WithLocalsID(ctx, cc.LocalsID())))
			c.Set("locals_id", cc.LocalsID())
			return next(c)
		}
	}
}
