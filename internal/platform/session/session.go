// Package session identifies the browser or client session a request belongs
// to and stores per-session state such as the selected locality.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	DefaultCookieName = "clinic_session"
	HeaderName        = "X-Session-ID"
)

// Session is the request's session handle.
type Session struct {
	ID string
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok && s.ID != ""
}

type Config struct {
	CookieName string
	Secure     bool
	TTL        time.Duration
}

// Middleware attaches a Session to every request. The id comes from the
// X-Session-ID header or the session cookie; malformed or missing ids are
// replaced by a new one, which is returned as a cookie.
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderName)
			if id == "" {
				if ck, err := c.Cookie(cfg.CookieName); err == nil {
					id = ck.Value
				}
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     cfg.CookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithSession(c.Request().Context(), Session{ID: id})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
