package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// AuditEntry records one administrative change or context switch.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	Action     string // create, update, delete
	Entity     string // e.g. roles, role-permissions, locals, context
	EntityID   string
	Method     string
	Path       string
	IPAddress  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAudit(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit logs every mutating request under /api/v1/admin/ and every change of
// the caller's current context. Reads are not audited. Recorder failures are
// logged and never fail the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			entity, id := auditTarget(req.URL.Path)
			rid, _ := c.Get("request_id").(string)
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				RequestID:  rid,
				UserID:     auth.UserIDFromContext(req.Context()),
				Action:     methodToAction(req.Method),
				Entity:     entity,
				EntityID:   id,
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				StatusCode: status,
			}

			if recorder != nil {
				if recErr := recorder.RecordAudit(context.WithoutCancel(req.Context()), entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", rid).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("action", entry.Action).
				Str("entity", entry.Entity).
				Str("entity_id", entry.EntityID).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("admin_change")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return false
	}
	if path == "/api/v1/me/context" {
		return true
	}
	return strings.HasPrefix(path, "/api/v1/admin/")
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// auditTarget extracts the entity and id from paths such as
// /api/v1/admin/roles/12 or /api/v1/me/context.
func auditTarget(path string) (entity, id string) {
	var rest string
	switch {
	case strings.HasPrefix(path, "/api/v1/admin/"):
		rest = strings.TrimPrefix(path, "/api/v1/admin/")
	case strings.HasPrefix(path, "/api/v1/me/"):
		rest = strings.TrimPrefix(path, "/api/v1/me/")
	default:
		return "unknown", ""
	}
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	entity = segments[0]
	if len(segments) > 1 {
		id = segments[1]
	}
	if entity == "" {
		entity = "unknown"
	}
	return entity, id
}
