package middleware

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditStorePG appends audit entries to the audit_log table.
type AuditStorePG struct {
	pool *pgxpool.Pool
}

func NewAuditStorePG(pool *pgxpool.Pool) *AuditStorePG {
	return &AuditStorePG{pool: pool}
}

func (s *AuditStorePG) RecordAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (occurred_at, request_id, user_id, action, entity, entity_id, method, path, ip_address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Timestamp, e.RequestID, e.UserID, e.Action, e.Entity, e.EntityID, e.Method, e.Path, e.IPAddress, e.StatusCode)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
