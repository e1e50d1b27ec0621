package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID    int64
	TenantID   int64
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
	At         time.Time
}

// Validate checks the fields every audit record needs.
func (l AuditLog) Validate() error {
	if l.TenantID == 0 || l.Action == "" || l.EntityType == "" || l.EntityID == "" {
		return E(KindInvalid, "shared/audit", "tenant, action, entity type and entity id are required")
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("shared/audit: logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Metadata)
	if err != nil {
		return fmt.Errorf("shared/audit: encode metadata: %w", err)
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	if _, err := l.pool.Exec(ctx, `INSERT INTO audit_logs (tenant_id, actor_id, action, entity_type, entity_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.TenantID, log.ActorID, log.Action, log.EntityType, log.EntityID, metaJSON, at); err != nil {
		return fmt.Errorf("shared/audit: insert %s: %w", log.Action, err)
	}
	return nil
}
