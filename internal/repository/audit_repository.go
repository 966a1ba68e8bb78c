package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

// AuditRepository is append-only: it exposes insert and read, never update
// or delete.
type AuditRepository struct {
	db      *sqlx.DB
	changes changePublisher
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB, channel string) *AuditRepository {
	return &AuditRepository{db: db, changes: changePublisher{channel: channel}}
}

// Insert appends one entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	const query = `INSERT INTO audit_logs (id, action, performer_id, performer_name, performer_role, entity_type, entity_id,
	previous_value, new_value, details, created_at)
VALUES (:id, :action, :performer_id, :performer_name, :performer_role, :entity_type, :entity_id,
	:previous_value, :new_value, :details, :created_at)`
	return withTx(ctx, r.db, "insert audit log", func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
			return fmt.Errorf("insert audit log: %w", err)
		}
		return r.changes.publish(ctx, tx, models.ChangeEvent{
			Collection: models.CollectionAuditLogs,
			ID:         entry.ID,
			Operation:  models.ChangeInsert,
			OwnerID:    entry.PerformerID,
		})
	})
}

// List returns the newest entries first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, action, performer_id, performer_name, performer_role, entity_type, entity_id,
	previous_value, new_value, details, created_at FROM audit_logs WHERE 1=1`)
	var args []interface{}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		fmt.Fprintf(&b, " AND entity_id = $%d", len(args))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	args = pageClause(&b, args, filter.Limit, 0)

	entries := []models.AuditLogEntry{}
	if err := r.db.SelectContext(ctx, &entries, b.String(), args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
