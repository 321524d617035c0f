package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/model"
)

// InsertAuditLog appends one audit record. Audit rows are never updated
// or deleted.
func (db *DB) InsertAuditLog(ctx context.Context, entry model.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, org_id, user_id, entity_type, entity_id, entity_title,
		     action, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.OrgID, entry.UserID, entry.EntityType, entry.EntityID,
		entry.EntityTitle, entry.Action, entry.IPAddress, entry.UserAgent, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns an org's audit trail newest first, optionally
// filtered to one entity.
func (db *DB) ListAuditLogs(ctx context.Context, orgID string, entityType, entityID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id, org_id, user_id, entity_type, entity_id, entity_title,
	     action, ip_address, user_agent, created_at
	 FROM audit_logs WHERE org_id = $1`
	args := []any{orgID}
	if entityType != "" {
		args = append(args, entityType)
		q += fmt.Sprintf(` AND entity_type = $%d`, len(args))
	}
	if entityID != "" {
		args = append(args, entityID)
		q += fmt.Sprintf(` AND entity_id = $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list audit logs: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var l model.AuditLog
		if err := rows.Scan(&l.ID, &l.OrgID, &l.UserID, &l.EntityType, &l.EntityID,
			&l.EntityTitle, &l.Action, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list audit logs: %w", err)
	}
	return out, nil
}
