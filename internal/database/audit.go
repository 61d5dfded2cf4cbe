package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/metrics"
)

// AuditRecord is one entry of the mutation history. Before and After are
// JSON snapshots of the entity; Before is nil for creates, After is nil for
// hard deletes.
type AuditRecord struct {
	ID        int64           `json:"id"`
	Owner     int64           `json:"owner_id"`
	Op        string          `json:"op"`
	EntityID  int64           `json:"entity_id"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// appendAuditTx records a mutation inside the same transaction that applies
// it, so the history commits or rolls back with the change.
func (s *Store) appendAuditTx(ctx context.Context, tx *sql.Tx, owner int64, op string, entityID int64, before, after *apptype.Entity) error {
	encode := func(e *apptype.Entity) (any, error) {
		if e == nil {
			return nil, nil
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit snapshot: %w", err)
		}
		return string(raw), nil
	}
	beforeVal, err := encode(before)
	if err != nil {
		return err
	}
	afterVal, err := encode(after)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO audit_log (owner_id, op, entity_id, before, after) VALUES (?, ?, ?, ?, ?)",
		owner, op, entityID, beforeVal, afterVal); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// AuditTrail returns the mutation history of one entity, oldest first.
func (s *Store) AuditTrail(ctx context.Context, entityID, owner int64) ([]AuditRecord, error) {
	done := metrics.TimeOp("audit_trail")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx,
		"SELECT id, owner_id, op, entity_id, before, after, created_at FROM audit_log WHERE entity_id = ? AND owner_id = ? ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, entityID, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			rec    AuditRecord
			before sql.NullString
			after  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.Op, &rec.EntityID, &before, &after, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if before.Valid {
			rec.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			rec.After = json.RawMessage(after.String)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return out, nil
}
