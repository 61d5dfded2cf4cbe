package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/metrics"
)

// ListFilter controls which lifecycle states list queries return.
// The zero value returns only active, not-done entities.
type ListFilter struct {
	IncludeDeleted  bool
	IncludeDone     bool
	IncludeArchived bool
}

// FieldChanges is the set of mutable fields for Update. Nil pointers leave
// the field untouched. ID, owner, and creation time are immutable by
// construction.
type FieldChanges struct {
	Title     *string
	Content   *string
	Parent    *int64
	SetParent bool // when true and Parent is nil, the entity moves to the root
	Meta      *apptype.Metadata
}

const entityColumns = "id, owner_id, kind, title, content, parent_id, meta, created_at"

func scanEntity(scan func(dest ...any) error) (*apptype.Entity, error) {
	var (
		e       apptype.Entity
		title   sql.NullString
		content sql.NullString
		parent  sql.NullInt64
		meta    sql.NullString
		created time.Time
	)
	if err := scan(&e.ID, &e.Owner, &e.Kind, &title, &content, &parent, &meta, &created); err != nil {
		return nil, err
	}
	e.Title = title.String
	e.Content = content.String
	if parent.Valid {
		p := parent.Int64
		e.ParentID = &p
	}
	m, err := decodeMeta(meta)
	if err != nil {
		return nil, err
	}
	e.Meta = m
	e.CreatedAt = created
	return &e, nil
}

func (f ListFilter) keep(e *apptype.Entity) bool {
	if e.Meta.Deleted && !f.IncludeDeleted {
		return false
	}
	if e.Meta.Archived && !f.IncludeArchived {
		return false
	}
	if e.Meta.Done() && !f.IncludeDone {
		return false
	}
	return true
}

// Create inserts a new entity after re-validating the uniqueness and
// parent-ownership invariants inside the write transaction.
func (s *Store) Create(ctx context.Context, owner int64, kind apptype.Kind, title, content string, parent *int64, meta apptype.Metadata) (*apptype.Entity, error) {
	done := metrics.TimeOp("create")
	success := false
	defer func() { done(success) }()

	if !apptype.ValidKind(kind) {
		return nil, apptype.NewConstraintViolation(apptype.ConstraintImmutable, "unsupported entity kind %q", kind)
	}
	title = strings.TrimSpace(title)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if parent != nil {
		if err := s.checkParentTx(ctx, tx, owner, *parent); err != nil {
			return nil, err
		}
	}
	if err := s.checkUniqueTx(ctx, tx, owner, kind, title, parent, 0); err != nil {
		return nil, err
	}

	metaVal, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO entities (owner_id, kind, title, content, parent_id, meta) VALUES (?, ?, ?, ?, ?, ?)",
		owner, kind, nullIfEmpty(title), nullIfEmpty(content), parent, metaVal)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, apptype.NewConstraintViolation(apptype.ConstraintUnique,
				"%s %q already exists for owner %d", kind, title, owner)
		}
		return nil, fmt.Errorf("failed to insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted id: %w", err)
	}

	created, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.appendAuditTx(ctx, tx, owner, "create", id, nil, created); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit create: %w", err)
	}
	success = true
	s.log.Debug("entity created",
		zap.Int64("owner", owner), zap.String("kind", string(kind)),
		zap.String("title", title), zap.Int64("id", id))
	return created, nil
}

// Get fetches an entity by its identity tuple. Soft-deleted rows are
// returned as well; the metadata tells the caller.
func (s *Store) Get(ctx context.Context, owner int64, kind apptype.Kind, title string, parent *int64) (*apptype.Entity, error) {
	done := metrics.TimeOp("get")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE owner_id = ? AND kind = ? AND title = ? AND COALESCE(parent_id, 0) = COALESCE(?, 0) LIMIT 1")
	if err != nil {
		return nil, err
	}
	row := stmt.QueryRowContext(ctx, owner, kind, strings.TrimSpace(title), parent)
	e, err := scanEntity(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apptype.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	success = true
	return e, nil
}

// GetByID fetches an entity by id, scoped to the owner.
func (s *Store) GetByID(ctx context.Context, id, owner int64) (*apptype.Entity, error) {
	done := metrics.TimeOp("get_by_id")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE id = ? AND owner_id = ? LIMIT 1")
	if err != nil {
		return nil, err
	}
	row := stmt.QueryRowContext(ctx, id, owner)
	e, err := scanEntity(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apptype.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	success = true
	return e, nil
}

// ListChildren returns the children of a parent in creation order.
func (s *Store) ListChildren(ctx context.Context, parentID, owner int64, filter ListFilter) ([]apptype.Entity, error) {
	done := metrics.TimeOp("list_children")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE owner_id = ? AND parent_id = ? ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	out, err := s.collect(ctx, stmt, filter, owner, parentID)
	if err != nil {
		return nil, err
	}
	success = true
	return out, nil
}

// Roots returns root-level entities of a kind in creation order.
func (s *Store) Roots(ctx context.Context, owner int64, kind apptype.Kind, filter ListFilter) ([]apptype.Entity, error) {
	done := metrics.TimeOp("roots")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE owner_id = ? AND kind = ? AND parent_id IS NULL ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	out, err := s.collect(ctx, stmt, filter, owner, kind)
	if err != nil {
		return nil, err
	}
	success = true
	return out, nil
}

func (s *Store) collect(ctx context.Context, stmt *sql.Stmt, filter ListFilter, args ...any) ([]apptype.Entity, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []apptype.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		if filter.keep(e) {
			out = append(out, *e)
		}
	}
	return out, rows.Err()
}

// Update applies field changes, re-validating uniqueness when title or
// parent change, inside one transaction with its audit record.
func (s *Store) Update(ctx context.Context, id, owner int64, changes FieldChanges) (*apptype.Entity, error) {
	done := metrics.TimeOp("update")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}

	title := before.Title
	if changes.Title != nil {
		title = strings.TrimSpace(*changes.Title)
	}
	parent := before.ParentID
	if changes.SetParent {
		parent = changes.Parent
	}

	if changes.SetParent && parent != nil {
		if err := s.checkParentTx(ctx, tx, owner, *parent); err != nil {
			return nil, err
		}
		if err := s.checkCycleTx(ctx, tx, owner, id, *parent); err != nil {
			return nil, err
		}
	}
	if title != before.Title || changes.SetParent {
		if err := s.checkUniqueTx(ctx, tx, owner, before.Kind, title, parent, id); err != nil {
			return nil, err
		}
	}

	sets := []string{}
	args := []any{}
	if changes.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, nullIfEmpty(title))
	}
	if changes.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, nullIfEmpty(strings.TrimSpace(*changes.Content)))
	}
	if changes.SetParent {
		sets = append(sets, "parent_id = ?")
		args = append(args, parent)
	}
	if changes.Meta != nil {
		metaVal, mErr := encodeMeta(*changes.Meta)
		if mErr != nil {
			return nil, mErr
		}
		sets = append(sets, "meta = ?")
		args = append(args, metaVal)
	}
	if len(sets) == 0 {
		success = true
		return before, nil
	}
	args = append(args, id, owner)
	if _, err := tx.ExecContext(ctx,
		"UPDATE entities SET "+strings.Join(sets, ", ")+" WHERE id = ? AND owner_id = ?", args...); err != nil {
		if isUniqueConstraintErr(err) {
			return nil, apptype.NewConstraintViolation(apptype.ConstraintUnique,
				"%s %q already exists for owner %d", before.Kind, title, owner)
		}
		return nil, fmt.Errorf("failed to update entity %d: %w", id, err)
	}

	after, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.appendAuditTx(ctx, tx, owner, "update", id, before, after); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	success = true
	return after, nil
}

// SoftDelete marks an entity deleted. Deleting an already-deleted entity is
// a no-op that returns the current state.
func (s *Store) SoftDelete(ctx context.Context, id, owner int64) (*apptype.Entity, error) {
	done := metrics.TimeOp("soft_delete")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if before.Meta.Deleted {
		success = true
		return before, nil
	}

	meta := before.Meta
	meta.Deleted = true
	after, err := s.writeMetaTx(ctx, tx, id, owner, before, meta, "soft_delete")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit soft delete: %w", err)
	}
	success = true
	return after, nil
}

// Restore clears deletion, archival, and completion marks. It fails with
// ErrNotFound when the entity does not exist or was never soft-deleted.
func (s *Store) Restore(ctx context.Context, id, owner int64) (*apptype.Entity, error) {
	done := metrics.TimeOp("restore")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if !before.Meta.Deleted && !before.Meta.Archived && !before.Meta.Done() {
		return nil, fmt.Errorf("entity %d is not restorable: %w", id, apptype.ErrNotFound)
	}

	meta := before.Meta
	meta.Deleted = false
	meta.Archived = false
	meta.ArchivedFrom = ""
	meta.Status = ""
	meta.CompletedAt = ""
	after, err := s.writeMetaTx(ctx, tx, id, owner, before, meta, "restore")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}
	success = true
	return after, nil
}

// Move reparents an entity. Moving under the entity itself or one of its
// descendants fails with ErrCycleDetected; the destination must belong to
// the same owner.
func (s *Store) Move(ctx context.Context, id, owner, newParentID int64) (*apptype.Entity, error) {
	done := metrics.TimeOp("move")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.checkParentTx(ctx, tx, owner, newParentID); err != nil {
		return nil, err
	}
	if err := s.checkCycleTx(ctx, tx, owner, id, newParentID); err != nil {
		return nil, err
	}
	if err := s.checkUniqueTx(ctx, tx, owner, before.Kind, before.Title, &newParentID, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE entities SET parent_id = ? WHERE id = ? AND owner_id = ?", newParentID, id, owner); err != nil {
		if isUniqueConstraintErr(err) {
			return nil, apptype.NewConstraintViolation(apptype.ConstraintUnique,
				"%s %q already exists under destination", before.Kind, before.Title)
		}
		return nil, fmt.Errorf("failed to move entity %d: %w", id, err)
	}

	after, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.appendAuditTx(ctx, tx, owner, "move", id, before, after); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}
	success = true
	return after, nil
}

// HardDelete permanently removes an entity. Without force it only applies
// to already-soft-deleted records; it is irreversible either way.
func (s *Store) HardDelete(ctx context.Context, id, owner int64, force bool) error {
	done := metrics.TimeOp("hard_delete")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return err
	}
	if !before.Meta.Deleted && !force {
		return apptype.NewConstraintViolation(apptype.ConstraintNotDeleted,
			"entity %d is not soft-deleted; pass force to remove it anyway", id)
	}

	var children int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM entities WHERE parent_id = ?", id).Scan(&children); err != nil {
		return fmt.Errorf("failed to count children: %w", err)
	}
	if children > 0 && !force {
		return apptype.NewConstraintViolation(apptype.ConstraintParentKind,
			"entity %d still has %d children", id, children)
	}
	if children > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE parent_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete children of %d: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entities WHERE id = ? AND owner_id = ?", id, owner); err != nil {
		return fmt.Errorf("failed to delete entity %d: %w", id, err)
	}
	if err := s.appendAuditTx(ctx, tx, owner, "hard_delete", id, before, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hard delete: %w", err)
	}
	success = true
	return nil
}

// writeMetaTx persists new metadata and appends the audit record.
func (s *Store) writeMetaTx(ctx context.Context, tx *sql.Tx, id, owner int64, before *apptype.Entity, meta apptype.Metadata, op string) (*apptype.Entity, error) {
	metaVal, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE entities SET meta = ? WHERE id = ? AND owner_id = ?", metaVal, id, owner); err != nil {
		return nil, fmt.Errorf("failed to write metadata for entity %d: %w", id, err)
	}
	after, err := s.getByIDTx(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.appendAuditTx(ctx, tx, owner, op, id, before, after); err != nil {
		return nil, err
	}
	return after, nil
}

func (s *Store) getByIDTx(ctx context.Context, tx *sql.Tx, id, owner int64) (*apptype.Entity, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+entityColumns+
		" FROM entities WHERE id = ? AND owner_id = ? LIMIT 1", id, owner)
	e, err := scanEntity(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apptype.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	return e, nil
}

// checkUniqueTx enforces the (owner, kind, title, parent) identity tuple.
func (s *Store) checkUniqueTx(ctx context.Context, tx *sql.Tx, owner int64, kind apptype.Kind, title string, parent *int64, excludeID int64) error {
	var existing int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM entities WHERE owner_id = ? AND kind = ? AND title = ? AND COALESCE(parent_id, 0) = COALESCE(?, 0) AND id != ? LIMIT 1",
		owner, kind, title, parent, excludeID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return apptype.NewConstraintViolation(apptype.ConstraintUnique,
		"%s %q already exists for owner %d (entity %d)", kind, title, owner, existing)
}

// checkParentTx rejects dangling and cross-owner parent references.
func (s *Store) checkParentTx(ctx context.Context, tx *sql.Tx, owner, parentID int64) error {
	var parentOwner int64
	err := tx.QueryRowContext(ctx,
		"SELECT owner_id FROM entities WHERE id = ? LIMIT 1", parentID).Scan(&parentOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return apptype.NewConstraintViolation(apptype.ConstraintParentKind,
			"parent %d does not exist", parentID)
	}
	if err != nil {
		return fmt.Errorf("failed to check parent: %w", err)
	}
	if parentOwner != owner {
		return apptype.NewConstraintViolation(apptype.ConstraintParentOwner,
			"parent %d belongs to a different owner", parentID)
	}
	return nil
}

// checkCycleTx walks up from the candidate parent; finding the moved entity
// on the ancestor chain means the move would create a cycle.
func (s *Store) checkCycleTx(ctx context.Context, tx *sql.Tx, owner, id, newParentID int64) error {
	current := newParentID
	for depth := 0; depth < 64; depth++ {
		if current == id {
			return fmt.Errorf("entity %d cannot become a child of its own descendant %d: %w",
				id, newParentID, apptype.ErrCycleDetected)
		}
		var parent sql.NullInt64
		err := tx.QueryRowContext(ctx,
			"SELECT parent_id FROM entities WHERE id = ? AND owner_id = ? LIMIT 1",
			current, owner).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to walk ancestor chain: %w", err)
		}
		if !parent.Valid {
			return nil
		}
		current = parent.Int64
	}
	return fmt.Errorf("ancestor chain deeper than 64 levels: %w", apptype.ErrCycleDetected)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLITE_CONSTRAINT")
}
