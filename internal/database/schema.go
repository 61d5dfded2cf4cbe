package database

// schema is applied in one transaction on open. Every statement is
// idempotent so restarting against an existing database is safe.
//
// The unique index is expression-based because SQLite treats NULLs as
// distinct in plain UNIQUE constraints; COALESCE makes two root-level lists
// with the same title collide the way the domain requires.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        owner_id INTEGER NOT NULL,
        kind TEXT NOT NULL,
        title TEXT,
        content TEXT,
        parent_id INTEGER REFERENCES entities(id),
        meta TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_identity
        ON entities(owner_id, kind, title, COALESCE(parent_id, 0))`,

	`CREATE INDEX IF NOT EXISTS idx_entities_owner_kind_parent
        ON entities(owner_id, kind, parent_id)`,

	`CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        owner_id INTEGER NOT NULL,
        op TEXT NOT NULL,
        entity_id INTEGER NOT NULL,
        before TEXT,
        after TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`,

	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_log(owner_id, created_at)`,
}
