package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/tursodatabase/go-libsql"
	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/apptype"
	"github.com/aura-assistant/aura-core/internal/logging"
	"github.com/aura-assistant/aura-core/internal/metrics"
)

// Store is the durable, type-agnostic entity store. All mutating calls run
// inside a single transaction that re-validates invariants, applies the
// change, and appends an audit record, committing or rolling back as one
// unit.
type Store struct {
	config *Config
	db     *sql.DB
	log    *zap.Logger

	stmtMu    sync.RWMutex
	stmtCache map[string]*sql.Stmt
}

// Option configures a Store during construction.
type Option func(*Store)

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore opens (or creates) the database behind cfg.URL and verifies the
// schema, creating it when absent. Bootstrap is idempotent and never
// destroys existing data.
func NewStore(cfg *Config, opts ...Option) (*Store, error) {
	s := &Store{
		config:    cfg,
		log:       logging.Nop(),
		stmtCache: make(map[string]*sql.Stmt),
	}
	for _, opt := range opts {
		opt(s)
	}

	dbURL := cfg.URL
	if !strings.HasPrefix(dbURL, "file:") && cfg.AuthToken != "" {
		if u, err := url.Parse(dbURL); err == nil {
			q := u.Query()
			q.Set("authToken", cfg.AuthToken)
			u.RawQuery = q.Encode()
			dbURL = u.String()
		}
	}

	db, err := sql.Open("libsql", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := s.initialize(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleSec > 0 {
		db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleSec) * time.Second)
	}
	if cfg.ConnMaxLifeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeSec) * time.Second)
	}

	s.db = db
	stats := db.Stats()
	metrics.Default().ObservePoolStats(stats.InUse, stats.Idle)
	s.log.Info("entity store ready", zap.String("url", cfg.URL))
	return s, nil
}

// initialize applies the schema inside one transaction.
func (s *Store) initialize(db *sql.DB) error {
	done := metrics.TimeOp("initialize")
	success := false
	defer func() { done(success) }()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for initialization: %w", err)
	}
	defer tx.Rollback()

	for _, statement := range schema {
		if _, err := tx.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	success = true
	return nil
}

// getPreparedStmt returns or prepares and caches a statement.
func (s *Store) getPreparedStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	s.stmtMu.RLock()
	if stmt, ok := s.stmtCache[sqlText]; ok {
		s.stmtMu.RUnlock()
		metrics.Default().IncStmtCacheHit("prepare")
		return stmt, nil
	}
	s.stmtMu.RUnlock()
	metrics.Default().IncStmtCacheMiss("prepare")

	stmt, err := s.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	s.stmtMu.Lock()
	s.stmtCache[sqlText] = stmt
	s.stmtMu.Unlock()
	return stmt, nil
}

// PoolStats returns current connection pool gauges.
func (s *Store) PoolStats() (inUse, idle int) {
	stats := s.db.Stats()
	return stats.InUse, stats.Idle
}

// Config returns the store configuration.
func (s *Store) Config() *Config { return s.config }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, stmt := range s.stmtCache {
		_ = stmt.Close()
	}
	s.stmtCache = make(map[string]*sql.Stmt)
	s.stmtMu.Unlock()
	return s.db.Close()
}

// encodeMeta serializes metadata to the meta column; empty metadata is
// stored as NULL, matching what older rows look like.
func encodeMeta(m apptype.Metadata) (any, error) {
	if m.IsZero() {
		return nil, nil
	}
	merged := map[string]any{}
	for k, v := range m.Extra {
		merged[k] = v
	}
	known, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, fmt.Errorf("failed to merge metadata: %w", err)
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(out), nil
}

// decodeMeta parses the meta column, keeping unknown keys in Extra.
func decodeMeta(raw sql.NullString) (apptype.Metadata, error) {
	var m apptype.Metadata
	if !raw.Valid || raw.String == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return m, fmt.Errorf("failed to decode metadata: %w", err)
	}
	var all map[string]any
	if err := json.Unmarshal([]byte(raw.String), &all); err == nil {
		for _, known := range []string{"deleted", "status", "archived", "archived_from", "completed_at", "city", "profession"} {
			delete(all, known)
		}
		if len(all) > 0 {
			m.Extra = all
		}
	}
	return m, nil
}
