package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"postcms/internal/logging"
)

// Options selects and configures the SQL backend.
type Options struct {
	Driver Driver
	// DSN, when set, is used as is. Otherwise it is built from the fields
	// below (SQLite uses Path).
	DSN      string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// DB wraps the SQL connection and the dialect it speaks.
type DB struct {
	conn    *sql.DB
	dialect dialect
	logger  *zap.Logger
}

// New opens (or creates) the SQLite file at dbPath.
func New(dbPath string) (*DB, error) {
	return Open(context.Background(), Options{Driver: DriverSQLite, Path: dbPath})
}

// Open connects to the configured backend and migrates its schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	logger := logging.OrNop(opts.Logger).Named("storage")

	dsn := opts.DSN
	if dsn == "" {
		switch d.driver {
		case DriverSQLite:
			if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
			dsn = buildSQLiteDSN(opts.Path)
		case DriverPostgres:
			dsn = buildPostgresDSN(opts)
		case DriverMySQL:
			dsn = buildMySQLDSN(opts)
		}
	}

	conn, err := sql.Open(d.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d.driver == DriverSQLite {
		// SQLite only supports one writer; a single connection avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}

	db := &DB{conn: conn, dialect: d, logger: logger}
	unlock, err := db.lockMigrations(ctx, opts.Path)
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer unlock()
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("database ready", zap.String("driver", string(d.driver)))
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver reports which backend this DB talks to.
func (db *DB) Driver() Driver {
	return db.dialect.driver
}

// lockMigrations serializes schema migration across processes sharing one
// SQLite file. Server databases handle concurrent DDL themselves.
func (db *DB) lockMigrations(ctx context.Context, path string) (func(), error) {
	if db.dialect.driver != DriverSQLite || path == "" || strings.HasPrefix(path, ":memory:") {
		return func() {}, nil
	}
	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: timed out", lock.Path())
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			db.logger.Warn("release migration lock", zap.Error(err))
		}
	}, nil
}

func (db *DB) migrate(ctx context.Context) error {
	d := db.dialect
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id ` + d.keyType + ` PRIMARY KEY,
			title ` + d.shortText + ` NOT NULL,
			slug ` + d.shortText + ` NOT NULL,
			blocks_json ` + d.longText + ` NOT NULL,
			created_at ` + d.timeType + ` NOT NULL,
			updated_at ` + d.timeType + ` NOT NULL
		)`,
		d.createIndex("idx_posts_updated", "posts", "updated_at"),
		// Revision nodes, adapted from the per-page undo history.
		`CREATE TABLE IF NOT EXISTS revisions (
			id ` + d.keyType + ` PRIMARY KEY,
			post_id ` + d.keyType + ` NOT NULL,
			parent_id ` + d.keyType + `,
			seq BIGINT NOT NULL,
			label ` + d.shortText + ` NOT NULL,
			snapshot_json ` + d.longText + ` NOT NULL,
			created_at ` + d.timeType + ` NOT NULL
		)`,
		d.createIndex("idx_revisions_post", "revisions", "post_id, seq"),
		// Current position pointer per post.
		`CREATE TABLE IF NOT EXISTS revision_state (
			post_id ` + d.keyType + ` PRIMARY KEY,
			current_id ` + d.keyType + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS media (
			name ` + d.keyType + ` PRIMARY KEY,
			url ` + d.shortText + ` NOT NULL,
			content_type ` + d.shortText + ` NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			created_at ` + d.timeType + ` NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; an existing index is fine.
			if d.driver == DriverMySQL && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", firstLine(m), err)
		}
	}
	return nil
}

// ── Query helpers ──────────────────────────────────────────

func (db *DB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.dialect.rebind(q), args...)
}

func (db *DB) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.dialect.rebind(q), args...)
}

func (db *DB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.dialect.rebind(q), args...)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *txHelper) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&txHelper{tx: tx, dialect: db.dialect}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type txHelper struct {
	tx      *sql.Tx
	dialect dialect
}

func (t *txHelper) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(q), args...)
}

func (t *txHelper) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(q), args...)
}

func (t *txHelper) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(q), args...)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
