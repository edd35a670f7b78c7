package database

import (
	"context"
	"database/sql"
	"fmt"

	"dstash/internal/database/migrations"
	"dstash/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DB wraps the SQLite connection backing the engine. Every mutating
// operation runs inside InTx or InBulkTx; SQLite's single-writer
// serializable transactions make each unit of work atomic and isolated.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and configures the
// connection. path can be a file path or ":memory:" for tests.
// The schema is not touched; call MigrateUp or MigrationStatus.
func Open(path string) (*DB, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, path: path}, nil
}

// OpenConnection opens and configures a raw SQLite connection with the
// PRAGMAs the engine relies on. Exported for tools and tests that need a
// properly configured connection without the wrapper.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys back up the explicit referential checks in the stores.
	// SQLite default is OFF for backward compatibility.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if path == ":memory:" {
		// Every pool connection to ":memory:" gets its own fresh
		// database, so keep the pool at one connection.
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// MigrateUp brings the schema to the latest version.
func (d *DB) MigrateUp() error {
	return migrations.Up(d.db)
}

// MigrationStatus reports the schema version relative to the embedded
// migrations. A non-nil error means the database is not usable as-is.
func (d *DB) MigrationStatus() (migrations.Status, error) {
	return migrations.CheckStatus(d.db)
}

// InTx runs fn inside one transaction, committing on nil and rolling back
// on error. The transaction enforces the one-directory-edge rule: only a
// single dirent with a directory child may be created or removed per unit
// of work, which is what keeps concurrent tree mutations from assembling
// a cycle.
func (d *DB) InTx(ctx context.Context, fn func(*Tx) error) error {
	return d.runTx(ctx, false, fn)
}

// InBulkTx runs fn with the one-directory-edge rule disabled. Unsafe
// unless the caller serializes all tree mutations externally; intended
// for bulk imports that move many directories in one unit of work.
func (d *DB) InBulkTx(ctx context.Context, fn func(*Tx) error) error {
	return d.runTx(ctx, true, fn)
}

func (d *DB) runTx(ctx context.Context, bulk bool, fn func(*Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	t := &Tx{tx: tx, ctx: ctx, bulk: bulk}
	if err := fn(t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// BackupTo creates a complete copy of the database at destPath using
// VACUUM INTO.
func (d *DB) BackupTo(destPath string) error {
	if _, err := d.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Path returns the database file path (":memory:" for in-memory).
func (d *DB) Path() string { return d.path }

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Tx is one atomic unit of work. Store methods take a *Tx so that multi
// step operations compose into a single transaction.
type Tx struct {
	tx       *sql.Tx
	ctx      context.Context
	dirEdges int
	bulk     bool
}

// NoteDirEdge accounts for one created or removed dirent whose child is a
// directory. The second such edge in a non-bulk transaction fails
// ErrConcurrentMutation.
func (t *Tx) NoteDirEdge() error {
	t.dirEdges++
	if t.dirEdges > 1 && !t.bulk {
		return fmt.Errorf("%w: cannot change more than one directory dirent per transaction", model.ErrConcurrentMutation)
	}
	return nil
}

// Exec, QueryRow and Query delegate to the wrapped transaction using the
// context the transaction was started with.

func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}
