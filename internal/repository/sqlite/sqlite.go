// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary cross-compiles without
// a C toolchain. It registers itself with database/sql as the "sqlite" driver.
//
// CONNECTION SETTINGS:
// PRAGMAs such as foreign_keys are per connection, and sql.DB is a pool that
// opens connections lazily. Running `PRAGMA foreign_keys=ON` once with Exec
// would only configure whichever connection happened to serve that call, so
// the pragmas travel in the DSN instead and every pooled connection gets them.
//
// SCHEMA:
// Tables are created by goose from the SQL files embedded in ./migrations.
// goose records applied versions in goose_db_version, so New is safe to call
// against an existing database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/task-manager/internal/repository/sqlite/migrations"
)

const memoryPath = ":memory:"

// DB wraps the connection pool. It implements both repository.UserRepository
// and repository.TaskRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and migrates it to the
// latest schema. Pass ":memory:" for a throwaway database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a brand-new empty database, so the
	// pool must never hold more than one.
	if dbPath == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if err := migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func dsn(dbPath string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if dbPath != memoryPath {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return dbPath + "?" + strings.Join(params, "&")
}

func migrate(ctx context.Context, conn *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, conn, ".")
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// The store relies on the constraint, not on a prior SELECT, so two racing
// inserts of the same email resolve to one success and one conflict.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
