package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode040201 = e.Code0402 + "01"
	ECode040202 = e.Code0402 + "02"
	ECode040203 = e.Code0402 + "03"
	ECode040204 = e.Code0402 + "04"
	ECode040205 = e.Code0402 + "05"
	ECode040206 = e.Code0402 + "06"
	ECode040207 = e.Code0402 + "07"
	ECode040208 = e.Code0402 + "08"
)

// SQLiteAdapter serves the embedded single-file engine. There is no server
// to probe, so connectivity is file system writability, and database
// creation is directory creation - opening the connection creates the file.
type SQLiteAdapter struct{}

// Engine returns the engine this adapter serves
func (a *SQLiteAdapter) Engine() sql.Engine {
	return sql.EngineSQLite
}

// CanConnect verifies the target directory exists (or can be created) and is
// writable by probing with a scratch file. In-memory databases are always
// reachable.
func (a *SQLiteAdapter) CanConnect(ctx context.Context, cp *sql.ConnParam) bool {
	if cp.FilePath == "" || cp.FilePath == ":memory:" {
		return true
	}

	dir := filepath.Dir(cp.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return true
}

// Connect opens and pings the tenant database file
func (a *SQLiteAdapter) Connect(cp *sql.ConnParam) (conn *sql.Connection, err error) {
	conn, err = sql.NewConnection(cp)
	if err != nil {
		return nil, e.W(err, ECode040201)
	}

	return conn, nil
}

// DatabaseExists reports whether the database file exists. In-memory
// databases exist by definition.
func (a *SQLiteAdapter) DatabaseExists(ctx context.Context, cp *sql.ConnParam) (exists bool, err error) {
	if cp.FilePath == "" || cp.FilePath == ":memory:" {
		return true, nil
	}

	if _, err := os.Stat(cp.FilePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, e.W(err, ECode040202)
	}

	return true, nil
}

// EnsureDatabase creates the parent directory. The database file itself is
// created lazily on first open.
func (a *SQLiteAdapter) EnsureDatabase(ctx context.Context, cp *sql.ConnParam) (err error) {
	if cp.FilePath == "" || cp.FilePath == ":memory:" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cp.FilePath), 0o755); err != nil {
		return e.W(err, ECode040203)
	}

	return nil
}

// ListTables enumerates user tables from sqlite_master, excluding the
// engine's internal tables
func (a *SQLiteAdapter) ListTables(ctx context.Context, conn *sql.Connection) (tables []string, err error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, e.W(err, ECode040204)
	}

	tables, err = scanTableNames(rows)
	if err != nil {
		return nil, e.W(err, ECode040205)
	}

	return tables, nil
}

// ValidateSchema reports whether every required table is present
func (a *SQLiteAdapter) ValidateSchema(ctx context.Context, conn *sql.Connection,
	requiredTables []string) (ok bool, err error) {

	tables, err := a.ListTables(ctx, conn)
	if err != nil {
		return false, e.W(err, ECode040206)
	}

	return validateSchema(tables, requiredTables), nil
}

// ApplyMigrations runs the scripts' forward operations in order
func (a *SQLiteAdapter) ApplyMigrations(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (applied []string, err error) {

	return runScripts(ctx, conn, sql.EngineSQLite, scripts, true)
}

// RollbackTo runs the scripts' backward operations newest first. Foreign key
// enforcement is turned off for the duration and unconditionally restored,
// even when a script fails, so the connection is never left with integrity
// checks disabled.
func (a *SQLiteAdapter) RollbackTo(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (reverted []string, err error) {

	// The pragma is connection-scoped. The pool is capped at one open
	// connection for this engine, so it applies to every statement below.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return nil, e.W(err, ECode040207)
	}
	defer func() {
		// Restore regardless of the rollback outcome. Use a background
		// context so a cancelled ctx cannot leave enforcement off.
		if _, perr := conn.Exec("PRAGMA foreign_keys = ON"); perr != nil && err == nil {
			err = e.W(perr, ECode040208)
		}
	}()

	return runScripts(ctx, conn, sql.EngineSQLite, scripts, false)
}
