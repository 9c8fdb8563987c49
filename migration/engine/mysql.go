package engine

import (
	"context"
	"strings"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode040401 = e.Code0404 + "01"
	ECode040402 = e.Code0404 + "02"
	ECode040403 = e.Code0404 + "03"
	ECode040404 = e.Code0404 + "04"
	ECode040405 = e.Code0404 + "05"
	ECode040406 = e.Code0404 + "06"
	ECode040407 = e.Code0404 + "07"
)

// MySQLAdapter serves the MySQL/MariaDB client/server engine
type MySQLAdapter struct{}

// Engine returns the engine this adapter serves
func (a *MySQLAdapter) Engine() sql.Engine {
	return sql.EngineMySQL
}

// serverParams returns a copy of the connection parameters with no database
// selected, so the connection succeeds before the tenant database exists
func (a *MySQLAdapter) serverParams(cp *sql.ConnParam) *sql.ConnParam {
	sp := *cp
	sp.DBName = ""
	return &sp
}

// CanConnect probes the server without selecting a database, bounded by the
// caller's context deadline
func (a *MySQLAdapter) CanConnect(ctx context.Context, cp *sql.ConnParam) bool {
	conn, err := sql.Open(a.serverParams(cp))
	if err != nil {
		return false
	}
	defer func() {
		_ = conn.Close()
	}()

	return conn.PingContext(ctx) == nil
}

// Connect opens and pings a connection to the tenant database
func (a *MySQLAdapter) Connect(cp *sql.ConnParam) (conn *sql.Connection, err error) {
	conn, err = sql.NewConnection(cp)
	if err != nil {
		return nil, e.W(err, ECode040401)
	}

	return conn, nil
}

// DatabaseExists checks the schemata catalogue through a server-level
// connection
func (a *MySQLAdapter) DatabaseExists(ctx context.Context, cp *sql.ConnParam) (exists bool, err error) {
	conn, err := sql.NewConnection(a.serverParams(cp))
	if err != nil {
		return false, e.W(err, ECode040402)
	}
	defer func() {
		_ = conn.Close()
	}()

	var count int
	row := conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.schemata
		WHERE schema_name = ?`, cp.DBName)
	if err := row.Scan(&count); err != nil {
		return false, e.W(err, ECode040403)
	}

	return count > 0, nil
}

// EnsureDatabase creates the tenant database if it does not exist yet
func (a *MySQLAdapter) EnsureDatabase(ctx context.Context, cp *sql.ConnParam) (err error) {
	conn, err := sql.NewConnection(a.serverParams(cp))
	if err != nil {
		return e.W(err, ECode040404)
	}
	defer func() {
		_ = conn.Close()
	}()

	// The database name cannot be parameterized in DDL, quote it as an
	// identifier instead
	name := "`" + strings.ReplaceAll(cp.DBName, "`", "``") + "`"
	if _, err := conn.ExecContext(ctx,
		"CREATE DATABASE IF NOT EXISTS "+name+
			" CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		return e.W(err, ECode040405, cp.DBName)
	}

	return nil
}

// ListTables enumerates base tables in the connected database. Names come
// back lower-cased since casing sensitivity varies with the server's file
// system.
func (a *MySQLAdapter) ListTables(ctx context.Context, conn *sql.Connection) (tables []string, err error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, e.W(err, ECode040406)
	}

	return scanTableNames(rows)
}

// ValidateSchema reports whether every required table is present
func (a *MySQLAdapter) ValidateSchema(ctx context.Context, conn *sql.Connection,
	requiredTables []string) (ok bool, err error) {

	tables, err := a.ListTables(ctx, conn)
	if err != nil {
		return false, e.W(err, ECode040407)
	}

	return validateSchema(tables, requiredTables), nil
}

// ApplyMigrations runs the scripts' forward operations in order
func (a *MySQLAdapter) ApplyMigrations(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (applied []string, err error) {

	return runScripts(ctx, conn, sql.EngineMySQL, scripts, true)
}

// RollbackTo runs the scripts' backward operations newest first. MySQL DDL
// commits implicitly, so the per-script transaction only guards the scripts
// that contain DML.
func (a *MySQLAdapter) RollbackTo(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (reverted []string, err error) {

	return runScripts(ctx, conn, sql.EngineMySQL, scripts, false)
}
