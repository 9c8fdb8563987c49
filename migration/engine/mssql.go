package engine

import (
	"context"
	"strings"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode040501 = e.Code0405 + "01"
	ECode040502 = e.Code0405 + "02"
	ECode040503 = e.Code0405 + "03"
	ECode040504 = e.Code0405 + "04"
	ECode040505 = e.Code0405 + "05"
	ECode040506 = e.Code0405 + "06"
	ECode040507 = e.Code0405 + "07"
	ECode040508 = e.Code0405 + "08"
)

// mssqlMasterDB existence checks and CREATE DATABASE run against master
// because the tenant database may not exist yet
const mssqlMasterDB = "master"

// MSSQLAdapter serves the Microsoft SQL Server client/server engine
type MSSQLAdapter struct{}

// Engine returns the engine this adapter serves
func (a *MSSQLAdapter) Engine() sql.Engine {
	return sql.EngineMSSQL
}

// masterParams returns a copy of the connection parameters pointed at the
// server's master database
func (a *MSSQLAdapter) masterParams(cp *sql.ConnParam) *sql.ConnParam {
	mp := *cp
	mp.DBName = mssqlMasterDB
	return &mp
}

// CanConnect probes the server by pinging master, bounded by the caller's
// context deadline
func (a *MSSQLAdapter) CanConnect(ctx context.Context, cp *sql.ConnParam) bool {
	conn, err := sql.Open(a.masterParams(cp))
	if err != nil {
		return false
	}
	defer func() {
		_ = conn.Close()
	}()

	return conn.PingContext(ctx) == nil
}

// Connect opens and pings a connection to the tenant database
func (a *MSSQLAdapter) Connect(cp *sql.ConnParam) (conn *sql.Connection, err error) {
	conn, err = sql.NewConnection(cp)
	if err != nil {
		return nil, e.W(err, ECode040501)
	}

	return conn, nil
}

// DatabaseExists checks sys.databases through master
func (a *MSSQLAdapter) DatabaseExists(ctx context.Context, cp *sql.ConnParam) (exists bool, err error) {
	conn, err := sql.NewConnection(a.masterParams(cp))
	if err != nil {
		return false, e.W(err, ECode040502)
	}
	defer func() {
		_ = conn.Close()
	}()

	var count int
	row := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.databases WHERE name = @p1", cp.DBName)
	if err := row.Scan(&count); err != nil {
		return false, e.W(err, ECode040503)
	}

	return count > 0, nil
}

// EnsureDatabase creates the tenant database if it does not exist yet
func (a *MSSQLAdapter) EnsureDatabase(ctx context.Context, cp *sql.ConnParam) (err error) {
	exists, err := a.DatabaseExists(ctx, cp)
	if err != nil {
		return e.W(err, ECode040504)
	}
	if exists {
		return nil
	}

	conn, err := sql.NewConnection(a.masterParams(cp))
	if err != nil {
		return e.W(err, ECode040505)
	}
	defer func() {
		_ = conn.Close()
	}()

	// The database name cannot be parameterized in DDL, quote it as an
	// identifier instead
	name := "[" + strings.ReplaceAll(cp.DBName, "]", "]]") + "]"
	if _, err := conn.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		return e.W(err, ECode040506, cp.DBName)
	}

	return nil
}

// ListTables enumerates base tables in the connected database
func (a *MSSQLAdapter) ListTables(ctx context.Context, conn *sql.Connection) (tables []string, err error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'`)
	if err != nil {
		return nil, e.W(err, ECode040507)
	}

	return scanTableNames(rows)
}

// ValidateSchema reports whether every required table is present
func (a *MSSQLAdapter) ValidateSchema(ctx context.Context, conn *sql.Connection,
	requiredTables []string) (ok bool, err error) {

	tables, err := a.ListTables(ctx, conn)
	if err != nil {
		return false, e.W(err, ECode040508)
	}

	return validateSchema(tables, requiredTables), nil
}

// ApplyMigrations runs the scripts' forward operations in order
func (a *MSSQLAdapter) ApplyMigrations(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (applied []string, err error) {

	return runScripts(ctx, conn, sql.EngineMSSQL, scripts, true)
}

// RollbackTo runs the scripts' backward operations newest first
func (a *MSSQLAdapter) RollbackTo(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (reverted []string, err error) {

	return runScripts(ctx, conn, sql.EngineMSSQL, scripts, false)
}
