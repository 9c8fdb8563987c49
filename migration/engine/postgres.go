package engine

import (
	"context"

	"github.com/lib/pq"
	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode040301 = e.Code0403 + "01"
	ECode040302 = e.Code0403 + "02"
	ECode040303 = e.Code0403 + "03"
	ECode040304 = e.Code0403 + "04"
	ECode040305 = e.Code0403 + "05"
	ECode040306 = e.Code0403 + "06"
	ECode040307 = e.Code0403 + "07"
	ECode040308 = e.Code0403 + "08"
)

// postgresMaintenanceDB every PostgreSQL cluster has this database; existence
// checks and CREATE DATABASE run against it because the tenant database may
// not exist yet
const postgresMaintenanceDB = "postgres"

// PostgresAdapter serves the PostgreSQL client/server engine
type PostgresAdapter struct{}

// Engine returns the engine this adapter serves
func (a *PostgresAdapter) Engine() sql.Engine {
	return sql.EnginePostgres
}

// maintenanceParams returns a copy of the connection parameters pointed at
// the cluster's maintenance database
func (a *PostgresAdapter) maintenanceParams(cp *sql.ConnParam) *sql.ConnParam {
	mp := *cp
	mp.DBName = postgresMaintenanceDB
	return &mp
}

// CanConnect probes the server by pinging the maintenance database, bounded
// by the caller's context deadline
func (a *PostgresAdapter) CanConnect(ctx context.Context, cp *sql.ConnParam) bool {
	conn, err := sql.Open(a.maintenanceParams(cp))
	if err != nil {
		return false
	}
	defer func() {
		_ = conn.Close()
	}()

	return conn.PingContext(ctx) == nil
}

// Connect opens and pings a connection to the tenant database
func (a *PostgresAdapter) Connect(cp *sql.ConnParam) (conn *sql.Connection, err error) {
	conn, err = sql.NewConnection(cp)
	if err != nil {
		return nil, e.W(err, ECode040301)
	}

	return conn, nil
}

// DatabaseExists checks pg_database through the maintenance database
func (a *PostgresAdapter) DatabaseExists(ctx context.Context, cp *sql.ConnParam) (exists bool, err error) {
	conn, err := sql.NewConnection(a.maintenanceParams(cp))
	if err != nil {
		return false, e.W(err, ECode040302)
	}
	defer func() {
		_ = conn.Close()
	}()

	var count int
	row := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pg_database WHERE datname = $1", cp.DBName)
	if err := row.Scan(&count); err != nil {
		return false, e.W(err, ECode040303)
	}

	return count > 0, nil
}

// EnsureDatabase creates the tenant database if it does not exist yet.
// CREATE DATABASE cannot run inside a transaction, so it is a plain exec.
func (a *PostgresAdapter) EnsureDatabase(ctx context.Context, cp *sql.ConnParam) (err error) {
	exists, err := a.DatabaseExists(ctx, cp)
	if err != nil {
		return e.W(err, ECode040304)
	}
	if exists {
		return nil
	}

	conn, err := sql.NewConnection(a.maintenanceParams(cp))
	if err != nil {
		return e.W(err, ECode040305)
	}
	defer func() {
		_ = conn.Close()
	}()

	// The database name cannot be parameterized in DDL, quote it as an
	// identifier instead
	if _, err := conn.ExecContext(ctx,
		"CREATE DATABASE "+pq.QuoteIdentifier(cp.DBName)); err != nil {
		return e.W(err, ECode040306, cp.DBName)
	}

	return nil
}

// ListTables enumerates base tables in the public schema
func (a *PostgresAdapter) ListTables(ctx context.Context, conn *sql.Connection) (tables []string, err error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, e.W(err, ECode040307)
	}

	return scanTableNames(rows)
}

// ValidateSchema reports whether every required table is present
func (a *PostgresAdapter) ValidateSchema(ctx context.Context, conn *sql.Connection,
	requiredTables []string) (ok bool, err error) {

	tables, err := a.ListTables(ctx, conn)
	if err != nil {
		return false, e.W(err, ECode040308)
	}

	return validateSchema(tables, requiredTables), nil
}

// ApplyMigrations runs the scripts' forward operations in order
func (a *PostgresAdapter) ApplyMigrations(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (applied []string, err error) {

	return runScripts(ctx, conn, sql.EnginePostgres, scripts, true)
}

// RollbackTo runs the scripts' backward operations newest first
func (a *PostgresAdapter) RollbackTo(ctx context.Context, conn *sql.Connection,
	scripts []*model.Script) (reverted []string, err error) {

	return runScripts(ctx, conn, sql.EnginePostgres, scripts, false)
}
