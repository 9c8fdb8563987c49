// Package engine holds one storage engine adapter per supported database
// technology. An adapter knows how to probe connectivity, enumerate a tenant
// database's tables and drive the migration scripts forward or backward,
// localizing engine quirks (metadata surfaces, identifier casing, the
// embedded engine's referential-integrity toggling).
package engine

import (
	"context"
	"strings"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode040101 = e.Code0401 + "01"
	ECode040102 = e.Code0401 + "02"
	ECode040103 = e.Code0401 + "03"
	ECode040104 = e.Code0401 + "04"
	ECode040105 = e.Code0401 + "05"
	ECode040106 = e.Code0401 + "06"
	ECode040107 = e.Code0401 + "07"
)

// Adapter the per-engine contract the orchestrator drives. Implementations
// are stateless; the tenant's connection parameters or an open connection
// are passed per call.
type Adapter interface {
	// Engine returns the engine this adapter serves
	Engine() sql.Engine
	// CanConnect is a lightweight liveness/writability probe. It never
	// returns an error for ordinary unreachable conditions - it reports
	// false. Callers bound it with a short context deadline.
	CanConnect(ctx context.Context, cp *sql.ConnParam) bool
	// Connect opens a verified connection to the tenant database
	Connect(cp *sql.ConnParam) (*sql.Connection, error)
	// DatabaseExists reports whether the tenant database exists
	DatabaseExists(ctx context.Context, cp *sql.ConnParam) (bool, error)
	// EnsureDatabase creates the tenant database if it does not exist yet
	EnsureDatabase(ctx context.Context, cp *sql.ConnParam) error
	// ListTables enumerates the tenant database's tables, normalized to
	// lower case
	ListTables(ctx context.Context, conn *sql.Connection) ([]string, error)
	// ValidateSchema reports whether every required table is present
	ValidateSchema(ctx context.Context, conn *sql.Connection, requiredTables []string) (bool, error)
	// ApplyMigrations runs the scripts' forward operations in order. It
	// returns the scripts that fully completed, which may be a prefix of
	// the input when a script fails or the context is cancelled.
	ApplyMigrations(ctx context.Context, conn *sql.Connection, scripts []*model.Script) ([]string, error)
	// RollbackTo runs the scripts' backward operations in the given order
	// (newest first). Same partial-completion semantics as ApplyMigrations.
	RollbackTo(ctx context.Context, conn *sql.Connection, scripts []*model.Script) ([]string, error)
}

// adapters strategy lookup keyed on the tenant's declared engine
var adapters = map[sql.Engine]Adapter{
	sql.EngineSQLite:   &SQLiteAdapter{},
	sql.EnginePostgres: &PostgresAdapter{},
	sql.EngineMySQL:    &MySQLAdapter{},
	sql.EngineMSSQL:    &MSSQLAdapter{},
}

// ForEngine returns the adapter for the engine
func ForEngine(en sql.Engine) (a Adapter, err error) {
	a, ok := adapters[en]
	if !ok {
		return nil, e.WM(nil, ECode040101, e.MsgEngineUnsupported, string(en))
	}

	return a, nil
}

// runScripts executes one script per transaction. Cancellation is only
// honored at script boundaries so state never reflects a partially applied
// script. Returns the names of the scripts that fully completed.
func runScripts(ctx context.Context, conn *sql.Connection, en sql.Engine,
	scripts []*model.Script, forward bool) (done []string, err error) {

	for _, s := range scripts {
		if err := ctx.Err(); err != nil {
			return done, e.W(err, ECode040102, s.Name)
		}

		var stmt string
		var ok bool
		if forward {
			stmt, ok = s.UpSQL(en)
		} else {
			stmt, ok = s.DownSQL(en)
		}
		if !ok {
			return done, e.N(ECode040103, e.MsgMigrationScriptDNE,
				s.Name, string(en))
		}

		txn, err := conn.BeginTxn(ctx)
		if err != nil {
			return done, e.W(err, ECode040104, s.Name)
		}

		if _, err := txn.Exec(ctx, stmt); err != nil {
			txn.RollbackIfInTxn()
			return done, e.W(err, ECode040105, s.Name)
		}

		if err := txn.Commit(); err != nil {
			txn.RollbackIfInTxn()
			return done, e.W(err, ECode040106, s.Name)
		}

		done = append(done, s.Name)
	}

	return done, nil
}

// validateSchema reports whether every required table is in the table list.
// Comparison is case-insensitive since adapters normalize to lower case.
func validateSchema(tables []string, requiredTables []string) bool {
	have := make(map[string]bool, len(tables))
	for _, t := range tables {
		have[strings.ToLower(t)] = true
	}

	for _, t := range requiredTables {
		if !have[strings.ToLower(t)] {
			return false
		}
	}

	return true
}

// scanTableNames collects and lower-cases the single-column result of an
// engine's table metadata query
func scanTableNames(rows *sql.Rows) (tables []string, err error) {
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, e.W(err, ECode040107)
		}
		tables = append(tables, strings.ToLower(name))
	}

	return tables, nil
}
