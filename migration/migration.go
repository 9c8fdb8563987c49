// Package migration orchestrates per-tenant database lifecycle: provisioning,
// forward migration, rollback, validation and state repair across the
// supported storage engines. Progress is tracked durably in a central
// bookkeeping store so a tenant's state survives even when its own database
// is unreachable.
package migration

import (
	"embed"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/sql"
)

const (
	ECode000601 = e.Code0006 + "01"
	ECode000602 = e.Code0006 + "02"
	ECode000603 = e.Code0006 + "03"
)

//go:embed db/central db/migrations
var dbFS embed.FS

// defaultTables per-script manifest of the tables that must exist once the
// script has been applied. Drives schema validation.
var defaultTables = map[string][]string{
	"20240105090000_create_product":  {"product_category", "product"},
	"20240219114500_create_customer": {"customer"},
	"20240402103000_create_sale":     {"sale", "sale_line"},
	"20240527160000_create_expense":  {"expense"},
}

// centralDDL the bookkeeping store schema per supported central engine
var centralDDL = map[sql.Engine]string{
	sql.EnginePostgres: "db/central/postgres.sql",
	sql.EngineSQLite:   "db/central/sqlite.sql",
}

// Install creates the bookkeeping tables (tenant, tenant_migration,
// tenant_migration_audit) in the central store if they do not exist yet.
// Idempotent. The central store runs on postgres or, for single-node
// deployments, sqlite.
func Install(db *sql.Connection) (err error) {
	path, ok := centralDDL[db.Engine()]
	if !ok {
		return e.N(ECode000601, e.MsgEngineUnsupported,
			"central store must be postgres or sqlite", string(db.Engine()))
	}

	b, err := dbFS.ReadFile(path)
	if err != nil {
		return e.W(err, ECode000602, path)
	}

	if _, err := db.Exec(string(b)); err != nil {
		return e.W(err, ECode000603)
	}

	return nil
}

// DefaultList loads the released script set embedded in this library
func DefaultList() (l *List, err error) {
	return NewList("db/migrations", dbFS, defaultTables)
}
