package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

func sqliteTestScript(name, up, down string, tables ...string) *model.Script {
	return &model.Script{
		Name:   name,
		Tables: tables,
		Up:     map[sql.Engine]string{sql.EngineSQLite: up},
		Down:   map[sql.Engine]string{sql.EngineSQLite: down},
	}
}

func openSQLiteTenant(t *testing.T) (a *SQLiteAdapter, cp *sql.ConnParam, conn *sql.Connection) {
	t.Helper()

	a = &SQLiteAdapter{}
	cp = &sql.ConnParam{
		Engine:   sql.EngineSQLite,
		FilePath: filepath.Join(t.TempDir(), "tenant.db"),
	}

	require.NoError(t, a.EnsureDatabase(context.Background(), cp))

	conn, err := a.Connect(cp)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return a, cp, conn
}

func TestSQLiteAdapterLifecycle(t *testing.T) {
	ctx := context.Background()
	a, cp, conn := openSQLiteTenant(t)

	require.True(t, a.CanConnect(ctx, cp))

	exists, err := a.DatabaseExists(ctx, cp)
	require.NoError(t, err)
	require.True(t, exists)

	scripts := []*model.Script{
		sqliteTestScript("20250101000000_parent",
			"CREATE TABLE parent (parent_id INTEGER PRIMARY KEY);",
			"DROP TABLE parent;", "parent"),
		sqliteTestScript("20250102000000_child",
			`CREATE TABLE child (
				child_id INTEGER PRIMARY KEY,
				parent_id INTEGER NOT NULL REFERENCES parent (parent_id)
			);`,
			"DROP TABLE child;", "child"),
	}

	applied, err := a.ApplyMigrations(ctx, conn, scripts)
	require.NoError(t, err)
	require.Equal(t, []string{"20250101000000_parent", "20250102000000_child"},
		applied)

	tables, err := a.ListTables(ctx, conn)
	require.NoError(t, err)
	require.Contains(t, tables, "parent")
	require.Contains(t, tables, "child")

	ok, err := a.ValidateSchema(ctx, conn, []string{"parent", "child"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.ValidateSchema(ctx, conn, []string{"parent", "missing"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteAdapterPartialApplyStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	a, _, conn := openSQLiteTenant(t)

	scripts := []*model.Script{
		sqliteTestScript("20250101000000_ok",
			"CREATE TABLE ok_table (id INTEGER PRIMARY KEY);",
			"DROP TABLE ok_table;", "ok_table"),
		sqliteTestScript("20250102000000_bad",
			"NOT A STATEMENT;",
			"SELECT 1;"),
		sqliteTestScript("20250103000000_never",
			"CREATE TABLE never_table (id INTEGER PRIMARY KEY);",
			"DROP TABLE never_table;", "never_table"),
	}

	applied, err := a.ApplyMigrations(ctx, conn, scripts)
	require.Error(t, err)
	require.Equal(t, []string{"20250101000000_ok"}, applied)

	tables, lerr := a.ListTables(ctx, conn)
	require.NoError(t, lerr)
	require.Contains(t, tables, "ok_table")
	require.NotContains(t, tables, "never_table")
}

func TestSQLiteAdapterCancelledContextAppliesNothing(t *testing.T) {
	a, _, conn := openSQLiteTenant(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scripts := []*model.Script{
		sqliteTestScript("20250101000000_ok",
			"CREATE TABLE ok_table (id INTEGER PRIMARY KEY);",
			"DROP TABLE ok_table;", "ok_table"),
	}

	// Cancellation is honored between scripts, so nothing starts
	applied, err := a.ApplyMigrations(ctx, conn, scripts)
	require.Error(t, err)
	require.Empty(t, applied)

	tables, err := a.ListTables(context.Background(), conn)
	require.NoError(t, err)
	require.NotContains(t, tables, "ok_table")
}

// foreignKeysEnabled reads the connection's current pragma value
func foreignKeysEnabled(t *testing.T, conn *sql.Connection) bool {
	t.Helper()

	var v int
	row := conn.QueryRow("PRAGMA foreign_keys")
	require.NoError(t, row.Scan(&v))
	return v == 1
}

func TestSQLiteRollbackRestoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	a, _, conn := openSQLiteTenant(t)

	scripts := []*model.Script{
		sqliteTestScript("20250101000000_parent",
			"CREATE TABLE parent (parent_id INTEGER PRIMARY KEY);",
			"DROP TABLE parent;", "parent"),
		sqliteTestScript("20250102000000_child",
			`CREATE TABLE child (
				child_id INTEGER PRIMARY KEY,
				parent_id INTEGER NOT NULL REFERENCES parent (parent_id)
			);`,
			"DROP TABLE child;", "child"),
	}
	_, err := a.ApplyMigrations(ctx, conn, scripts)
	require.NoError(t, err)
	require.True(t, foreignKeysEnabled(t, conn))

	// Successful rollback: enforcement restored
	reverted, err := a.RollbackTo(ctx, conn,
		[]*model.Script{scripts[1], scripts[0]})
	require.NoError(t, err)
	require.Equal(t, []string{"20250102000000_child", "20250101000000_parent"},
		reverted)
	require.True(t, foreignKeysEnabled(t, conn))

	// Failing rollback: enforcement still restored
	_, err = a.ApplyMigrations(ctx, conn, scripts)
	require.NoError(t, err)

	bad := sqliteTestScript("20250102000000_child",
		"SELECT 1;", "NOT A STATEMENT;")
	_, err = a.RollbackTo(ctx, conn, []*model.Script{bad})
	require.Error(t, err)
	require.True(t, foreignKeysEnabled(t, conn))
}

func TestSQLiteCanConnectUnwritableDir(t *testing.T) {
	a := &SQLiteAdapter{}

	require.True(t, a.CanConnect(context.Background(), &sql.ConnParam{
		Engine:   sql.EngineSQLite,
		FilePath: ":memory:",
	}))

	// /proc is not writable, and MkdirAll under it fails
	require.False(t, a.CanConnect(context.Background(), &sql.ConnParam{
		Engine:   sql.EngineSQLite,
		FilePath: "/proc/retail/tenant.db",
	}))
}

func TestForEngineDispatch(t *testing.T) {
	for _, en := range []sql.Engine{sql.EngineSQLite, sql.EnginePostgres,
		sql.EngineMySQL, sql.EngineMSSQL} {
		a, err := ForEngine(en)
		require.NoError(t, err)
		require.Equal(t, en, a.Engine())
	}

	_, err := ForEngine(sql.Engine("oracle"))
	require.Error(t, err)
}

func TestValidateSchemaIsCaseInsensitive(t *testing.T) {
	require.True(t, validateSchema([]string{"product", "customer"},
		[]string{"Product", "CUSTOMER"}))
	require.False(t, validateSchema([]string{"product"},
		[]string{"product", "sale"}))
	require.True(t, validateSchema([]string{"product"}, nil))
}
