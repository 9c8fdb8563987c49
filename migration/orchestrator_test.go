package migration

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/engine"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/migration/sqlmodel"
	"github.com/tillworks/retail-lib/sql"
	"github.com/tillworks/retail-lib/tenant"
	tenantsqlmodel "github.com/tillworks/retail-lib/tenant/sqlmodel"
)

const (
	scriptProduct  = "20240105090000_create_product"
	scriptCustomer = "20240219114500_create_customer"
	scriptSale     = "20240402103000_create_sale"
	scriptExpense  = "20240527160000_create_expense"
)

// newTestOrchestrator wires an orchestrator over an in-memory central store
// with the real tenant registry
func newTestOrchestrator(t *testing.T, scripts *List) (o *Orchestrator, r *tenant.SQLRegistry) {
	t.Helper()

	central, err := sql.NewConnection(&sql.ConnParam{
		Engine:   sql.EngineSQLite,
		FilePath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = central.Close()
	})

	require.NoError(t, Install(central))

	r = tenant.NewSQLRegistry(central)
	o, err = NewOrchestrator(&OrchestratorConfig{
		CentralDB:    central,
		Registry:     r,
		Scripts:      scripts,
		ProbeTimeout: 500 * time.Millisecond,
		// The retry tests drive repeated attempts back to back
		DisableRetryBackoff: true,
	})
	require.NoError(t, err)

	return o, r
}

// addSQLiteTenant registers an active tenant backed by a fresh database file
func addSQLiteTenant(t *testing.T, r *tenant.SQLRegistry, code string) (id int) {
	t.Helper()

	id, err := r.Register(context.Background(), &tenantsqlmodel.TenantInsertParam{
		Code:   code,
		Name:   "Branch " + code,
		Engine: sql.EngineSQLite,
		ConnParam: sql.ConnParam{
			Engine:   sql.EngineSQLite,
			FilePath: filepath.Join(t.TempDir(), code+".db"),
		},
		IsActive: true,
	})
	require.NoError(t, err)

	return id
}

// sqliteScript builds a single-dialect script for failure-injection tests
func sqliteScript(name, up, down string, tables ...string) *model.Script {
	return &model.Script{
		Name:   name,
		Tables: tables,
		Up:     map[sql.Engine]string{sql.EngineSQLite: up},
		Down:   map[sql.Engine]string{sql.EngineSQLite: down},
	}
}

func testList(scripts ...*model.Script) *List {
	l := &List{scripts: map[string]*model.Script{}}
	for _, s := range scripts {
		l.scripts[s.Name] = s
		l.names = append(l.names, s.Name)
	}
	sort.Strings(l.names)
	return l
}

func TestNewOrchestratorDefaultsBackoffBase(t *testing.T) {
	central, err := sql.NewConnection(&sql.ConnParam{
		Engine:   sql.EngineSQLite,
		FilePath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = central.Close()
	})

	list, err := DefaultList()
	require.NoError(t, err)

	// A zero-value config gets the default retry gating
	o, err := NewOrchestrator(&OrchestratorConfig{
		CentralDB: central,
		Registry:  tenant.NewSQLRegistry(central),
		Scripts:   list,
	})
	require.NoError(t, err)
	require.Equal(t, DefaultBackoffBase, o.backoffBase)

	// Opting out is explicit
	o, err = NewOrchestrator(&OrchestratorConfig{
		CentralDB:           central,
		Registry:            tenant.NewSQLRegistry(central),
		Scripts:             list,
		DisableRetryBackoff: true,
	})
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), o.backoffBase)
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "idem")

	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{scriptProduct, scriptCustomer, scriptSale,
		scriptExpense}, res.Applied)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.MIGRATION_STATUS_COMPLETE, h.Status)
	require.Equal(t, scriptExpense, h.LastApplied)
	require.Equal(t, 0, h.RetryCount)
	require.Empty(t, h.Pending)
	require.Len(t, h.Applied, 4)

	// Second run on an up-to-date tenant is a correct no-op
	res, err = o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.Applied)

	h, err = o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, scriptExpense, h.LastApplied)
	require.Equal(t, model.MIGRATION_STATUS_COMPLETE, h.Status)
}

func TestApplyMigrationsToTarget(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "target")

	res, err := o.ApplyMigrations(ctx, id, scriptCustomer)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{scriptProduct, scriptCustomer}, res.Applied)

	names, err := o.GetPendingMigrations(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{scriptSale, scriptExpense}, names)

	// Finish the remainder
	res, err = o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{scriptSale, scriptExpense}, res.Applied)

	ok, err := o.ValidateTenantDatabase(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyMigrationsStopsAtScriptBoundaryOnCancel(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "cancel")

	res, err := o.ApplyMigrations(ctx, id, scriptProduct)
	require.NoError(t, err)
	require.True(t, res.Success)

	// A cancelled context halts before the next script starts, so the
	// pointer stays at the last fully completed script
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	res, err = o.ApplyMigrations(cancelled, id, "")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Empty(t, res.Applied)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, scriptProduct, h.LastApplied)
	require.Equal(t, model.MIGRATION_STATUS_FAILED, h.Status)
	require.Equal(t, 1, h.RetryCount)

	// A fresh context resumes cleanly from where the run stopped
	res, err = o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{scriptCustomer, scriptSale, scriptExpense},
		res.Applied)

	h, err = o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, scriptExpense, h.LastApplied)
	require.Equal(t, model.MIGRATION_STATUS_COMPLETE, h.Status)
	require.Equal(t, 0, h.RetryCount)
}

func TestGetPendingMigrationsBeforeFirstReconcile(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "untouched")

	// No state row yet: every script is pending
	names, err := o.GetPendingMigrations(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{scriptProduct, scriptCustomer, scriptSale,
		scriptExpense}, names)
}

func TestApplyMigrationsScriptFailureFreezesState(t *testing.T) {
	ctx := context.Background()
	list := testList(
		sqliteScript("20250101000000_alpha",
			"CREATE TABLE alpha (alpha_id INTEGER PRIMARY KEY);",
			"DROP TABLE alpha;", "alpha"),
		sqliteScript("20250102000000_beta",
			"THIS IS NOT VALID SQL;",
			"SELECT 1;", "beta"),
	)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "frozen")

	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.NotEmpty(t, res.ErrorMessage)
	// State reflects the last fully completed script
	require.Equal(t, []string{"20250101000000_alpha"}, res.Applied)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "20250101000000_alpha", h.LastApplied)
	require.Equal(t, model.MIGRATION_STATUS_FAILED, h.Status)
	require.Equal(t, 1, h.RetryCount)
	require.NotEmpty(t, h.ErrorDetail)
}

func TestRetryThresholdEscalatesToManualIntervention(t *testing.T) {
	ctx := context.Background()
	list := testList(
		sqliteScript("20250101000000_broken",
			"THIS IS NOT VALID SQL;",
			"SELECT 1;", "broken"),
	)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "stuck")

	for i := 1; i <= 4; i++ {
		res, err := o.ApplyMigrations(ctx, id, "")
		require.NoError(t, err)
		require.False(t, res.Success)

		h, err := o.GetMigrationHistory(ctx, id)
		require.NoError(t, err)
		require.Equal(t, i, h.RetryCount)
		if i <= 3 {
			require.Equal(t, model.MIGRATION_STATUS_FAILED, h.Status)
		} else {
			require.Equal(t, model.MIGRATION_STATUS_MANUAL, h.Status)
		}
	}

	// The fifth call is a no-op that re-reports the stuck state
	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Empty(t, res.Applied)
	require.Equal(t, e.MsgMigrationManual, res.ErrorMessage)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 4, h.RetryCount)
	require.Equal(t, model.MIGRATION_STATUS_MANUAL, h.Status)

	// Only an explicit administrative reset clears the state
	require.NoError(t, o.ResetManualIntervention(ctx, id))

	h, err = o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.MIGRATION_STATUS_PENDING, h.Status)
	require.Equal(t, 0, h.RetryCount)
	require.Empty(t, h.ErrorDetail)

	aList, err := sqlmodel.AuditGetByTenantID(o.centralDB, id, 0)
	require.NoError(t, err)
	require.Len(t, aList, 1)
	require.Equal(t, model.AUDIT_ACTION_RESET, aList[0].Action)
}

func TestSweepIsolatesTenantFailures(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	goodID := addSQLiteTenant(t, r, "good")

	// A server engine nobody is listening on: the probe fails fast
	badID, err := r.Register(ctx, &tenantsqlmodel.TenantInsertParam{
		Code:   "bad",
		Name:   "Branch bad",
		Engine: sql.EnginePostgres,
		ConnParam: sql.ConnParam{
			Engine:   sql.EnginePostgres,
			Host:     "127.0.0.1",
			Port:     "1",
			User:     "nobody",
			Password: "nothing",
			DBName:   "unreachable",
			SSLMode:  "disable",
		},
		IsActive: true,
	})
	require.NoError(t, err)

	sr, err := o.ApplyMigrationsToAllTenants(ctx)
	require.NoError(t, err)
	require.False(t, sr.Success)
	require.Len(t, sr.Results, 2)

	byID := map[int]*model.Result{}
	for _, res := range sr.Results {
		byID[res.TenantID] = res
	}
	require.True(t, byID[goodID].Success)
	require.False(t, byID[badID].Success)

	// The bad tenant's failure never touched the good tenant's state
	h, err := o.GetMigrationHistory(ctx, goodID)
	require.NoError(t, err)
	require.Equal(t, model.MIGRATION_STATUS_COMPLETE, h.Status)
	require.Equal(t, scriptExpense, h.LastApplied)

	h, err = o.GetMigrationHistory(ctx, badID)
	require.NoError(t, err)
	require.Equal(t, model.MIGRATION_STATUS_FAILED, h.Status)
	require.Equal(t, 1, h.RetryCount)
	require.Empty(t, h.LastApplied)
}

func TestApplyMigrationsBusy(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "busy")

	release, ok := o.locker.TryLock(id)
	require.True(t, ok)

	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Busy)
	require.False(t, res.Success)
	require.Equal(t, e.MsgMigrationBusy, res.ErrorMessage)

	release()

	res, err = o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestStateRepairForOutOfBandDatabase(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "repair")

	// Build the tenant database out-of-band so the bookkeeping never saw it
	tn, err := r.GetTenant(ctx, id)
	require.NoError(t, err)
	a, err := engine.ForEngine(tn.Engine)
	require.NoError(t, err)
	conn, err := a.Connect(&tn.ConnParam)
	require.NoError(t, err)
	all, err := list.Pending("", "")
	require.NoError(t, err)
	_, err = a.ApplyMigrations(ctx, conn, all)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// Reconciling detects the shape is already correct, touches nothing,
	// and repairs the state row
	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.Applied)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.MIGRATION_STATUS_COMPLETE, h.Status)
	require.Equal(t, scriptExpense, h.LastApplied)
}

func TestRollbackLastMigration(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "rollback")

	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = o.RollbackLastMigration(ctx, id)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{scriptExpense}, res.Applied)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, scriptSale, h.LastApplied)
	require.Equal(t, model.MIGRATION_STATUS_COMPLETE, h.Status)

	ok, err := o.ValidateTenantDatabase(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	// Walk all the way back down to the base state
	for _, want := range []string{scriptCustomer, scriptProduct, ""} {
		res, err = o.RollbackLastMigration(ctx, id)
		require.NoError(t, err)
		require.True(t, res.Success)

		h, err = o.GetMigrationHistory(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, h.LastApplied)
	}

	// Nothing left to roll back: correct no-op
	res, err = o.RollbackLastMigration(ctx, id)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.Applied)
}

func TestForceRemoveMigration(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "force")

	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.True(t, res.Success)

	// Only the current last applied script may be removed
	_, err = o.ForceRemoveMigration(ctx, id, scriptSale)
	require.Error(t, err)

	res, err = o.ForceRemoveMigration(ctx, id, scriptExpense)
	require.NoError(t, err)
	require.True(t, res.Success)

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, scriptSale, h.LastApplied)
	require.Equal(t, model.MIGRATION_STATUS_PENDING, h.Status)
	require.Equal(t, []string{scriptExpense}, h.Pending)

	aList, err := sqlmodel.AuditGetByTenantID(o.centralDB, id, 0)
	require.NoError(t, err)
	require.Len(t, aList, 1)
	require.Equal(t, model.AUDIT_ACTION_FORCE_REMOVE, aList[0].Action)
	require.Equal(t, scriptExpense, aList[0].Script)
}

func TestRetryBackoffGating(t *testing.T) {
	ctx := context.Background()
	list := testList(
		sqliteScript("20250101000000_broken",
			"THIS IS NOT VALID SQL;",
			"SELECT 1;", "broken"),
	)

	o, r := newTestOrchestrator(t, list)
	o.backoffBase = time.Hour
	base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return base }

	id := addSQLiteTenant(t, r, "gated")

	res, err := o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.False(t, res.Success)

	// Still inside the first retry window: reported, not attempted
	res, err = o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, strings.Contains(res.ErrorMessage, "retry backoff"))

	h, err := o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, h.RetryCount)

	// Past the window the retry runs (and fails again)
	base = base.Add(2 * time.Hour)
	res, err = o.ApplyMigrations(ctx, id, "")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, strings.Contains(res.ErrorMessage, "retry backoff"))

	h, err = o.GetMigrationHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, h.RetryCount)
}

func TestApplyMigrationsInactiveTenant(t *testing.T) {
	ctx := context.Background()
	list, err := DefaultList()
	require.NoError(t, err)

	o, r := newTestOrchestrator(t, list)
	id := addSQLiteTenant(t, r, "inactive")
	require.NoError(t, tenantsqlmodel.TenantSetActive(o.centralDB, id, false))

	_, err = o.ApplyMigrations(ctx, id, "")
	require.Error(t, err)
	require.True(t, e.ContainsError(err, e.MsgTenantInactive))
}
