package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/events"
	"github.com/tillworks/retail-lib/migration/engine"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/migration/sqlmodel"
	"github.com/tillworks/retail-lib/sql"
	"github.com/tillworks/retail-lib/tenant"
	tenantmodel "github.com/tillworks/retail-lib/tenant/model"
	"golang.org/x/sync/errgroup"
)

const (
	ECode000101 = e.Code0001 + "01"
	ECode000102 = e.Code0001 + "02"
	ECode000103 = e.Code0001 + "03"
	ECode000104 = e.Code0001 + "04"
	ECode000105 = e.Code0001 + "05"
	ECode000106 = e.Code0001 + "06"
	ECode000107 = e.Code0001 + "07"
	ECode000108 = e.Code0001 + "08"
	ECode000109 = e.Code0001 + "09"
	ECode00010A = e.Code0001 + "0A"
	ECode00010B = e.Code0001 + "0B"
	ECode00010C = e.Code0001 + "0C"
	ECode00010D = e.Code0001 + "0D"
	ECode00010E = e.Code0001 + "0E"
	ECode00010F = e.Code0001 + "0F"
	ECode00010G = e.Code0001 + "0G"
	ECode00010H = e.Code0001 + "0H"
	ECode00010I = e.Code0001 + "0I"
	ECode00010J = e.Code0001 + "0J"
	ECode00010K = e.Code0001 + "0K"
	ECode00010L = e.Code0001 + "0L"
	ECode00010M = e.Code0001 + "0M"
	ECode00010N = e.Code0001 + "0N"
	ECode00010O = e.Code0001 + "0O"
	ECode00010P = e.Code0001 + "0P"
	ECode00010Q = e.Code0001 + "0Q"
	ECode00010R = e.Code0001 + "0R"
	ECode00010S = e.Code0001 + "0S"
	ECode000110 = e.Code0001 + "10"
	ECode000111 = e.Code0001 + "11"
	ECode000112 = e.Code0001 + "12"
	ECode000113 = e.Code0001 + "13"
	ECode000114 = e.Code0001 + "14"
	ECode000115 = e.Code0001 + "15"
	ECode000116 = e.Code0001 + "16"
	ECode000117 = e.Code0001 + "17"
	ECode000118 = e.Code0001 + "18"
	ECode000119 = e.Code0001 + "19"
	ECode00011A = e.Code0001 + "1A"
	ECode00011B = e.Code0001 + "1B"
	ECode00011C = e.Code0001 + "1C"
	ECode00011D = e.Code0001 + "1D"
	ECode00011E = e.Code0001 + "1E"
	ECode00011F = e.Code0001 + "1F"
)

const (
	// DefaultMaxRetries failures beyond this move the tenant to manual
	// intervention
	DefaultMaxRetries = 3
	// DefaultSweepConcurrency bound on parallel tenant reconciliations
	// during a sweep
	DefaultSweepConcurrency = 4
	// DefaultProbeTimeout bound on the connectivity probe so one
	// unreachable tenant cannot stall a sweep
	DefaultProbeTimeout = 5 * time.Second
	// DefaultBackoffBase first retry delay; doubles per consecutive failure
	DefaultBackoffBase = 2 * time.Second
	// maxBackoff cap on the computed retry delay
	maxBackoff = 10 * time.Minute
)

// OrchestratorConfig options for NewOrchestrator. CentralDB, Registry and
// Scripts are required.
type OrchestratorConfig struct {
	// CentralDB connection to the central (non-tenant) bookkeeping store
	CentralDB *sql.Connection
	// Registry supplies tenant metadata
	Registry tenant.Registry
	// Scripts the authoritative script set
	Scripts *List
	// Publisher receives lifecycle events; defaults to a no-op publisher
	Publisher events.Publisher
	// MaxRetries failures beyond this move the tenant to manual
	// intervention; defaults to DefaultMaxRetries
	MaxRetries int
	// SweepConcurrency bound on parallel tenant reconciliations; defaults
	// to DefaultSweepConcurrency
	SweepConcurrency int
	// ProbeTimeout bound on the connectivity probe; defaults to
	// DefaultProbeTimeout
	ProbeTimeout time.Duration
	// BackoffBase first retry delay, doubling per consecutive failure up
	// to a fixed cap; defaults to DefaultBackoffBase
	BackoffBase time.Duration
	// DisableRetryBackoff turns retry gating off so every call attempts
	// immediately. For callers that schedule retries themselves.
	DisableRetryBackoff bool
}

// Orchestrator reconciles tenant databases against the script set. It owns
// all writes to the migration state rows: per tenant, at most one operation
// runs at a time, enforced by a no-wait lock. Tenants are independent
// failure domains; nothing an operation does to one tenant can change
// another's state.
type Orchestrator struct {
	centralDB        *sql.Connection
	registry         tenant.Registry
	scripts          *List
	publisher        events.Publisher
	locker           *tenantLocker
	maxRetries       int
	sweepConcurrency int
	probeTimeout     time.Duration
	backoffBase      time.Duration
	// now is a clock seam for retry gating
	now func() time.Time
}

// NewOrchestrator initializes an orchestrator from the config
func NewOrchestrator(conf *OrchestratorConfig) (o *Orchestrator, err error) {
	if conf == nil || conf.CentralDB == nil {
		return nil, e.N(ECode000101, "central db is required")
	}
	if conf.Registry == nil {
		return nil, e.N(ECode000102, "tenant registry is required")
	}
	if conf.Scripts == nil {
		return nil, e.N(ECode000103, "script set is required")
	}

	o = &Orchestrator{
		centralDB:        conf.CentralDB,
		registry:         conf.Registry,
		scripts:          conf.Scripts,
		publisher:        conf.Publisher,
		locker:           newTenantLocker(),
		maxRetries:       conf.MaxRetries,
		sweepConcurrency: conf.SweepConcurrency,
		probeTimeout:     conf.ProbeTimeout,
		backoffBase:      conf.BackoffBase,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	if o.publisher == nil {
		o.publisher = &events.NopPublisher{}
	}
	if o.maxRetries <= 0 {
		o.maxRetries = DefaultMaxRetries
	}
	if o.sweepConcurrency <= 0 {
		o.sweepConcurrency = DefaultSweepConcurrency
	}
	if o.probeTimeout <= 0 {
		o.probeTimeout = DefaultProbeTimeout
	}
	if o.backoffBase <= 0 {
		o.backoffBase = DefaultBackoffBase
	}
	if conf.DisableRetryBackoff {
		o.backoffBase = 0
	}

	return o, nil
}

// ApplyMigrations reconciles the tenant's database forward to targetScript
// (latest when empty). Re-running on an up-to-date tenant is a correct
// no-op. Failures are reported in the result, not as an error: an error
// return means the request itself was invalid (unknown tenant, unknown
// script) or the bookkeeping store is unavailable.
func (o *Orchestrator) ApplyMigrations(ctx context.Context, tenantID int,
	targetScript string) (res *model.Result, err error) {

	res = &model.Result{TenantID: tenantID}

	release, ok := o.locker.TryLock(tenantID)
	if !ok {
		res.Busy = true
		res.ErrorMessage = e.MsgMigrationBusy
		return res, nil
	}
	defer release()

	t, adapter, err := o.resolveTenant(ctx, tenantID)
	if err != nil {
		return nil, e.W(err, ECode000104)
	}

	state, err := o.getOrCreateState(t.ID)
	if err != nil {
		return nil, e.W(err, ECode000105)
	}

	// Retry budget exhausted: re-report the stuck state, touch nothing
	if state.Status == model.MIGRATION_STATUS_MANUAL {
		res.ErrorMessage = e.MsgMigrationManual
		return res, nil
	}

	if wait, gated := o.backoffRemaining(state); gated {
		res.ErrorMessage = fmt.Sprintf(
			"retry backoff in effect, next attempt eligible in %s", wait)
		return res, nil
	}

	pending, err := o.scripts.Pending(state.LastApplied, targetScript)
	if err != nil {
		return nil, e.W(err, ECode000106)
	}

	// Idempotent fast path
	if len(pending) == 0 {
		if err := o.markComplete(t.ID, state.LastApplied); err != nil {
			return nil, e.W(err, ECode000107)
		}
		res.Success = true
		return res, nil
	}

	if err := o.markInProgress(t.ID); err != nil {
		return nil, e.W(err, ECode000108)
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()
	if !adapter.CanConnect(probeCtx, &t.ConnParam) {
		return o.recordFailure(ctx, t, state, res, state.LastApplied,
			"tenant database unreachable"), nil
	}

	if err := adapter.EnsureDatabase(ctx, &t.ConnParam); err != nil {
		return o.recordFailure(ctx, t, state, res, state.LastApplied,
			errDetail(err)), nil
	}

	conn, err := adapter.Connect(&t.ConnParam)
	if err != nil {
		return o.recordFailure(ctx, t, state, res, state.LastApplied,
			errDetail(err)), nil
	}
	defer func() {
		_ = conn.Close()
	}()

	target := pending[len(pending)-1].Name

	// State repair: a database whose schema already matches the target but
	// whose state row was never written (created out-of-band). Correct the
	// bookkeeping without touching the database.
	if state.LastApplied == "" {
		required := o.scripts.RequiredTables(target)
		if len(required) > 0 {
			ok, verr := adapter.ValidateSchema(ctx, conn, required)
			if verr == nil && ok {
				if err := o.markComplete(t.ID, target); err != nil {
					return nil, e.W(err, ECode000109)
				}
				log.Info().Msgf("tenant %d schema already at %s, state repaired",
					t.ID, target)
				res.Success = true
				return res, nil
			}
		}
	}

	applied, aerr := adapter.ApplyMigrations(ctx, conn, pending)
	res.Applied = applied

	// State always reflects the last fully completed script
	newLast := state.LastApplied
	if len(applied) > 0 {
		newLast = applied[len(applied)-1]
	}

	if aerr != nil {
		return o.recordFailure(ctx, t, state, res, newLast, errDetail(aerr)), nil
	}

	ok, verr := adapter.ValidateSchema(ctx, conn, o.scripts.RequiredTables(newLast))
	if verr != nil {
		return o.recordFailure(ctx, t, state, res, newLast, errDetail(verr)), nil
	}
	if !ok {
		// Scripts nominally succeeded but the shape is wrong. Hard
		// failure, never masked as success.
		return o.recordFailure(ctx, t, state, res, newLast,
			"schema validation failed: required tables missing after apply"), nil
	}

	if err := o.markComplete(t.ID, newLast); err != nil {
		return nil, e.W(err, ECode00010A)
	}

	log.Info().Msgf("tenant %d migrated to %s (%d scripts)",
		t.ID, newLast, len(applied))
	o.publish(ctx, events.Event{
		Type:       events.TypeMigrationApplied,
		TenantID:   t.ID,
		TenantCode: t.Code,
		Scripts:    applied,
	})

	res.Success = true
	return res, nil
}

// RollbackLastMigration reverts the tenant's most recently applied script
// and moves the state pointer to its predecessor. Rolling back a tenant with
// nothing applied is a no-op. A tenant in manual intervention must be reset
// first.
func (o *Orchestrator) RollbackLastMigration(ctx context.Context,
	tenantID int) (res *model.Result, err error) {

	res = &model.Result{TenantID: tenantID}

	release, ok := o.locker.TryLock(tenantID)
	if !ok {
		res.Busy = true
		res.ErrorMessage = e.MsgMigrationBusy
		return res, nil
	}
	defer release()

	t, adapter, err := o.resolveTenant(ctx, tenantID)
	if err != nil {
		return nil, e.W(err, ECode00010B)
	}

	state, err := sqlmodel.MigrationGetByTenantID(o.centralDB, t.ID)
	if err != nil {
		return nil, e.W(err, ECode00010C)
	}

	if state.Status == model.MIGRATION_STATUS_MANUAL {
		res.ErrorMessage = e.MsgMigrationManual
		return res, nil
	}

	if state.LastApplied == "" {
		res.Success = true
		return res, nil
	}

	target, err := o.scripts.Previous(state.LastApplied)
	if err != nil {
		return nil, e.W(err, ECode00010D)
	}

	toRevert, err := o.scripts.ToRevert(state.LastApplied, target)
	if err != nil {
		return nil, e.W(err, ECode00010E)
	}

	conn, err := adapter.Connect(&t.ConnParam)
	if err != nil {
		return o.recordFailure(ctx, t, state, res, state.LastApplied,
			errDetail(err)), nil
	}
	defer func() {
		_ = conn.Close()
	}()

	reverted, rerr := adapter.RollbackTo(ctx, conn, toRevert)
	res.Applied = reverted

	// The pointer only moves for scripts whose inverse fully completed
	newLast := state.LastApplied
	if len(reverted) == len(toRevert) {
		newLast = target
	}

	if rerr != nil {
		return o.recordFailure(ctx, t, state, res, newLast, errDetail(rerr)), nil
	}

	if err := o.markComplete(t.ID, newLast); err != nil {
		return nil, e.W(err, ECode00010F)
	}

	log.Info().Msgf("tenant %d rolled back %s, now at %q",
		t.ID, state.LastApplied, newLast)
	o.publish(ctx, events.Event{
		Type:       events.TypeMigrationRolledBack,
		TenantID:   t.ID,
		TenantCode: t.Code,
		Scripts:    reverted,
	})

	res.Success = true
	return res, nil
}

// ForceRemoveMigration removes the script from the tenant's bookkeeping
// WITHOUT running its inverse operation. Administrative escape hatch for a
// script discovered to be broken or obsolete after release. Only the
// tenant's current last applied script may be removed, which moves the
// pointer to its predecessor. Every use writes an audit record.
func (o *Orchestrator) ForceRemoveMigration(ctx context.Context, tenantID int,
	scriptName string) (res *model.Result, err error) {

	res = &model.Result{TenantID: tenantID}

	release, ok := o.locker.TryLock(tenantID)
	if !ok {
		res.Busy = true
		res.ErrorMessage = e.MsgMigrationBusy
		return res, nil
	}
	defer release()

	t, err := o.registry.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, e.W(err, ECode00010G)
	}

	state, err := sqlmodel.MigrationGetByTenantID(o.centralDB, t.ID)
	if err != nil {
		return nil, e.W(err, ECode00010H)
	}

	if state.LastApplied != scriptName {
		return nil, e.N(ECode00010I,
			"only the last applied script can be force removed",
			fmt.Sprintf("last applied: %q, requested: %q",
				state.LastApplied, scriptName))
	}

	prev, err := o.scripts.Previous(scriptName)
	if err != nil {
		return nil, e.W(err, ECode00010J)
	}

	// The removed script becomes pending again, so the state may not stay
	// complete
	status := model.MIGRATION_STATUS_PENDING
	retry := 0
	detail := ""
	up := &sqlmodel.MigrationUpdateParam{
		LastApplied: &prev,
		Status:      &status,
		RetryCount:  &retry,
		ErrorDetail: &detail,
	}
	if err := sqlmodel.MigrationUpdateByTenantID(o.centralDB, t.ID, up); err != nil {
		return nil, e.W(err, ECode00010K)
	}

	if _, err := sqlmodel.AuditInsert(o.centralDB, &sqlmodel.AuditInsertParam{
		TenantID: t.ID,
		Script:   scriptName,
		Action:   model.AUDIT_ACTION_FORCE_REMOVE,
		Detail:   fmt.Sprintf("pointer moved to %q without inverse operation", prev),
	}); err != nil {
		return nil, e.W(err, ECode00010L)
	}

	// Deliberately loud: this bypassed the inverse-operation safety net
	log.Warn().Msgf("FORCE REMOVE: tenant %d script %s removed from bookkeeping "+
		"without inverse operation, pointer now %q", t.ID, scriptName, prev)
	o.publish(ctx, events.Event{
		Type:       events.TypeMigrationForced,
		TenantID:   t.ID,
		TenantCode: t.Code,
		Scripts:    []string{scriptName},
	})

	res.Success = true
	return res, nil
}

// ResetManualIntervention clears a tenant's manual intervention state back
// to pending so automatic runs may resume. Explicit administrative action,
// audited.
func (o *Orchestrator) ResetManualIntervention(ctx context.Context,
	tenantID int) (err error) {

	release, ok := o.locker.TryLock(tenantID)
	if !ok {
		return e.N(ECode00010M, e.MsgMigrationBusy)
	}
	defer release()

	state, err := sqlmodel.MigrationGetByTenantID(o.centralDB, tenantID)
	if err != nil {
		return e.W(err, ECode00010N)
	}

	if state.Status != model.MIGRATION_STATUS_MANUAL {
		return e.N(ECode00010O, "tenant is not in manual intervention",
			fmt.Sprintf("status: %s", state.Status))
	}

	status := model.MIGRATION_STATUS_PENDING
	retry := 0
	detail := ""
	up := &sqlmodel.MigrationUpdateParam{
		Status:      &status,
		RetryCount:  &retry,
		ErrorDetail: &detail,
	}
	if err := sqlmodel.MigrationUpdateByTenantID(o.centralDB, tenantID, up); err != nil {
		return e.W(err, ECode00010P)
	}

	if _, err := sqlmodel.AuditInsert(o.centralDB, &sqlmodel.AuditInsertParam{
		TenantID: tenantID,
		Action:   model.AUDIT_ACTION_RESET,
		Detail:   fmt.Sprintf("retry count was %d", state.RetryCount),
	}); err != nil {
		return e.W(err, ECode00010Q)
	}

	log.Info().Msgf("tenant %d manual intervention reset", tenantID)

	return nil
}

// GetPendingMigrations returns the names of the scripts not yet applied to
// the tenant, in order. Pure read. A tenant with no state row yet has every
// script pending.
func (o *Orchestrator) GetPendingMigrations(ctx context.Context,
	tenantID int) (names []string, err error) {

	lastApplied := ""
	state, err := sqlmodel.MigrationGetByTenantID(o.centralDB, tenantID)
	if err != nil {
		if !e.ContainsError(err, e.MsgMigrationStateDNE) {
			return nil, e.W(err, ECode00010R)
		}
	} else {
		lastApplied = state.LastApplied
	}

	pending, err := o.scripts.Pending(lastApplied, "")
	if err != nil {
		return nil, e.W(err, ECode00010S)
	}

	for _, s := range pending {
		names = append(names, s.Name)
	}

	return names, nil
}

// GetMigrationHistory returns a read-only projection of the tenant's state
// plus the static script list
func (o *Orchestrator) GetMigrationHistory(ctx context.Context,
	tenantID int) (h *model.History, err error) {

	state, err := sqlmodel.MigrationGetByTenantID(o.centralDB, tenantID)
	if err != nil {
		return nil, e.W(err, ECode000110)
	}

	h = &model.History{
		LastApplied:   state.LastApplied,
		LastAttemptOn: state.LastAttemptOn,
		Status:        state.Status,
		RetryCount:    state.RetryCount,
		ErrorDetail:   state.ErrorDetail,
	}

	for _, name := range o.scripts.Names() {
		if state.LastApplied != "" && name <= state.LastApplied {
			h.Applied = append(h.Applied, name)
		} else {
			h.Pending = append(h.Pending, name)
		}
	}

	return h, nil
}

// ValidateTenantDatabase checks the tenant database's shape against the
// tables required at its recorded position
func (o *Orchestrator) ValidateTenantDatabase(ctx context.Context,
	tenantID int) (ok bool, err error) {

	t, adapter, err := o.resolveTenant(ctx, tenantID)
	if err != nil {
		return false, e.W(err, ECode000111)
	}

	state, err := sqlmodel.MigrationGetByTenantID(o.centralDB, t.ID)
	if err != nil {
		return false, e.W(err, ECode000112)
	}

	conn, err := adapter.Connect(&t.ConnParam)
	if err != nil {
		return false, e.W(err, ECode000113)
	}
	defer func() {
		_ = conn.Close()
	}()

	ok, err = adapter.ValidateSchema(ctx, conn,
		o.scripts.RequiredTables(state.LastApplied))
	if err != nil {
		return false, e.W(err, ECode000114)
	}

	return ok, nil
}

// ApplyMigrationsToAllTenants reconciles every active tenant to the latest
// script, in parallel up to the sweep concurrency bound. One tenant's
// failure never aborts the others.
func (o *Orchestrator) ApplyMigrationsToAllTenants(
	ctx context.Context) (sr *model.SweepResult, err error) {

	return o.sweep(ctx, func(ctx context.Context, tenantID int) (*model.Result, error) {
		return o.ApplyMigrations(ctx, tenantID, "")
	})
}

// RollbackAllTenants reverts the most recently applied script on every
// active tenant. Same aggregation discipline as ApplyMigrationsToAllTenants.
func (o *Orchestrator) RollbackAllTenants(
	ctx context.Context) (sr *model.SweepResult, err error) {

	return o.sweep(ctx, o.RollbackLastMigration)
}

// ForceRemoveMigrationFromAllTenants force removes the script from every
// active tenant's bookkeeping. Tenants whose last applied script differs are
// reported as failures, not skipped silently.
func (o *Orchestrator) ForceRemoveMigrationFromAllTenants(ctx context.Context,
	scriptName string) (sr *model.SweepResult, err error) {

	return o.sweep(ctx, func(ctx context.Context, tenantID int) (*model.Result, error) {
		return o.ForceRemoveMigration(ctx, tenantID, scriptName)
	})
}

// sweep runs op against every active tenant with bounded parallelism,
// converting per-tenant errors into per-tenant results so the remaining
// tenants always get processed
func (o *Orchestrator) sweep(ctx context.Context,
	op func(ctx context.Context, tenantID int) (*model.Result, error)) (
	sr *model.SweepResult, err error) {

	tList, err := o.registry.ListActiveTenants(ctx)
	if err != nil {
		return nil, e.W(err, ECode000115)
	}

	sr = &model.SweepResult{
		Success: true,
		Results: make([]*model.Result, len(tList)),
	}

	var eg errgroup.Group
	eg.SetLimit(o.sweepConcurrency)
	for i, t := range tList {
		i, t := i, t
		eg.Go(func() error {
			res, err := op(ctx, t.ID)
			if err != nil {
				res = &model.Result{
					TenantID:     t.ID,
					ErrorMessage: errDetail(err),
				}
			}
			sr.Results[i] = res
			return nil
		})
	}
	// The group never returns an error; per-tenant failures live in the
	// results
	_ = eg.Wait()

	for _, res := range sr.Results {
		if !res.Success {
			sr.Success = false
			break
		}
	}

	return sr, nil
}

// resolveTenant loads the tenant and selects its adapter. Inactive tenants
// are refused.
func (o *Orchestrator) resolveTenant(ctx context.Context, tenantID int) (
	t *tenantmodel.Tenant, a engine.Adapter, err error) {

	t, err = o.registry.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, e.W(err, ECode000116)
	}

	if !t.IsActive {
		return nil, nil, e.N(ECode000117, e.MsgTenantInactive,
			fmt.Sprintf("tenantID: %d", tenantID))
	}

	a, err = engine.ForEngine(t.Engine)
	if err != nil {
		return nil, nil, e.W(err, ECode000118)
	}

	return t, a, nil
}

// getOrCreateState loads the tenant's state row, creating it as pending on
// first touch
func (o *Orchestrator) getOrCreateState(tenantID int) (m *model.MigrationState, err error) {
	m, err = sqlmodel.MigrationGetByTenantID(o.centralDB, tenantID)
	if err == nil {
		return m, nil
	}
	if !e.ContainsError(err, e.MsgMigrationStateDNE) {
		return nil, e.W(err, ECode000119)
	}

	if _, err := sqlmodel.MigrationInsert(o.centralDB, &sqlmodel.MigrationInsertParam{
		TenantID: tenantID,
		Status:   model.MIGRATION_STATUS_PENDING,
	}); err != nil {
		return nil, e.W(err, ECode00011A)
	}

	m, err = sqlmodel.MigrationGetByTenantID(o.centralDB, tenantID)
	if err != nil {
		return nil, e.W(err, ECode00011B)
	}

	return m, nil
}

// backoffRemaining reports whether a failed tenant is still inside its retry
// delay window. The delay doubles per consecutive failure, capped. A zero
// backoff base disables gating.
func (o *Orchestrator) backoffRemaining(m *model.MigrationState) (wait time.Duration, gated bool) {
	if o.backoffBase <= 0 {
		return 0, false
	}
	if m.Status != model.MIGRATION_STATUS_FAILED || m.RetryCount <= 0 {
		return 0, false
	}

	delay := o.backoffBase << uint(m.RetryCount-1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}

	elapsed := o.now().Sub(m.LastAttemptOn)
	if elapsed >= delay {
		return 0, false
	}

	return delay - elapsed, true
}

// markInProgress flags the state row before engine work starts and stamps
// the attempt time
func (o *Orchestrator) markInProgress(tenantID int) (err error) {
	status := model.MIGRATION_STATUS_IN_PROGRESS
	now := o.now()
	up := &sqlmodel.MigrationUpdateParam{
		Status:        &status,
		LastAttemptOn: &now,
	}
	if err := sqlmodel.MigrationUpdateByTenantID(o.centralDB, tenantID, up); err != nil {
		return e.W(err, ECode00011C)
	}

	return nil
}

// markComplete records a successful run: pointer at lastApplied, retry count
// reset, error detail cleared
func (o *Orchestrator) markComplete(tenantID int, lastApplied string) (err error) {
	status := model.MIGRATION_STATUS_COMPLETE
	retry := 0
	detail := ""
	up := &sqlmodel.MigrationUpdateParam{
		LastApplied: &lastApplied,
		Status:      &status,
		RetryCount:  &retry,
		ErrorDetail: &detail,
	}
	if err := sqlmodel.MigrationUpdateByTenantID(o.centralDB, tenantID, up); err != nil {
		return e.W(err, ECode00011D)
	}

	return nil
}

// recordFailure persists a failed attempt: retry count incremented, pointer
// frozen at the last fully completed script, escalating to manual
// intervention once the retry budget is exhausted. The bookkeeping write
// itself failing is logged but the original failure still wins the result.
func (o *Orchestrator) recordFailure(ctx context.Context, t *tenantmodel.Tenant,
	m *model.MigrationState, res *model.Result, lastApplied string,
	detail string) *model.Result {

	retry := m.RetryCount + 1
	status := model.MIGRATION_STATUS_FAILED
	evType := events.TypeMigrationFailed
	if retry > o.maxRetries {
		status = model.MIGRATION_STATUS_MANUAL
		evType = events.TypeMigrationManual
	}

	now := o.now()
	up := &sqlmodel.MigrationUpdateParam{
		LastApplied:   &lastApplied,
		Status:        &status,
		RetryCount:    &retry,
		LastAttemptOn: &now,
		ErrorDetail:   &detail,
	}
	if err := sqlmodel.MigrationUpdateByTenantID(o.centralDB, t.ID, up); err != nil {
		log.Error().Err(err).Msgf("[%s]failed to record failure for tenant %d",
			ECode00011E, t.ID)
	}

	log.Warn().Msgf("tenant %d migration failed (attempt %d, status %s): %s",
		t.ID, retry, status, detail)
	o.publish(ctx, events.Event{
		Type:       evType,
		TenantID:   t.ID,
		TenantCode: t.Code,
		Detail:     detail,
	})

	res.Success = false
	res.ErrorMessage = detail
	return res
}

// publish emits a lifecycle event, best effort
func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if err := o.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Msgf("[%s]failed to publish %s event for tenant %d",
			ECode00011F, ev.Type, ev.TenantID)
	}
}

// errDetail extracts a compact human-readable message from an error for the
// state row's error detail column
func errDetail(err error) string {
	if ee := e.AsExtendedError(err); ee != nil && ee.Message != "" {
		return ee.Message
	}
	return err.Error()
}
