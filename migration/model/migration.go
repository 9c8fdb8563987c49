package model

import (
	"time"
)

const (
	// MIGRATION_STATUS_PENDING no migrations applied yet
	MIGRATION_STATUS_PENDING = "pending"
	// MIGRATION_STATUS_IN_PROGRESS a migration run is currently executing
	MIGRATION_STATUS_IN_PROGRESS = "in_progress"
	// MIGRATION_STATUS_COMPLETE the tenant is at the requested script
	MIGRATION_STATUS_COMPLETE = "complete"
	// MIGRATION_STATUS_FAILED the last run failed, eligible for retry
	MIGRATION_STATUS_FAILED = "failed"
	// MIGRATION_STATUS_MANUAL the retry budget is exhausted; only an explicit
	// administrative reset clears this
	MIGRATION_STATUS_MANUAL = "manual_intervention"
)

// MigrationState durable per-tenant record of migration progress. Exactly
// one exists per tenant once the orchestrator has touched it. LastApplied is
// empty until the first script completes.
type MigrationState struct {
	ID            int
	TenantID      int
	LastApplied   string
	Status        string
	RetryCount    int
	LastAttemptOn time.Time
	ErrorDetail   string
	CreatedOn     time.Time
	UpdatedOn     time.Time
}

// Result the structured outcome callers receive instead of a raw error
type Result struct {
	TenantID     int
	Success      bool
	Busy         bool
	Applied      []string
	ErrorMessage string
}

// SweepResult aggregate outcome of an all-tenants operation. Success is true
// only if every tenant succeeded.
type SweepResult struct {
	Success bool
	Results []*Result
}

// History read-only projection of a tenant's migration state plus the static
// script list
type History struct {
	Applied       []string
	Pending       []string
	LastApplied   string
	LastAttemptOn time.Time
	Status        string
	RetryCount    int
	ErrorDetail   string
}

// AuditAction values recorded in the force-remove/reset audit trail
const (
	AUDIT_ACTION_FORCE_REMOVE = "force_remove"
	AUDIT_ACTION_RESET        = "manual_reset"
)

// Audit a dedicated audit record for administrative escape hatches
type Audit struct {
	ID        int
	TenantID  int
	Script    string
	Action    string
	Detail    string
	CreatedOn time.Time
}
