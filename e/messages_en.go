package e

// This defines reusable error messages

const (
	MsgUnknownInternalServerError = "Unknown Internal Server Error"
	MsgUnauthorized               = "Unauthorized"
	MsgForbidden                  = "Forbidden"

	// migrations
	MsgMigrationStateDNE        = "Migration state does not exist"
	MsgMigrationNotInstalled    = "Migration bookkeeping tables not installed"
	MsgMigrationScriptDNE       = "Migration script does not exist"
	MsgMigrationFileNameInvalid = "Invalid migration file name"
	MsgMigrationBusy            = "A migration is already running for this tenant"
	MsgMigrationManual          = "Tenant requires manual intervention"

	// tenants
	MsgTenantDoesNotExist = "Tenant does not exist"
	MsgTenantInactive     = "Tenant is not active"
	MsgEngineUnsupported  = "Unsupported storage engine"
)
