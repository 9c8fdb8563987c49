package model

import (
	"time"

	"github.com/tillworks/retail-lib/sql"
)

// Tenant a branch: an independently stored business unit with its own
// database. Owned by the registry; the migration subsystem only reads it.
type Tenant struct {
	ID        int
	Code      string
	Name      string
	Engine    sql.Engine
	ConnParam sql.ConnParam
	IsActive  bool
	CreatedOn time.Time
	UpdatedOn time.Time
}
