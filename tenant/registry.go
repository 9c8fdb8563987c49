// Package tenant supplies tenant (branch) metadata: which storage engine a
// branch uses and how to reach its database. The migration subsystem only
// reads tenants; ownership of the records stays with the back-office
// provisioning flows.
package tenant

import (
	"context"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/sql"
	"github.com/tillworks/retail-lib/tenant/model"
	"github.com/tillworks/retail-lib/tenant/sqlmodel"
)

const (
	ECode030101 = e.Code0301 + "01"
	ECode030102 = e.Code0301 + "02"
	ECode030103 = e.Code0301 + "03"
)

// Registry supplies tenant metadata to the migration subsystem
type Registry interface {
	// GetTenant returns the tenant by id
	GetTenant(ctx context.Context, id int) (*model.Tenant, error)
	// ListActiveTenants returns all active tenants
	ListActiveTenants(ctx context.Context) ([]*model.Tenant, error)
}

// SQLRegistry a Registry backed by the central (non-tenant) datastore
type SQLRegistry struct {
	db *sql.Connection
}

// NewSQLRegistry initializes a registry over the central store connection
func NewSQLRegistry(db *sql.Connection) (r *SQLRegistry) {
	return &SQLRegistry{
		db: db,
	}
}

// GetTenant returns the tenant by id
func (r *SQLRegistry) GetTenant(ctx context.Context, id int) (t *model.Tenant, err error) {
	t, err = sqlmodel.TenantGetByID(r.db, id)
	if err != nil {
		return nil, e.W(err, ECode030101)
	}

	return t, nil
}

// ListActiveTenants returns all active tenants, ordered by id
func (r *SQLRegistry) ListActiveTenants(ctx context.Context) (tList []*model.Tenant, err error) {
	active := true
	tList, _, err = sqlmodel.TenantGet(r.db, &sqlmodel.TenantGetParam{
		Limit:      10000,
		FlagActive: &active,
		OrderByID:  "asc",
	})
	if err != nil {
		return nil, e.W(err, ECode030102)
	}

	return tList, nil
}

// Register adds a tenant to the central store and returns its id. Used by
// provisioning flows when a new branch is created.
func (r *SQLRegistry) Register(ctx context.Context, ip *sqlmodel.TenantInsertParam) (id int, err error) {
	id, err = sqlmodel.TenantInsert(r.db, ip)
	if err != nil {
		return 0, e.W(err, ECode030103)
	}

	return id, nil
}
