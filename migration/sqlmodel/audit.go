package sqlmodel

import (
	"fmt"
	"time"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	AuditTableName = "tenant_migration_audit"

	ECode000401 = e.Code0004 + "01"
	ECode000402 = e.Code0004 + "02"
	ECode000403 = e.Code0004 + "03"
)

// AuditInsertParam insert params
type AuditInsertParam struct {
	TenantID int
	Script   string
	Action   string
	Detail   string
}

// AuditInsert records an administrative action against a tenant's migration
// bookkeeping. Force removals bypass the inverse-operation safety net, so
// every use must be auditable.
func AuditInsert(db *sql.Connection, ip *AuditInsertParam) (id int, err error) {
	ib := db.Insert(AuditTableName).
		Columns(`tenant_id,tenant_migration_audit_script,
		tenant_migration_audit_action,tenant_migration_audit_detail,
		created_on`).
		Values(ip.TenantID, ip.Script,
			ip.Action, ip.Detail,
			time.Now().UTC(),
		)

	id, err = db.ExecInsertReturningID(ib, "tenant_migration_audit_id")
	if err != nil {
		return 0, e.W(err, ECode000401,
			fmt.Sprintf("params: %d, %s, %s", ip.TenantID, ip.Script, ip.Action))
	}

	return id, nil
}

// AuditGetByTenantID returns the audit records for the tenant, newest first
func AuditGetByTenantID(db *sql.Connection, tenantID int,
	limit uint64) (aList []*model.Audit, err error) {
	if limit == 0 {
		limit = 100
	}

	sb := db.Select(`tenant_migration_audit_id,tenant_id,
	tenant_migration_audit_script,tenant_migration_audit_action,
	tenant_migration_audit_detail,created_on`).
		From(AuditTableName).
		Where("tenant_id=?", tenantID).
		OrderBy("tenant_migration_audit_id desc").
		Limit(limit)

	rows, err := db.ToSQLAndQuery(sb)
	if err != nil {
		return nil, e.W(err, ECode000402)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		a := &model.Audit{}
		if err := rows.Scan(&a.ID, &a.TenantID,
			&a.Script, &a.Action,
			&a.Detail, &a.CreatedOn); err != nil {
			return nil, e.W(err, ECode000403)
		}

		aList = append(aList, a)
	}

	return aList, nil
}
