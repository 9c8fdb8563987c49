package sqlmodel

import (
	gosql "database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/migration/model"
	"github.com/tillworks/retail-lib/sql"
)

const (
	MigrationTableName     = "tenant_migration"
	MigrationDefaultSortBy = "tenant_migration_id"

	ECode000301 = e.Code0003 + "01"
	ECode000302 = e.Code0003 + "02"
	ECode000303 = e.Code0003 + "03"
	ECode000304 = e.Code0003 + "04"
	ECode000305 = e.Code0003 + "05"
	ECode000306 = e.Code0003 + "06"
	ECode000307 = e.Code0003 + "07"
	ECode000308 = e.Code0003 + "08"
	ECode000309 = e.Code0003 + "09"
	ECode00030A = e.Code0003 + "0A"
)

// MigrationGetParam get params
type MigrationGetParam struct {
	Limit     uint64
	Offset    uint64
	ID        *int
	TenantID  *int
	Status    *string
	FlagCount bool
	OrderByID string
}

// MigrationInsertParam insert params
type MigrationInsertParam struct {
	TenantID    int
	LastApplied string
	Status      string
}

// MigrationUpdateParam update params
type MigrationUpdateParam struct {
	LastApplied   *string
	Status        *string
	RetryCount    *int
	LastAttemptOn *time.Time
	ErrorDetail   *string
}

// MigrationInsert performs insert
func MigrationInsert(db *sql.Connection, ip *MigrationInsertParam) (id int, err error) {
	now := time.Now().UTC()

	var lastApplied interface{}
	if ip.LastApplied != "" {
		lastApplied = ip.LastApplied
	}

	ib := db.Insert(MigrationTableName).
		Columns(`tenant_id,tenant_migration_last_applied,
		tenant_migration_status,tenant_migration_retry_count,
		tenant_migration_error_detail,created_on,updated_on`).
		Values(ip.TenantID, lastApplied,
			ip.Status, 0,
			"", now, now,
		)

	id, err = db.ExecInsertReturningID(ib, "tenant_migration_id")
	if err != nil {
		return 0, e.W(err, ECode000301,
			fmt.Sprintf("params: %d, %s, %s",
				ip.TenantID, ip.LastApplied, ip.Status))
	}

	return id, nil
}

// MigrationUpdateByTenantID performs update of the tenant's state row
func MigrationUpdateByTenantID(db *sql.Connection, tenantID int,
	up *MigrationUpdateParam) (err error) {

	ub := db.Update(MigrationTableName).
		Set("updated_on", time.Now().UTC()).
		Where("tenant_id=?", tenantID)

	if up == nil {
		return nil // Nothing to update
	}

	if up.LastApplied != nil {
		if *up.LastApplied == "" {
			ub = ub.Set("tenant_migration_last_applied", nil)
		} else {
			ub = ub.Set("tenant_migration_last_applied", *up.LastApplied)
		}
	}

	if up.Status != nil {
		ub = ub.Set("tenant_migration_status", *up.Status)
	}

	if up.RetryCount != nil {
		ub = ub.Set("tenant_migration_retry_count", *up.RetryCount)
	}

	if up.LastAttemptOn != nil {
		ub = ub.Set("tenant_migration_last_attempt_on", *up.LastAttemptOn)
	}

	if up.ErrorDetail != nil {
		ub = ub.Set("tenant_migration_error_detail", *up.ErrorDetail)
	}

	err = db.ExecUpdate(ub)
	if err != nil {
		return e.W(err, ECode000302,
			fmt.Sprintf("params: %d, %v, %v",
				tenantID, up.LastApplied, up.Status))
	}

	return nil
}

// MigrationDelete removes the tenant's state row. Only used when the tenant
// itself is deleted.
func MigrationDelete(db *sql.Connection, tenantID int) (err error) {
	delB := db.Delete(MigrationTableName).
		Where("tenant_id=?", tenantID)

	if err := db.ExecDelete(delB); err != nil {
		return e.W(err, ECode000303, fmt.Sprintf("tenantID: %d", tenantID))
	}

	return nil
}

// MigrationGet performs select
func MigrationGet(db *sql.Connection,
	p *MigrationGetParam) (mList []*model.MigrationState, count int, err error) {
	if p.Limit == 0 {
		p.Limit = 1
	}

	fields := `tenant_migration_id,tenant_id,tenant_migration_last_applied,
	tenant_migration_status,tenant_migration_retry_count,
	tenant_migration_last_attempt_on,tenant_migration_error_detail,
	created_on,updated_on`

	sb := db.Select("{fields}").
		From(MigrationTableName).
		Limit(p.Limit)

	if p.ID != nil && *p.ID >= 0 {
		sb = sb.Where("tenant_migration_id=?", *p.ID)
	}

	if p.TenantID != nil && *p.TenantID >= 0 {
		sb = sb.Where("tenant_id=?", *p.TenantID)
	}

	if p.Status != nil {
		sb = sb.Where("tenant_migration_status=?", *p.Status)
	}

	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode000304)
	}

	if p.FlagCount {
		row := db.QueryRow(strings.Replace(stmt, "{fields}", "count(*)", 1), bindList...)
		if err := row.Scan(&count); err != nil {
			return nil, 0, e.W(err, ECode000305,
				fmt.Sprintf("stmt: %s | bindList: %v", stmt, bindList))
		}
	}

	sb = sb.Offset(p.Offset)

	if p.OrderByID != "" {
		sb = sb.OrderBy(fmt.Sprintf("tenant_migration_id %s", p.OrderByID))
	}

	stmt, bindList, err = sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode000306)
	}
	stmt = strings.Replace(stmt, "{fields}", fields, 1)

	rows, err := db.Query(stmt, bindList...)
	if err != nil {
		return nil, 0, e.W(err, ECode000307,
			fmt.Sprintf("bindList: %v", bindList))
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		m := &model.MigrationState{}
		var lastApplied, errorDetail gosql.NullString
		var lastAttemptOn gosql.NullTime
		if err := rows.Scan(&m.ID, &m.TenantID, &lastApplied,
			&m.Status, &m.RetryCount,
			&lastAttemptOn, &errorDetail,
			&m.CreatedOn, &m.UpdatedOn); err != nil {
			return nil, 0, e.W(err, ECode000308,
				fmt.Sprintf("stmt: %s | bindList: %v", stmt, bindList))
		}

		m.LastApplied = lastApplied.String
		m.ErrorDetail = errorDetail.String
		m.LastAttemptOn = lastAttemptOn.Time

		mList = append(mList, m)
	}

	return mList, count, nil
}

// MigrationGetByTenantID returns the migration state for the tenant
func MigrationGetByTenantID(db *sql.Connection, tenantID int) (m *model.MigrationState, err error) {
	mList, _, err := MigrationGet(db, &MigrationGetParam{
		Limit:    1,
		TenantID: &tenantID,
	})
	if err != nil {
		// Check for table does not exist error
		if e.IsTableDNEError(err) {
			return nil, e.N(ECode000309, e.MsgMigrationNotInstalled)
		}
		return nil, e.W(err, ECode000309)
	}

	if len(mList) != 1 {
		return nil, e.N(ECode00030A, e.MsgMigrationStateDNE)
	}

	return mList[0], nil
}
