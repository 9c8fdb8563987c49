package sqlmodel

import (
	"fmt"
	"strings"
	"time"

	"github.com/tillworks/retail-lib/e"
	"github.com/tillworks/retail-lib/sql"
	"github.com/tillworks/retail-lib/tenant/model"
)

const (
	TenantTableName     = "tenant"
	TenantDefaultSortBy = "tenant_id"

	ECode030201 = e.Code0302 + "01"
	ECode030202 = e.Code0302 + "02"
	ECode030203 = e.Code0302 + "03"
	ECode030204 = e.Code0302 + "04"
	ECode030205 = e.Code0302 + "05"
	ECode030206 = e.Code0302 + "06"
	ECode030207 = e.Code0302 + "07"
	ECode030208 = e.Code0302 + "08"
	ECode030209 = e.Code0302 + "09"
)

// TenantGetParam get params
type TenantGetParam struct {
	Limit      uint64
	Offset     uint64
	ID         *int
	Code       *string
	FlagActive *bool
	FlagCount  bool
	OrderByID  string
}

// TenantInsertParam insert params
type TenantInsertParam struct {
	Code      string
	Name      string
	Engine    sql.Engine
	ConnParam sql.ConnParam
	IsActive  bool
}

// TenantInsert performs insert
func TenantInsert(db *sql.Connection, ip *TenantInsertParam) (id int, err error) {
	now := time.Now().UTC()

	ib := db.Insert(TenantTableName).
		Columns(`tenant_code,tenant_name,tenant_engine,
		tenant_db_host,tenant_db_port,tenant_db_user,tenant_db_pass,
		tenant_db_name,tenant_db_ssl_mode,tenant_db_file_path,
		tenant_is_active,created_on,updated_on`).
		Values(ip.Code, ip.Name, string(ip.Engine),
			ip.ConnParam.Host, ip.ConnParam.Port, ip.ConnParam.User, ip.ConnParam.Password,
			ip.ConnParam.DBName, ip.ConnParam.SSLMode, ip.ConnParam.FilePath,
			ip.IsActive, now, now,
		)

	id, err = db.ExecInsertReturningID(ib, "tenant_id")
	if err != nil {
		// Not logging the conn params because they contain credentials
		return 0, e.W(err, ECode030201,
			fmt.Sprintf("params: %s, %s, %s", ip.Code, ip.Name, ip.Engine))
	}

	return id, nil
}

// TenantSetActive activates/deactivates the tenant
func TenantSetActive(db *sql.Connection, id int, active bool) (err error) {
	ub := db.Update(TenantTableName).
		Set("tenant_is_active", active).
		Set("updated_on", time.Now().UTC()).
		Where("tenant_id=?", id)

	if err := db.ExecUpdate(ub); err != nil {
		return e.W(err, ECode030202, fmt.Sprintf("id: %d", id))
	}

	return nil
}

// TenantGet performs select
func TenantGet(db *sql.Connection,
	p *TenantGetParam) (tList []*model.Tenant, count int, err error) {
	if p.Limit == 0 {
		p.Limit = 1
	}

	fields := `tenant_id,tenant_code,tenant_name,tenant_engine,
	tenant_db_host,tenant_db_port,tenant_db_user,tenant_db_pass,
	tenant_db_name,tenant_db_ssl_mode,tenant_db_file_path,
	tenant_is_active,created_on,updated_on`

	sb := db.Select("{fields}").
		From(TenantTableName).
		Limit(p.Limit)

	if p.ID != nil && *p.ID >= 0 {
		sb = sb.Where("tenant_id=?", *p.ID)
	}

	if p.Code != nil {
		sb = sb.Where("tenant_code=?", *p.Code)
	}

	if p.FlagActive != nil {
		sb = sb.Where("tenant_is_active=?", *p.FlagActive)
	}

	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode030203)
	}

	if p.FlagCount {
		row := db.QueryRow(strings.Replace(stmt, "{fields}", "count(*)", 1), bindList...)
		if err := row.Scan(&count); err != nil {
			return nil, 0, e.W(err, ECode030204,
				fmt.Sprintf("stmt: %s", stmt))
		}
	}

	sb = sb.Offset(p.Offset)

	if p.OrderByID != "" {
		sb = sb.OrderBy(fmt.Sprintf("tenant_id %s", p.OrderByID))
	}

	stmt, bindList, err = sb.ToSql()
	if err != nil {
		return nil, 0, e.W(err, ECode030205)
	}
	stmt = strings.Replace(stmt, "{fields}", fields, 1)

	rows, err := db.Query(stmt, bindList...)
	if err != nil {
		return nil, 0, e.W(err, ECode030206)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		t := &model.Tenant{}
		var engine string
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &engine,
			&t.ConnParam.Host, &t.ConnParam.Port, &t.ConnParam.User, &t.ConnParam.Password,
			&t.ConnParam.DBName, &t.ConnParam.SSLMode, &t.ConnParam.FilePath,
			&t.IsActive, &t.CreatedOn, &t.UpdatedOn); err != nil {
			return nil, 0, e.W(err, ECode030207,
				fmt.Sprintf("stmt: %s", stmt))
		}

		t.Engine = sql.Engine(engine)
		t.ConnParam.Engine = t.Engine

		tList = append(tList, t)
	}

	return tList, count, nil
}

// TenantGetByID returns the tenant by id
func TenantGetByID(db *sql.Connection, id int) (t *model.Tenant, err error) {
	tList, _, err := TenantGet(db, &TenantGetParam{
		Limit: 1,
		ID:    &id,
	})
	if err != nil {
		return nil, e.W(err, ECode030208)
	}

	if len(tList) != 1 {
		return nil, e.N(ECode030209, e.MsgTenantDoesNotExist)
	}

	return tList[0], nil
}
