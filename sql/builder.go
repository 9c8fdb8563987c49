package sql

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/tillworks/retail-lib/e"
)

const (
	ECode020601 = e.Code0206 + "01"
	ECode020602 = e.Code0206 + "02"
	ECode020603 = e.Code0206 + "03"
	ECode020604 = e.Code0206 + "04"
	ECode020605 = e.Code0206 + "05"
	ECode020606 = e.Code0206 + "06"
	ECode020607 = e.Code0206 + "07"
	ECode020608 = e.Code0206 + "08"
	ECode020609 = e.Code0206 + "09"
	ECode02060A = e.Code0206 + "0A"
	ECode02060B = e.Code0206 + "0B"
	ECode02060C = e.Code0206 + "0C"
	ECode02060D = e.Code0206 + "0D"
)

// Select wrapper for github.com/Masterminds/squirrel.Select, using the
// engine's placeholder format
func (c *Connection) Select(columns ...string) sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(c.engine.PlaceholderFormat()).
		Select(columns...)
}

// Insert wrapper for github.com/Masterminds/squirrel.Insert
func (c *Connection) Insert(table string) sq.InsertBuilder {
	return sq.StatementBuilder.PlaceholderFormat(c.engine.PlaceholderFormat()).
		Insert(table)
}

// Delete wrapper for github.com/Masterminds/squirrel.Delete
func (c *Connection) Delete(from string) sq.DeleteBuilder {
	return sq.StatementBuilder.PlaceholderFormat(c.engine.PlaceholderFormat()).
		Delete(from)
}

// Update wrapper for github.com/Masterminds/squirrel.Update
func (c *Connection) Update(table string) sq.UpdateBuilder {
	return sq.StatementBuilder.PlaceholderFormat(c.engine.PlaceholderFormat()).
		Update(table)
}

// ToSQLAndQuery converts the select builder to a SQL statement and bind
// parameters, then attempts to execute the query, returning the rows
func (c *Connection) ToSQLAndQuery(sb sq.SelectBuilder) (rows *Rows, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode020601, "stmt: "+stmt)
	}

	rows, err = c.Query(stmt, bindList...)
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode020602)
	}

	return rows, nil
}

// ToSQLAndQueryRow converts the select builder to a SQL statement and bind
// parameters, then attempts to execute the query, returning a single row
func (c *Connection) ToSQLAndQueryRow(sb sq.SelectBuilder) (row *Row, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode020603, "stmt: "+stmt)
	}

	return c.QueryRow(stmt, bindList...), nil
}

// ExecInsert wrapper to generate SQL/bind list and then execute insert query
func (c *Connection) ExecInsert(ib sq.InsertBuilder) (err error) {
	stmt, bindList, err := ib.ToSql()
	if err != nil {
		return e.W(err, ECode020604, "stmt: "+stmt)
	}

	if _, err := c.Exec(stmt, bindList...); err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return e.W(err, ECode020605)
	}

	return nil
}

// ExecUpdate wrapper to generate SQL/bind list and then execute update query
func (c *Connection) ExecUpdate(ub sq.UpdateBuilder) (err error) {
	stmt, bindList, err := ub.ToSql()
	if err != nil {
		return e.W(err, ECode020606, "stmt: "+stmt)
	}

	if _, err := c.Exec(stmt, bindList...); err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return e.W(err, ECode020607)
	}

	return nil
}

// ExecDelete wrapper to generate SQL/bind list and then execute delete query
func (c *Connection) ExecDelete(delB sq.DeleteBuilder) (err error) {
	stmt, bindList, err := delB.ToSql()
	if err != nil {
		return e.W(err, ECode020608, "stmt: "+stmt)
	}

	if _, err := c.Exec(stmt, bindList...); err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return e.W(err, ECode020609)
	}

	return nil
}

// ExecInsertReturningID executes the insert and returns the generated id.
// Postgres needs a RETURNING clause to surface it; the other engines report
// it through LastInsertId
func (c *Connection) ExecInsertReturningID(ib sq.InsertBuilder, idColumn string) (id int, err error) {
	if c.engine == EnginePostgres {
		ib = ib.Suffix("RETURNING " + idColumn)
	}

	stmt, bindList, err := ib.ToSql()
	if err != nil {
		return 0, e.W(err, ECode02060A, "stmt: "+stmt)
	}

	if c.engine == EnginePostgres {
		if err := c.QueryRow(stmt, bindList...).Scan(&id); err != nil {
			return 0, e.W(err, ECode02060B, "stmt: "+stmt)
		}
		return id, nil
	}

	res, err := c.Exec(stmt, bindList...)
	if err != nil {
		return 0, e.W(err, ECode02060C)
	}

	id64, err := res.LastInsertId()
	if err != nil {
		return 0, e.W(err, ECode02060D)
	}

	return int(id64), nil
}
