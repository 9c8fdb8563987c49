package sql

import (
	"context"
	"database/sql"

	"github.com/tillworks/retail-lib/e"
)

const (
	ECode020401 = e.Code0204 + "01"
	ECode020402 = e.Code0204 + "02"
	ECode020403 = e.Code0204 + "03"
	ECode020404 = e.Code0204 + "04"
	ECode020405 = e.Code0204 + "05"
	ECode020406 = e.Code0204 + "06"
)

// Txn wrapper of the *sql.Tx, detached from the connection's internal txn
// handling. Used when a caller needs an explicitly scoped transaction, e.g.
// applying one migration script.
type Txn struct {
	txn *sql.Tx
}

// BeginTxn starts a transaction that is NOT stored on the connection. The
// caller owns its lifecycle.
func (c *Connection) BeginTxn(ctx context.Context) (t *Txn, err error) {
	txn, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, e.W(err, ECode020401)
	}

	return &Txn{txn: txn}, nil
}

// RollbackIfInTxn same as Rollback, except if it is not in a txn, it will
// do nothing
func (t *Txn) RollbackIfInTxn() {
	if t.txn == nil {
		return
	}

	_ = t.Rollback()
}

// Rollback attempts to roll back the txn
func (t *Txn) Rollback() (err error) {
	if t.txn == nil {
		return e.N(ECode020402, "not in a txn")
	}

	if err := t.txn.Rollback(); err != nil {
		return e.W(err, ECode020403)
	}

	t.txn = nil

	return nil
}

// Commit attempts to commit the txn
func (t *Txn) Commit() (err error) {
	if t.txn == nil {
		return e.N(ECode020404, "not in a txn")
	}

	if err = t.txn.Commit(); err != nil {
		return e.W(err, ECode020405)
	}

	t.txn = nil

	return nil
}

// Exec executes the query in the txn
func (t *Txn) Exec(ctx context.Context, query string, args ...interface{}) (res sql.Result, err error) {
	res, err = t.txn.ExecContext(ctx, query, args...)
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode020406, "query: "+query)
	}

	return res, nil
}

// QueryRow runs the query in the txn, returning the single row
func (t *Txn) QueryRow(ctx context.Context, query string, args ...interface{}) (row *Row) {
	return &Row{
		row:   t.txn.QueryRowContext(ctx, query, args...),
		query: query,
	}
}
