// Package sql wraps database/sql with engine-aware connection handling. The
// same wrapper serves the central bookkeeping store and every tenant
// database, regardless of which storage engine the tenant declared.
package sql

import (
	"context"
	"os"

	"database/sql"

	"github.com/rs/zerolog/log"
	"github.com/tillworks/retail-lib/e"

	// Drivers for the supported engines
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

const (
	ECode020101 = e.Code0201 + "01"
	ECode020102 = e.Code0201 + "02"
	ECode020103 = e.Code0201 + "03"
	ECode020104 = e.Code0201 + "04"
	ECode020105 = e.Code0201 + "05"
	ECode020106 = e.Code0201 + "06"
	ECode020107 = e.Code0201 + "07"
	ECode020108 = e.Code0201 + "08"
	ECode020109 = e.Code0201 + "09"
	ECode02010A = e.Code0201 + "0A"
	ECode02010B = e.Code0201 + "0B"
	ECode02010C = e.Code0201 + "0C"
	ECode02010D = e.Code0201 + "0D"
	ECode02010E = e.Code0201 + "0E"
	ECode02010F = e.Code0201 + "0F"
)

// Connection wrapper of the *sql.DB
// If a transaction is started, it is stored internally in the txn and
// automatically used when making DB calls until commit/rollback is executed.
// If during a txn, a call outside of the txn is needed, the DB property can
// be accessed directly and used to make a query/exec/select call.
type Connection struct {
	DB     *sql.DB
	engine Engine
	txn    *sql.Tx
}

// ConnParam connection parameters used to initialize a connection. FilePath
// is only used by the embedded engine; the server engines use the host/port
// and credential fields.
type ConnParam struct {
	Engine   Engine
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	FilePath string
}

// GetConnParamFromENV initializes new connection parameters and populates
// from ENV variables
func GetConnParamFromENV() (cp *ConnParam) {
	cp = &ConnParam{
		Engine: EnginePostgres,
	}

	if os.Getenv("DBENGINE") != "" {
		cp.Engine = Engine(os.Getenv("DBENGINE"))
	}
	if os.Getenv("DBHOST") != "" {
		cp.Host = os.Getenv("DBHOST")
	}
	if os.Getenv("DBPORT") != "" {
		cp.Port = os.Getenv("DBPORT")
	}
	if os.Getenv("DBUSER") != "" {
		cp.User = os.Getenv("DBUSER")
	}
	if os.Getenv("DBPASS") != "" {
		cp.Password = os.Getenv("DBPASS")
	}
	if os.Getenv("DBNAME") != "" {
		cp.DBName = os.Getenv("DBNAME")
	}
	if os.Getenv("SSLMODE") != "" {
		cp.SSLMode = os.Getenv("SSLMODE")
	}
	if os.Getenv("DBFILEPATH") != "" {
		cp.FilePath = os.Getenv("DBFILEPATH")
	}

	return cp
}

// Open opens a connection for the engine declared in the connection
// parameters, without verifying reachability. Use NewConnection when the
// caller needs a verified connection.
func Open(cp *ConnParam) (conn *Connection, err error) {
	if cp == nil {
		cp = GetConnParamFromENV()
	}

	driver, err := cp.Engine.DriverName()
	if err != nil {
		return nil, e.W(err, ECode020101)
	}

	connStr, err := GetConnectionStr(cp)
	if err != nil {
		return nil, e.W(err, ECode020102)
	}

	sqlConn, err := sql.Open(driver, connStr)
	if err != nil {
		// Not logging the connection string because it contains credentials
		return nil, e.W(err, ECode020103, MaskConnectionStr(cp))
	}

	if cp.Engine == EngineSQLite {
		// Serialize writes to avoid SQLITE_BUSY
		sqlConn.SetMaxOpenConns(1)
	}

	return &Connection{DB: sqlConn, engine: cp.Engine}, nil
}

// NewConnection opens and pings a connection for the engine declared in the
// connection parameters
func NewConnection(cp *ConnParam) (conn *Connection, err error) {
	conn, err = Open(cp)
	if err != nil {
		return nil, e.W(err, ECode020104)
	}

	if err := conn.DB.Ping(); err != nil {
		_ = conn.DB.Close()
		return nil, e.WM(err, ECode020105, "Failed to ping DB",
			MaskConnectionStr(cp))
	}

	return conn, nil
}

// Engine returns the engine this connection was opened with
func (c *Connection) Engine() Engine {
	return c.engine
}

// Close closes the underlying DB
func (c *Connection) Close() (err error) {
	if err := c.DB.Close(); err != nil {
		return e.W(err, ECode020106)
	}

	return nil
}

// PingContext verifies the connection is still alive, honoring the context
// deadline
func (c *Connection) PingContext(ctx context.Context) (err error) {
	if err := c.DB.PingContext(ctx); err != nil {
		return e.W(err, ECode020107)
	}

	return nil
}

// Txn returns the underlying transaction, if currently in one
func (c *Connection) Txn() *sql.Tx {
	return c.txn
}

// Begin wrapper for sql.Begin. It doesn't return the txn object, but stores
// it internally and it will be used automatically for subsequent
// query/exec/select calls until commit/rollback is called
func (c *Connection) Begin() (err error) {
	if c.txn != nil {
		return e.WM(nil, ECode020108, "already in a txn")
	}
	c.txn, err = c.DB.Begin()
	if err != nil {
		return e.W(err, ECode020109)
	}

	return nil
}

// Commit wrapper for sql.Commit. If successfull, will unset the txn object
func (c *Connection) Commit() (err error) {
	if c.txn == nil {
		return e.WM(nil, ECode02010A, "not in a txn")
	}

	if err = c.txn.Commit(); err != nil {
		return e.W(err, ECode02010B)
	}

	c.txn = nil

	return nil
}

// RollbackIfInTxn same as Rollback, except if it is not in a txn, it will
// do nothing
func (c *Connection) RollbackIfInTxn() {
	if c.txn == nil {
		return
	}

	c.Rollback()
}

// Rollback wrapper for sql.Rollback - no matter what the transaction will
// be cancelled. So, we will log errors here, but will always assume the
// txn is rolled back and now unavailable
func (c *Connection) Rollback() {
	if c.txn == nil {
		log.Warn().Msgf("[%s] not in txn", ECode02010C)
		return
	}

	if err := c.txn.Rollback(); err != nil {
		log.Error().Err(err).Msgf("[%s]", ECode02010D)
	}

	c.txn = nil
}

// Query wrapper for sql.Query with automatic txn handling
func (c *Connection) Query(query string, args ...interface{}) (rows *Rows, err error) {
	return c.QueryContext(context.Background(), query, args...)
}

// QueryContext wrapper for sql.QueryContext with automatic txn handling
func (c *Connection) QueryContext(ctx context.Context, query string,
	args ...interface{}) (rows *Rows, err error) {

	var sqlRows *sql.Rows
	if c.txn != nil {
		sqlRows, err = c.txn.QueryContext(ctx, query, args...)
	} else {
		sqlRows, err = c.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode02010E, "query: "+query)
	}

	return &Rows{
		rows:  sqlRows,
		query: query,
	}, nil
}

// QueryRow wrapper for sql.QueryRow with automatic txn handling
func (c *Connection) QueryRow(query string, args ...interface{}) (row *Row) {
	return c.QueryRowContext(context.Background(), query, args...)
}

// QueryRowContext wrapper for sql.QueryRowContext with automatic txn handling
func (c *Connection) QueryRowContext(ctx context.Context, query string,
	args ...interface{}) (row *Row) {

	if c.txn != nil {
		return &Row{
			row:   c.txn.QueryRowContext(ctx, query, args...),
			query: query,
		}
	}
	return &Row{
		row:   c.DB.QueryRowContext(ctx, query, args...),
		query: query,
	}
}

// Exec wrapper for sql.Exec with automatic txn handling
func (c *Connection) Exec(query string, args ...interface{}) (res sql.Result, err error) {
	return c.ExecContext(context.Background(), query, args...)
}

// ExecContext wrapper for sql.ExecContext with automatic txn handling
func (c *Connection) ExecContext(ctx context.Context, query string,
	args ...interface{}) (res sql.Result, err error) {

	if c.txn != nil {
		res, err = c.txn.ExecContext(ctx, query, args...)
	} else {
		res, err = c.DB.ExecContext(ctx, query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode02010F, "query: "+query)
	}

	return res, nil
}
