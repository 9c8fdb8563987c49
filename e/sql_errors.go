package e

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	sqlite "modernc.org/sqlite"
)

const (
	// PQErr23505UniqueViolation Postgres code for unique violation
	PQErr23505UniqueViolation = "23505"
	// PQErr42P01 pq: relation "<string>" does not exist
	PQErr42P01 = "42P01"

	// MySQLErr1146TableDNE mysql code for table does not exist
	MySQLErr1146TableDNE = 1146

	// MSSQLErr208ObjectDNE sql server code for invalid object name
	MSSQLErr208ObjectDNE = 208

	// SQLiteErr1NoSuchTable sqlite generic error, used for missing tables
	SQLiteErr1NoSuchTable = 1
)

// IsPQError checks if the passed error is the specified Postgres error code
func IsPQError(err error, errorCode string) bool {
	var pqerr *pq.Error
	if ee := AsExtendedError(err); ee != nil {
		return ee.AsError(&pqerr) && string(pqerr.Code) == errorCode
	}

	return errors.As(err, &pqerr) && string(pqerr.Code) == errorCode
}

// IsMySQLError checks if the passed error is the specified MySQL error number
func IsMySQLError(err error, number uint16) bool {
	var myerr *mysql.MySQLError
	if ee := AsExtendedError(err); ee != nil {
		return ee.AsError(&myerr) && myerr.Number == number
	}

	return errors.As(err, &myerr) && myerr.Number == number
}

// IsMSSQLError checks if the passed error is the specified SQL Server error
// number
func IsMSSQLError(err error, number int32) bool {
	var mserr mssql.Error
	if ee := AsExtendedError(err); ee != nil {
		return ee.AsError(&mserr) && mserr.Number == number
	}

	return errors.As(err, &mserr) && mserr.Number == number
}

// IsSQLiteError checks if the passed error is the specified sqlite error code
func IsSQLiteError(err error, code int) bool {
	var serr *sqlite.Error
	if ee := AsExtendedError(err); ee != nil {
		return ee.AsError(&serr) && serr.Code() == code
	}

	return errors.As(err, &serr) && serr.Code() == code
}

// IsTableDNEError checks if the passed error indicates a relation/table does
// not exist, for any of the supported engines
func IsTableDNEError(err error) bool {
	if IsPQError(err, PQErr42P01) ||
		IsMySQLError(err, MySQLErr1146TableDNE) ||
		IsMSSQLError(err, MSSQLErr208ObjectDNE) {
		return true
	}

	return ContainsError(err, "no such table")
}

// IsNoRowsError returns whether the error is a sql no rows found
func IsNoRowsError(err error) bool {
	return ContainsError(err, "sql: no rows in result set")
}
