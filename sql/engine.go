package sql

import (
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/tillworks/retail-lib/e"
)

const (
	ECode020501 = e.Code0205 + "01"
	ECode020502 = e.Code0205 + "02"

	// MaskToken replaces credential fields whenever a connection string is
	// rendered for logs or error messages
	MaskToken = "*****"
)

// Engine identifies an underlying database technology. Each branch (tenant)
// declares one and the same engine is used for the life of its database.
type Engine string

const (
	// EngineSQLite embedded single-file engine
	EngineSQLite Engine = "sqlite"
	// EnginePostgres PostgreSQL client/server engine
	EnginePostgres Engine = "postgres"
	// EngineMySQL MySQL/MariaDB client/server engine
	EngineMySQL Engine = "mysql"
	// EngineMSSQL Microsoft SQL Server client/server engine
	EngineMSSQL Engine = "mssql"
)

// Valid returns whether the engine is one of the supported engines
func (en Engine) Valid() bool {
	switch en {
	case EngineSQLite, EnginePostgres, EngineMySQL, EngineMSSQL:
		return true
	}
	return false
}

// DriverName returns the database/sql driver name registered for the engine
func (en Engine) DriverName() (name string, err error) {
	switch en {
	case EngineSQLite:
		return "sqlite", nil
	case EnginePostgres:
		return "postgres", nil
	case EngineMySQL:
		return "mysql", nil
	case EngineMSSQL:
		return "sqlserver", nil
	}

	return "", e.WM(nil, ECode020501, e.MsgEngineUnsupported, string(en))
}

// PlaceholderFormat returns the squirrel placeholder format the engine's
// driver expects
func (en Engine) PlaceholderFormat() sq.PlaceholderFormat {
	switch en {
	case EnginePostgres:
		return sq.Dollar
	case EngineMSSQL:
		return sq.AtP
	default:
		return sq.Question
	}
}

// GetConnectionStr returns the connection string for the engine. It contains
// credentials in clear text and must never be logged - use MaskConnectionStr
// for anything that leaves the process
func GetConnectionStr(cp *ConnParam) (connStr string, err error) {
	if cp == nil {
		cp = GetConnParamFromENV()
	}

	switch cp.Engine {
	case EngineSQLite:
		return sqliteDSN(cp.FilePath), nil
	case EnginePostgres:
		return postgresDSN(cp, cp.Password), nil
	case EngineMySQL:
		return mysqlDSN(cp, cp.Password), nil
	case EngineMSSQL:
		return mssqlDSN(cp, cp.Password), nil
	}

	return "", e.WM(nil, ECode020502, e.MsgEngineUnsupported, string(cp.Engine))
}

// MaskConnectionStr returns the connection string with all credential fields
// replaced by the mask token. This is the only form that may appear in logs
// or error messages
func MaskConnectionStr(cp *ConnParam) (connStr string) {
	if cp == nil {
		cp = GetConnParamFromENV()
	}

	switch cp.Engine {
	case EngineSQLite:
		return sqliteDSN(cp.FilePath)
	case EnginePostgres:
		return postgresDSN(cp, MaskToken)
	case EngineMySQL:
		return mysqlDSN(cp, MaskToken)
	case EngineMSSQL:
		return mssqlDSN(cp, MaskToken)
	}

	return fmt.Sprintf("unsupported engine: %s", cp.Engine)
}

func sqliteDSN(filePath string) string {
	if filePath == "" || filePath == ":memory:" {
		return ":memory:"
	}

	// Apply the pragmas on the DSN so they apply to every connection in
	// the pool
	sep := "?"
	if strings.Contains(filePath, "?") {
		sep = "&"
	}

	return filePath + sep +
		"_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
}

func postgresDSN(cp *ConnParam, password string) string {
	var csb strings.Builder

	_, _ = csb.WriteString("host=")
	_, _ = csb.WriteString(cp.Host)
	_, _ = csb.WriteString(" port=")
	_, _ = csb.WriteString(cp.Port)
	_, _ = csb.WriteString(" user=")
	_, _ = csb.WriteString(cp.User)
	_, _ = csb.WriteString(" password=")
	_, _ = csb.WriteString(password)
	_, _ = csb.WriteString(" dbname=")
	_, _ = csb.WriteString(cp.DBName)

	_, _ = csb.WriteString(" ")
	if cp.SSLMode != "" {
		_, _ = csb.WriteString("sslmode=")
		_, _ = csb.WriteString(cp.SSLMode)
	} else {
		_, _ = csb.WriteString("sslmode=require")
	}

	return csb.String()
}

func mysqlDSN(cp *ConnParam, password string) string {
	// multiStatements is required so a migration script containing several
	// statements can run as a single exec
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cp.User, password, cp.Host, cp.Port, cp.DBName)
}

func mssqlDSN(cp *ConnParam, password string) string {
	q := url.Values{}
	if cp.DBName != "" {
		q.Set("database", cp.DBName)
	}

	if password == MaskToken {
		// url.UserPassword percent-encodes the mask token, so assemble
		// the masked form by hand to keep the literal token readable
		connStr := fmt.Sprintf("sqlserver://%s:%s@%s:%s",
			url.User(cp.User).String(), MaskToken, cp.Host, cp.Port)
		if len(q) > 0 {
			connStr += "?" + q.Encode()
		}
		return connStr
	}

	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cp.User, password),
		Host:   fmt.Sprintf("%s:%s", cp.Host, cp.Port),
	}
	u.RawQuery = q.Encode()

	return u.String()
}
