package model

import (
	"github.com/tillworks/retail-lib/sql"
)

// Script one named, ordered, reversible schema-change step. A script is
// engine-agnostic in intent: the same name exists for every supported
// dialect, with engine-specific DDL. Scripts are immutable once released.
// The name is timestamp-prefixed (YYYYMMDDHHMMSS_description) so the total
// ordering is lexicographic.
type Script struct {
	Name string
	// Tables the tables that must exist after this script has been applied
	Tables []string
	// Up/Down hold the forward and inverse DDL per engine dialect
	Up   map[sql.Engine]string
	Down map[sql.Engine]string
}

// UpSQL returns the forward DDL for the engine
func (s *Script) UpSQL(en sql.Engine) (stmt string, ok bool) {
	stmt, ok = s.Up[en]
	return stmt, ok
}

// DownSQL returns the inverse DDL for the engine
func (s *Script) DownSQL(en sql.Engine) (stmt string, ok bool) {
	stmt, ok = s.Down[en]
	return stmt, ok
}
