package sql

import (
	"database/sql"

	"github.com/tillworks/retail-lib/e"
)

const (
	ECode020301 = e.Code0203 + "01"
	ECode020302 = e.Code0203 + "02"
	ECode020303 = e.Code0203 + "03"
)

// Rows wrapper struct for sql.Rows, so error handling can happen
type Rows struct {
	rows  *sql.Rows
	query string
}

// Scan wrapper for rows' Scan, which returns an extended error instead
func (r *Rows) Scan(dest ...interface{}) error {
	if err := r.rows.Scan(dest...); err != nil {
		return e.W(err, ECode020301, "query: "+r.query)
	}

	return nil
}

// Err wrapper for rows' Err func
func (r *Rows) Err() error {
	err := r.rows.Err()
	if err == nil {
		return nil
	}

	return e.W(err, ECode020302, "query: "+r.query)
}

// Close wrapper for rows' Close func - returns extended error instead
func (r *Rows) Close() error {
	if err := r.rows.Close(); err != nil {
		return e.W(err, ECode020303, "query: "+r.query)
	}

	return nil
}

// Next wrapper for rows' Next func
func (r *Rows) Next() bool {
	return r.rows.Next()
}
