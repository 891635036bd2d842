package domain

import "fmt"

// ErrorKind names a category of pipeline error for the run report.
type ErrorKind string

const (
	KindParse        ErrorKind = "parse"
	KindFetch        ErrorKind = "fetch"
	KindJoinMismatch ErrorKind = "join_mismatch"
	KindSchema       ErrorKind = "schema"
)

// ParseError reports an unparseable timestamp, price or coordinate. It is
// fatal: the build stops before any table is materialized.
type ParseError struct {
	Origin string
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q at %s: %v", e.Field, e.Value, e.Origin, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchError reports a lookup that failed after retries. Non-fatal: the
// enrichment fields stay null.
type FetchError struct {
	Query string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("lookup %q: %v", e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MismatchReason says which dimension a record failed to resolve.
type MismatchReason string

const (
	MismatchBrand         MismatchReason = "brand"
	MismatchLocation      MismatchReason = "location"
	MismatchBrandLocation MismatchReason = "brand+location"
)

// JoinMismatchError describes one price record excluded from service_station
// because its brand or location has no dimension row. Non-fatal.
type JoinMismatchError struct {
	StationName string
	Address     string
	BrandName   string
	Reason      MismatchReason
}

func (e *JoinMismatchError) Error() string {
	return fmt.Sprintf("unresolved %s for station %q (brand %q, address %q)",
		e.Reason, e.StationName, e.BrandName, e.Address)
}

// SchemaError reports a constraint violation or storage failure while a
// table is being created. Fatal; recovery is a full rebuild.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
