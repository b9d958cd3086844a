package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrClosed      = errors.New("db: store closed")
)

// Op constants map to Valkey/Redis command names for error context.
const (
	OpDel      = "DEL"
	OpHGetAll  = "HGETALL"
	OpHSet     = "HSET"
	OpExists   = "EXISTS"
	OpGet      = "GET"
	OpSet      = "SET"
	OpSAdd     = "SADD"
	OpSRem     = "SREM"
	OpSMembers = "SMEMBERS"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
