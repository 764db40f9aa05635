package store

import (
	"errors"
	"fmt"
)

// ErrMalformedRow marks a table load aborted because a record could not be
// parsed or did not match the header. The table keeps its previous contents.
var ErrMalformedRow = errors.New("malformed row")

// ErrReservedTable rejects a table load that would replace a table owned by
// the store itself.
var ErrReservedTable = errors.New("reserved table name")

// Error is returned by every write operation of the Store.
type Error struct {
	Op    string // upsert, load, schema
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
