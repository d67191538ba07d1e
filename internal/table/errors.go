package table

import (
	"errors"
	"fmt"
)

// Sentinel errors of the table package.
var (
	ErrNoSchema     = errors.New("table has no schema")
	ErrExhausted    = errors.New("cursor is exhausted")
	ErrPosition     = errors.New("cursor position out of range")
	ErrCursor       = errors.New("invalid cursor definition")
	ErrReadOnly     = errors.New("proxy is read-only")
	ErrConnected    = errors.New("proxy is already connected")
	ErrNotConnected = errors.New("proxy is not connected")
	ErrRevokeCreate = errors.New("cannot revoke the update of a pending insert")
)

// RowLookupError reports a row id outside of the table storage.
type RowLookupError struct {
	ID int
}

func (e *RowLookupError) Error() string {
	return fmt.Sprintf("row id %d is not valid", e.ID)
}

// ColumnLookupError reports an unknown column name.
type ColumnLookupError struct {
	Name string
}

func (e *ColumnLookupError) Error() string {
	return fmt.Sprintf("column name %q is not valid", e.Name)
}

// ModeError reports an unknown cursor mode, or a procedure the mode of a
// cursor does not support.
type ModeError struct {
	Mode string
	Proc string
}

func (e *ModeError) Error() string {
	if e.Proc == "" {
		return fmt.Sprintf("unknown cursor mode %q", e.Mode)
	}
	return fmt.Sprintf("%s is not supported by %s cursors", e.Proc, e.Mode)
}

// ProxyError wraps a failed pull or push.
type ProxyError struct {
	Op  string
	Err error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy %s: %v", e.Op, e.Err)
}

func (e *ProxyError) Unwrap() error { return e.Err }
