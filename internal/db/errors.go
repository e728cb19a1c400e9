package db

import "errors"

var (
	// ErrKeyNotFound signals a missing key.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexExists signals an attempt to create an existing index.
	ErrIndexExists = errors.New("db: index already exists")
	// ErrIndexNotFound signals an operation on a missing index.
	ErrIndexNotFound = errors.New("db: index not found")
)

// Op constants map to backend command names for error context.
const (
	OpGet         = "GET"
	OpSet         = "SET"
	OpDel         = "DEL"
	OpJSONSet     = "JSON.SET"
	OpJSONGet     = "JSON.GET"
	OpSearch      = "FT.SEARCH"
	OpHybrid      = "FT.HYBRID"
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
)

// Error wraps a backend failure with the command that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }
