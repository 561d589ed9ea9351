package vaultprog

import "errors"

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrTruncatedData    = errors.New("truncated account data")
)
