package client

import "errors"

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNotFound         = errors.New("account not found")
	ErrNotEligible      = errors.New("not eligible")
	ErrSubmissionFailed = errors.New("transaction submission failed")
)
