package storage

import "errors"

var (
	// ErrNotFound reports a missing account, cursor or trade.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey reports a trade id the journal already holds.
	// The pipeline treats it as "already notified".
	ErrDuplicateKey = errors.New("duplicate trade id")

	// ErrInvalidInput reports a record missing its key fields.
	ErrInvalidInput = errors.New("invalid input")
)
