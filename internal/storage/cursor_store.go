package storage

import "context"

// CursorStore persists the effect stream position of each tracked account.
// This enables resumption after restarts without losing activity.
type CursorStore interface {
	// GetCursor returns the paging token of the last processed effect.
	// Returns ErrNotFound if no cursor has been saved yet.
	GetCursor(ctx context.Context, accountID string) (string, error)

	// SetCursor saves the paging token of the last processed effect.
	SetCursor(ctx context.Context, accountID, cursor string) error

	// DeleteCursor forgets the position of an account. Deleting a missing
	// cursor is not an error.
	DeleteCursor(ctx context.Context, accountID string) error
}
