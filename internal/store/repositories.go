package store

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	UpsertOAuthUser(ctx context.Context, subject, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// SessionRepository stores opaque browser sessions by token hash.
type SessionRepository interface {
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// EventRepository handles calendar event storage. All lookups are scoped to
// the owning user; a miss and a foreign row are both ErrNotFound.
type EventRepository interface {
	Create(ctx context.Context, event Event) (*Event, error)
	Update(ctx context.Context, event Event) (*Event, error)
	GetByID(ctx context.Context, userID int64, id string) (*Event, error)
	Delete(ctx context.Context, userID int64, id string) error

	// ListForWindow returns the user's events that can produce occurrences
	// inside [from, to]: non-recurring events overlapping the window plus
	// recurring events whose series starts before the window end and is not
	// known to have ended before the window start. Count-terminated series
	// cannot be bounded in SQL; the recurrence engine trims those.
	ListForWindow(ctx context.Context, userID int64, from, to time.Time) ([]Event, error)
}
