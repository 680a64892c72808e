/*
store.go - Persistence interface for users, leaves, and alarms

PURPOSE:
  Defines the contract between the domain and the database. The engine only
  ever talks to these interfaces; store/sqlite is the durable
  implementation, store/memory backs tests and dev mode.

LOOKUP CONTRACT:
  Get* methods return (nil, nil) when the row does not exist. Callers own
  the translation to NotFoundError so that the missing-entity message names
  the operation, not the table.

TRANSACTIONS:
  Every engine operation (apply/cancel/decide) runs inside WithTx so the
  balance mutation and the leave/alarm writes land atomically. If fn
  returns an error the transaction rolls back.

SEE ALSO:
  - store/sqlite/sqlite.go: durable implementation
  - store/memory/memory.go: in-memory implementation
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// STORE - Row-level persistence
// =============================================================================

type Store interface {
	// GetUser returns the user with the given id, or (nil, nil). Inactive
	// users are returned; id lookups serve administration too.
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail returns the active user with the given email, or (nil, nil).
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// SaveUser inserts the user (assigning ID when zero) or updates it.
	SaveUser(ctx context.Context, u *User) error

	// SearchUsers returns a page of active users whose username or email
	// contains query (all active users when query is blank), plus the total
	// match count. Ordered by id.
	SearchUsers(ctx context.Context, query string, offset, limit int) ([]User, int, error)

	// GetLeave returns the leave with the given id, or (nil, nil).
	GetLeave(ctx context.Context, id int64) (*Leave, error)

	// SaveLeave inserts the leave (assigning ID when zero) or updates it.
	SaveLeave(ctx context.Context, l *Leave) error

	// ListLeaves returns leave infos joined with owner identity, in
	// insertion order. A nil userID means all users.
	ListLeaves(ctx context.Context, userID *int64) ([]Info, error)

	// ListLeavesStarting returns leaves in the given status whose start
	// date is exactly day. Used by the start-of-leave sweep.
	ListLeavesStarting(ctx context.Context, day calendar.Date, status Status) ([]Leave, error)

	// SaveAlarm inserts the alarm (assigning ID when zero).
	SaveAlarm(ctx context.Context, a *Alarm) error

	// ListAlarms returns the user's alarms whose triggering leave currently
	// has the given status, in insertion order.
	ListAlarms(ctx context.Context, userID int64, status Status) ([]Alarm, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. fn receives a Store bound to
	// that transaction; returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
