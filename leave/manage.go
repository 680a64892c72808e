/*
manage.go - Administrative account operations

PURPOSE:
  The admin surface over the account store: reset a user's remaining
  annual days, change roles, deactivate accounts, and run the paginated
  member search. These edits bypass the engine's balance invariant on
  purpose — an administrator may set any non-negative balance directly.
*/
package leave

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Manager performs administrative edits on user accounts.
type Manager struct {
	store TxStore
	log   *logrus.Logger
}

func NewManager(store TxStore, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{store: store, log: log}
}

// SetRemainingDays replaces the user's remaining annual-day balance.
func (m *Manager) SetRemainingDays(ctx context.Context, userID int64, days Days) (*User, error) {
	if days.IsNegative() {
		return nil, &ValidationError{Field: "remain_days", Reason: "must not be negative"}
	}
	return m.update(ctx, userID, "balance reset", func(u *User) {
		u.RemainDays = days
	})
}

// SetRole replaces the user's role.
func (m *Manager) SetRole(ctx context.Context, userID int64, role Role) (*User, error) {
	if role != RoleUser && role != RoleAdmin {
		return nil, &ValidationError{Field: "role", Reason: "must be USER or ADMIN"}
	}
	return m.update(ctx, userID, "role changed", func(u *User) {
		u.Role = role
	})
}

// Deactivate retires an account. Users are never deleted.
func (m *Manager) Deactivate(ctx context.Context, userID int64) (*User, error) {
	return m.update(ctx, userID, "deactivated", func(u *User) {
		u.Active = false
	})
}

func (m *Manager) update(ctx context.Context, userID int64, action string, mutate func(*User)) (*User, error) {
	var updated *User
	err := m.store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return &StorageError{Op: "get user", Err: err}
		}
		if user == nil {
			return &NotFoundError{Entity: "user", ID: userID}
		}
		mutate(user)
		if err := s.SaveUser(ctx, user); err != nil {
			return &StorageError{Op: "save user", Err: err}
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"user": userID, "action": action}).Info("user updated")
	return updated, nil
}

// =============================================================================
// SEARCH
// =============================================================================

// UserPage is one page of a member search.
type UserPage struct {
	Users      []User
	Page       int
	Size       int
	Total      int
	TotalPages int
}

// Search runs the paginated free-text member search. A blank query matches
// every active user. Pages are zero-based.
func (m *Manager) Search(ctx context.Context, query string, page, size int) (*UserPage, error) {
	if page < 0 {
		return nil, &ValidationError{Field: "page", Reason: "must not be negative"}
	}
	if size <= 0 {
		return nil, &ValidationError{Field: "size", Reason: "must be positive"}
	}

	users, total, err := m.store.SearchUsers(ctx, strings.TrimSpace(query), page*size, size)
	if err != nil {
		return nil, &StorageError{Op: "search users", Err: err}
	}

	totalPages := total / size
	if total%size != 0 {
		totalPages++
	}
	return &UserPage{Users: users, Page: page, Size: size, Total: total, TotalPages: totalPages}, nil
}
