/*
Package leave implements the leave-request lifecycle engine.

PURPOSE:
  This package contains the core domain of the HR backend: users with a
  remaining-day balance, leave/duty requests moving through an approval
  workflow, and the alarms emitted on every transition. Persistence is
  behind the Store interface (store/sqlite, store/memory); live delivery is
  behind the Notifier interface (push package).

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: day amounts backed by decimal.Decimal (exact, half-days allowed)
  - User: account with remaining balance, role, active flag
  - Leave: an inclusive date-range request with a status machine
  - Transition table: the only legal status moves

LIFECYCLE:
  Apply creates a WAITING leave and reserves its working days against the
  owner's balance. An admin decision moves WAITING to APPROVAL or REJECTION
  (rejection releases the reservation). The owner may cancel any
  non-cancelled leave, which refunds whatever is still reserved and
  terminates the request.

SEE ALSO:
  - engine.go:  Apply/Cancel/Decide
  - query.go:   date-anchored leave queries
  - alarm.go:   alarm records and retrieval
  - errors.go:  the error taxonomy
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// DAYS - Day amounts (decimal-backed, exact)
// =============================================================================

type Days struct {
	Value decimal.Decimal
}

func DaysOf(n int) Days {
	return Days{Value: decimal.NewFromInt(int64(n))}
}

func ZeroDays() Days { return Days{Value: decimal.Zero} }

func (d Days) Add(o Days) Days         { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days         { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) IsZero() bool            { return d.Value.IsZero() }
func (d Days) IsNegative() bool        { return d.Value.IsNegative() }
func (d Days) GreaterThan(o Days) bool { return d.Value.GreaterThan(o.Value) }
func (d Days) Equal(o Days) bool       { return d.Value.Equal(o.Value) }
func (d Days) String() string          { return d.Value.String() }

// =============================================================================
// USER - The account the balance belongs to
// =============================================================================

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is never deleted; leaving the company flips Active to false.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	RemainDays   Days
	Active       bool
	CreatedAt    time.Time
}

// =============================================================================
// LEAVE - A leave/duty request
// =============================================================================

type LeaveType string

const (
	TypeAnnual LeaveType = "ANNUAL" // consumes working days
	TypeDuty   LeaveType = "DUTY"   // consumes nothing
)

type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusApproval  Status = "APPROVAL"
	StatusRejection Status = "REJECTION"
	StatusCancelled Status = "CANCELLED"
)

type Leave struct {
	ID     int64
	UserID int64
	Type   LeaveType
	Range  calendar.Range
	Status Status

	// UsingDays is the reservation currently held against the owner's
	// balance. Written at apply time, zeroed when the reservation is
	// released (rejection), never recomputed anywhere else.
	UsingDays Days

	CreatedAt time.Time
}

// =============================================================================
// TRANSITION TABLE - The only legal status moves
// =============================================================================

var transitions = map[Status][]Status{
	StatusWaiting:   {StatusApproval, StatusRejection, StatusCancelled},
	StatusApproval:  {StatusCancelled},
	StatusRejection: {StatusCancelled},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Info is the read-model row produced by leave queries: the leave joined
// with its owner's identity.
type Info struct {
	LeaveID  int64
	UserID   int64
	Username string
	Type     LeaveType
	Status   Status
	Range    calendar.Range
}
