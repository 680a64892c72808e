/*
engine.go - Leave lifecycle engine

PURPOSE:
  Owns every mutation of leave requests and the balances they reserve:

    Apply   create a WAITING leave, reserve its working days
    Cancel  owner terminates a leave, refund whatever is still reserved
    Decide  admin moves WAITING to APPROVAL or REJECTION

BALANCE MODEL:
  Apply reserves optimistically: the owner's balance is decremented the
  moment the request is created, so overlapping requests cannot overdraw.
  Rejection and cancellation are the two refund operations; approval keeps
  the reservation consumed. Refunds are additive, never clamped.

ATOMICITY:
  Each operation runs inside one store transaction: balance write, leave
  write, and alarm write land together or not at all. The live push happens
  after commit and is best-effort; a dead connection never rolls back a
  decision.

SEE ALSO:
  - types.go:  transition table
  - query.go:  read side
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/calendar"
)

// Notifier delivers a best-effort live event to a user's open push channel,
// if any. Implementations must not block beyond their own send deadline.
type Notifier interface {
	Notify(userID int64, event, message string)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(int64, string, string) {}

// Engine is the lifecycle engine. All methods are safe for concurrent use;
// consistency comes from the store transaction, not from engine state.
type Engine struct {
	store    TxStore
	holidays calendar.HolidayCalendar
	notifier Notifier
	log      *logrus.Logger
}

func NewEngine(store TxStore, holidays calendar.HolidayCalendar, notifier Notifier, log *logrus.Logger) *Engine {
	if holidays == nil {
		holidays = calendar.NoHolidays{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{store: store, holidays: holidays, notifier: notifier, log: log}
}

// =============================================================================
// APPLY
// =============================================================================

// ApplyResult is what the caller sees after a successful apply.
type ApplyResult struct {
	LeaveID    int64
	Type       LeaveType
	UsingDays  Days
	RemainDays Days
	Status     Status
}

// Apply creates a WAITING leave for the user and reserves its cost.
// DUTY costs nothing; ANNUAL costs the inclusive working-day span of the
// range. Fails with ValidationError on a reversed range or when the cost
// exceeds the user's remaining balance.
func (e *Engine) Apply(ctx context.Context, userID int64, typ LeaveType, r calendar.Range) (*ApplyResult, error) {
	if typ != TypeAnnual && typ != TypeDuty {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown leave type %q", typ)}
	}
	if r.End.Before(r.Start) {
		return nil, &ValidationError{Field: "end_date", Reason: "end date is before start date"}
	}

	var result *ApplyResult
	err := e.store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return &StorageError{Op: "get user", Err: err}
		}
		if user == nil {
			return &NotFoundError{Entity: "user", ID: userID}
		}

		using := ZeroDays()
		if typ == TypeAnnual {
			using = DaysOf(calendar.WorkingDaysBetween(r.Start, r.End, e.holidays))
			if using.GreaterThan(user.RemainDays) {
				return &ValidationError{
					Field: "end_date",
					Reason: fmt.Sprintf("requested %s day(s) but only %s remain",
						using, user.RemainDays),
				}
			}
		}

		user.RemainDays = user.RemainDays.Sub(using)
		if err := s.SaveUser(ctx, user); err != nil {
			return &StorageError{Op: "save user", Err: err}
		}

		l := &Leave{
			UserID:    userID,
			Type:      typ,
			Range:     r,
			Status:    StatusWaiting,
			UsingDays: using,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.SaveLeave(ctx, l); err != nil {
			return &StorageError{Op: "save leave", Err: err}
		}

		if err := s.SaveAlarm(ctx, &Alarm{
			UserID:    userID,
			LeaveID:   l.ID,
			Message:   registeredMessage(typ),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return &StorageError{Op: "save alarm", Err: err}
		}

		result = &ApplyResult{
			LeaveID:    l.ID,
			Type:       typ,
			UsingDays:  using,
			RemainDays: user.RemainDays,
			Status:     StatusWaiting,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{"user": userID, "leave": result.LeaveID, "type": typ}).
		Info("leave registered")
	e.notifier.Notify(userID, "alarm", registeredMessage(typ))
	return result, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel terminates a leave owned by requesterID and refunds whatever the
// leave still reserves. Returns the owner's resulting balance.
func (e *Engine) Cancel(ctx context.Context, leaveID, requesterID int64) (Days, error) {
	var remain Days
	var message string
	err := e.store.WithTx(ctx, func(s Store) error {
		l, err := s.GetLeave(ctx, leaveID)
		if err != nil {
			return &StorageError{Op: "get leave", Err: err}
		}
		if l == nil {
			return &NotFoundError{Entity: "leave", ID: leaveID}
		}
		if l.UserID != requesterID {
			return &AuthorizationError{UserID: requesterID, Reason: "leave belongs to another user"}
		}
		if !CanTransition(l.Status, StatusCancelled) {
			return &InvalidStateError{LeaveID: leaveID, From: l.Status, To: StatusCancelled}
		}

		user, err := s.GetUser(ctx, l.UserID)
		if err != nil {
			return &StorageError{Op: "get user", Err: err}
		}
		if user == nil {
			return &NotFoundError{Entity: "user", ID: l.UserID}
		}

		// Additive refund of the recorded reservation; no clamping.
		user.RemainDays = user.RemainDays.Add(l.UsingDays)
		if err := s.SaveUser(ctx, user); err != nil {
			return &StorageError{Op: "save user", Err: err}
		}

		message = fmt.Sprintf("%s's %s from %s to %s, %s day(s) in total, has been cancelled.",
			user.Username, typeNoun(l.Type), l.Range.Start, l.Range.End, l.UsingDays)

		l.Status = StatusCancelled
		if err := s.SaveLeave(ctx, l); err != nil {
			return &StorageError{Op: "save leave", Err: err}
		}
		if err := s.SaveAlarm(ctx, &Alarm{
			UserID:    user.ID,
			LeaveID:   l.ID,
			Message:   message,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return &StorageError{Op: "save alarm", Err: err}
		}

		remain = user.RemainDays
		return nil
	})
	if err != nil {
		return Days{}, err
	}

	e.log.WithFields(logrus.Fields{"user": requesterID, "leave": leaveID}).Info("leave cancelled")
	e.notifier.Notify(requesterID, "alarm", message)
	return remain, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide is the administrative transition out of WAITING. Approval keeps
// the reservation; rejection releases it back to the owner's balance and
// zeroes the recorded reservation.
func (e *Engine) Decide(ctx context.Context, leaveID int64, approve bool) (*Leave, error) {
	to := StatusRejection
	if approve {
		to = StatusApproval
	}

	var decided *Leave
	var ownerID int64
	var message string
	err := e.store.WithTx(ctx, func(s Store) error {
		l, err := s.GetLeave(ctx, leaveID)
		if err != nil {
			return &StorageError{Op: "get leave", Err: err}
		}
		if l == nil {
			return &NotFoundError{Entity: "leave", ID: leaveID}
		}
		if !CanTransition(l.Status, to) {
			return &InvalidStateError{LeaveID: leaveID, From: l.Status, To: to}
		}

		if !approve && !l.UsingDays.IsZero() {
			user, err := s.GetUser(ctx, l.UserID)
			if err != nil {
				return &StorageError{Op: "get user", Err: err}
			}
			if user == nil {
				return &NotFoundError{Entity: "user", ID: l.UserID}
			}
			user.RemainDays = user.RemainDays.Add(l.UsingDays)
			if err := s.SaveUser(ctx, user); err != nil {
				return &StorageError{Op: "save user", Err: err}
			}
			// The reservation is released; the recorded value is rewritten
			// here and nowhere else.
			l.UsingDays = ZeroDays()
		}

		l.Status = to
		if err := s.SaveLeave(ctx, l); err != nil {
			return &StorageError{Op: "save leave", Err: err}
		}

		message = decidedMessage(l.Type, l.Range, approve)
		if err := s.SaveAlarm(ctx, &Alarm{
			UserID:    l.UserID,
			LeaveID:   l.ID,
			Message:   message,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return &StorageError{Op: "save alarm", Err: err}
		}

		decided = l
		ownerID = l.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{"leave": leaveID, "status": to}).Info("leave decided")
	e.notifier.Notify(ownerID, "alarm", message)
	return decided, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

func typeNoun(t LeaveType) string {
	if t == TypeDuty {
		return "duty"
	}
	return "annual leave"
}

func registeredMessage(t LeaveType) string {
	return fmt.Sprintf("Your %s request has been registered.", typeNoun(t))
}

func decidedMessage(t LeaveType, r calendar.Range, approved bool) string {
	verb := "rejected"
	if approved {
		verb = "approved"
	}
	return fmt.Sprintf("Your %s request from %s to %s has been %s.",
		typeNoun(t), r.Start, r.End, verb)
}
