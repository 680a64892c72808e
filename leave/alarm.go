/*
alarm.go - Alarm records and retrieval

PURPOSE:
  Alarms are the durable half of notification fan-out: one row per leave
  transition (registered, approved, rejected, cancelled, starting). They
  are written inside the same transaction as the transition itself and are
  never mutated afterwards. Live delivery over the push channel is
  best-effort and separate; losing a connection never loses an alarm.

RETRIEVAL:
  The alarm feed is queried per triggering-leave status. Listing with
  several statuses unions the per-status fetches in the order requested,
  preserving each fetch's insertion order and dropping duplicates.
*/
package leave

import (
	"context"
	"time"
)

// Alarm is immutable once written. LeaveID is zero for alarms that are not
// tied to a leave row.
type Alarm struct {
	ID        int64
	UserID    int64
	LeaveID   int64
	Message   string
	CreatedAt time.Time
}

// Alarms provides durable alarm recording and the status-filtered feed.
type Alarms struct {
	store TxStore
}

func NewAlarms(store TxStore) *Alarms {
	return &Alarms{store: store}
}

// Record persists an alarm. The only failure mode is the store itself.
func (a *Alarms) Record(ctx context.Context, userID, leaveID int64, message string) (*Alarm, error) {
	alarm := &Alarm{
		UserID:    userID,
		LeaveID:   leaveID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveAlarm(ctx, alarm); err != nil {
		return nil, &StorageError{Op: "save alarm", Err: err}
	}
	return alarm, nil
}

// List returns the user's alarms whose triggering leave is currently in one
// of the given statuses: per-status fetch order is preserved, the union is
// duplicate-free, and there is no cross-status re-sorting.
func (a *Alarms) List(ctx context.Context, userID int64, statuses ...Status) ([]Alarm, error) {
	seen := make(map[int64]bool)
	out := []Alarm{}
	for _, status := range statuses {
		alarms, err := a.store.ListAlarms(ctx, userID, status)
		if err != nil {
			return nil, &StorageError{Op: "list alarms", Err: err}
		}
		for _, alarm := range alarms {
			if seen[alarm.ID] {
				continue
			}
			seen[alarm.ID] = true
			out = append(out, alarm)
		}
	}
	return out, nil
}
