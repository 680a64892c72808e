/*
query.go - Date-anchored leave queries

PURPOSE:
  The read side of the engine: list leaves, optionally scoped to one user,
  optionally bucketed by a single date anchor.

DATE FILTER:
  The three mutually-exclusive anchors are one tagged variant, not three
  nullable fields — the type makes "at most one anchor" a construction
  guarantee:

    NoFilter()        everything
    OnDay(d)          leaves whose [start, end] contains d
    InWeek(d)         leaves overlapping the Sunday-start week containing d
    InMonth(d)        leaves overlapping the calendar month containing d

RESULT SHAPE:
  Leaves returns an iter.Seq snapshot: lazy, finite, and restartable —
  each range over the sequence re-runs the filter over the rows loaded at
  call time. Store order is preserved; nothing is re-sorted.
*/
package leave

import (
	"context"
	"iter"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// DATE FILTER - Tagged variant: None | Day | Week | Month
// =============================================================================

type filterKind int

const (
	filterNone filterKind = iota
	filterDay
	filterWeek
	filterMonth
)

type DateFilter struct {
	kind   filterKind
	anchor calendar.Date
}

func NoFilter() DateFilter { return DateFilter{kind: filterNone} }

func OnDay(d calendar.Date) DateFilter { return DateFilter{kind: filterDay, anchor: d} }

func InWeek(d calendar.Date) DateFilter { return DateFilter{kind: filterWeek, anchor: d} }

func InMonth(d calendar.Date) DateFilter { return DateFilter{kind: filterMonth, anchor: d} }

// Matches reports whether a leave range falls inside the filter window.
func (f DateFilter) Matches(r calendar.Range) bool {
	switch f.kind {
	case filterDay:
		return r.Contains(f.anchor)
	case filterWeek:
		return calendar.WeekOf(f.anchor).Overlaps(r)
	case filterMonth:
		return calendar.MonthOf(f.anchor).Overlaps(r)
	default:
		return true
	}
}

// =============================================================================
// QUERY
// =============================================================================

// Leaves returns the (optionally user-scoped) leaves matching the filter as
// a restartable sequence in store order.
func (e *Engine) Leaves(ctx context.Context, userID *int64, filter DateFilter) (iter.Seq[Info], error) {
	infos, err := e.store.ListLeaves(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "list leaves", Err: err}
	}
	return func(yield func(Info) bool) {
		for _, info := range infos {
			if !filter.Matches(info.Range) {
				continue
			}
			if !yield(info) {
				return
			}
		}
	}, nil
}
